package ports

import "fmt"

// ChannelExistsError is returned by a NetworkClient when channel creation conflicts with a
// channel the network already holds for the same participant and token.
type ChannelExistsError struct {
	ChannelID string
	Message   string
}

func (e *ChannelExistsError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("channel already exists: %s", e.ChannelID)
}
