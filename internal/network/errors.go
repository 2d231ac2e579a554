package network

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/usecases"
)

// ErrNoSession is returned for calls on behalf of an address that has no live session.
var ErrNoSession = fmt.Errorf("%w: no live session for address", usecases.ErrNotAuthenticated)

var channelExistsPattern = regexp.MustCompile(`(?i)already exists.*?\b(0x[0-9a-f]{64})\b`)

// RPCError is an error response of the node.
type RPCError struct {
	Method  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s rejected by network: %s", e.Method, e.Message)
}

// channelConflict turns the node's "already exists" rejection into a ChannelExistsError.
func channelConflict(err error) error {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}

	m := channelExistsPattern.FindStringSubmatch(rpcErr.Message)
	if m == nil {
		return err
	}
	return &ports.ChannelExistsError{ChannelID: m[1], Message: rpcErr.Error()}
}
