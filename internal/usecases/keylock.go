package usecases

import (
	"strconv"
	"strings"
	"sync"
)

// keyedMutex serialises work per key and drops idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func channelKey(userAddress string, chainID uint64, tokenAddress string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(userAddress))
	b.WriteByte('/')
	b.WriteString(strings.ToLower(tokenAddress))
	b.WriteByte('@')
	b.WriteString(strconv.FormatUint(chainID, 10))
	return b.String()
}
