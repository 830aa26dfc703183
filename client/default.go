package client

import (
	"errors"
	"sync/atomic"
)

// ErrNoDefaultClient is returned by Default before SetDefault has been called.
var ErrNoDefaultClient = errors.New("client: no default client set")

var defaultClient atomic.Pointer[Client]

// SetDefault installs c as the process-wide client for callers that cannot
// have one passed in. Passing nil removes it.
func SetDefault(c *Client) {
	defaultClient.Store(c)
}

func Default() (*Client, error) {
	if c := defaultClient.Load(); c != nil {
		return c, nil
	}
	return nil, ErrNoDefaultClient
}

// MustDefault is Default for program setup code. It panics when no default
// client is set.
func MustDefault() *Client {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}
