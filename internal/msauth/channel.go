package msauth

import (
	"errors"
	"strings"
	"sync"
)

// AuthResult carries the outcome of one interactive authorization round trip.
type AuthResult struct {
	Code string
	Err  error
}

// InteractiveAuthChannel delivers authorization codes from wherever the user
// completes sign-in back to the Manager. The production implementation is the
// HTTP callback route; tests substitute an in-process fake.
type InteractiveAuthChannel interface {
	// Begin registers a pending authorization identified by state. The
	// returned channel receives exactly one result.
	Begin(state, authURL string) (<-chan AuthResult, error)
	// Cancel abandons a pending authorization. Delivering to a cancelled
	// state is a no-op.
	Cancel(state string)
}

// CallbackChannel routes OAuth redirect callbacks to waiting sign-in flows,
// keyed by the opaque state parameter.
type CallbackChannel struct {
	mu      sync.Mutex
	pending map[string]chan AuthResult
}

func NewCallbackChannel() *CallbackChannel {
	return &CallbackChannel{pending: make(map[string]chan AuthResult)}
}

func (c *CallbackChannel) Begin(state, authURL string) (<-chan AuthResult, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return nil, errors.New("authorization state is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[state]; exists {
		return nil, ErrAuthInProgress
	}
	ch := make(chan AuthResult, 1)
	c.pending[state] = ch
	return ch, nil
}

func (c *CallbackChannel) Cancel(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, state)
}

// Deliver hands a redirect callback to the flow that initiated it. The
// errCode and errDescription values come straight from the identity
// provider's error query parameters.
func (c *CallbackChannel) Deliver(state, code, errCode, errDescription string) error {
	c.mu.Lock()
	ch, ok := c.pending[state]
	if ok {
		delete(c.pending, state)
	}
	c.mu.Unlock()
	if !ok {
		return errors.New("no pending authorization for state")
	}

	switch {
	case errCode == "access_denied":
		ch <- AuthResult{Err: ErrAuthenticationCancelled}
	case errCode != "":
		msg := errCode
		if errDescription != "" {
			msg += ": " + errDescription
		}
		ch <- AuthResult{Err: errors.New("authorization failed: " + msg)}
	case strings.TrimSpace(code) == "":
		ch <- AuthResult{Err: errors.New("authorization callback missing code")}
	default:
		ch <- AuthResult{Code: code}
	}
	return nil
}
