package domain

import (
	"errors"
	"fmt"
)

// Sentinel kinds for chain errors. Match with errors.Is.
var (
	ErrInvalidAddress     = errors.New("invalid address")
	ErrRateLimited        = errors.New("rate limited")
	ErrNetwork            = errors.New("network error")
	ErrAlreadyInitialized = errors.New("adapter already initialized")
	ErrNotInitialized     = errors.New("adapter not initialized")
)

// ChainError is a typed adapter failure carrying the chain it came from.
// It matches its Kind sentinel through errors.Is and unwraps to Cause.
type ChainError struct {
	Chain Chain
	Kind  error // one of the sentinels above
	Cause error
	Msg   string
}

func (e *ChainError) Error() string {
	msg := e.Msg
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Chain, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Chain, msg)
}

func (e *ChainError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Kind
}

func (e *ChainError) Is(target error) bool {
	return target == e.Kind
}

// NewInvalidAddressError reports a syntactically invalid address. No
// network call was attempted.
func NewInvalidAddressError(chain Chain, address string) *ChainError {
	return &ChainError{
		Chain: chain,
		Kind:  ErrInvalidAddress,
		Msg:   fmt.Sprintf("invalid address %q", address),
	}
}

// NewRateLimitError reports upstream throttling after the retry budget was
// exhausted.
func NewRateLimitError(chain Chain, cause error) *ChainError {
	return &ChainError{Chain: chain, Kind: ErrRateLimited, Cause: cause}
}

// NewNetworkError wraps any other upstream or transport failure.
func NewNetworkError(chain Chain, cause error) *ChainError {
	return &ChainError{Chain: chain, Kind: ErrNetwork, Cause: cause}
}
