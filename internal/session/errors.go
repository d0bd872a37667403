package session

import "errors"

var (
	// ErrInitFailed wraps any failure while opening or connecting a
	// tenant transport.
	ErrInitFailed = errors.New("session initialization failed")

	// ErrReconnectExhausted marks a session dropped after the retry
	// budget ran out.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrAuthFailure marks a session whose credentials were rejected.
	ErrAuthFailure = errors.New("session authentication failure")

	// ErrNoSession means the tenant has no live session.
	ErrNoSession = errors.New("no active session")

	// ErrNotReady means the session exists but cannot carry messages yet.
	ErrNotReady = errors.New("session not ready")

	// ErrNoQR means no pairing code has been issued on the session.
	ErrNoQR = errors.New("no pairing code available")

	// ErrQRStale means the last pairing code aged out of the freshness
	// window and must not be presented.
	ErrQRStale = errors.New("pairing code expired")
)
