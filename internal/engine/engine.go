// Package engine defines the boundary to the third-party messaging protocol
// engine. wactl never speaks the wire protocol itself; it consumes typed
// lifecycle events from an Engine and delegates message and device operations
// to it.
package engine

import (
	"context"
	"errors"
)

var ErrEngineClosed = errors.New("engine: connection closed")

// EventKind labels one lifecycle event emitted by a protocol engine.
type EventKind string

const (
	// KindHandshake signals the first successful low-level connection
	// handshake. Registration unblocks on this event.
	KindHandshake EventKind = "handshake"
	// KindInitFailed signals a fatal initialization error before the
	// handshake completed. The connection is unusable.
	KindInitFailed EventKind = "init_failed"
	// KindTokenIssued carries a scannable login token. Re-issued tokens
	// replace the previous one.
	KindTokenIssued EventKind = "token"
	// KindAuthenticated carries the opaque credential blob enabling warm
	// reconnection on the next registration.
	KindAuthenticated EventKind = "authenticated"
	// KindReady signals the connection is fully usable for messaging.
	KindReady EventKind = "ready"
	// KindAuthFailure signals credential restore or token login failed.
	KindAuthFailure EventKind = "auth_failure"
	// KindDisconnected signals the connection dropped.
	KindDisconnected EventKind = "disconnected"
)

// Event is one lifecycle notification from a protocol engine. Only the
// fields relevant to the kind are populated.
type Event struct {
	Kind       EventKind
	Token      string
	Credential []byte
	Reason     string
}

// DeviceInfo describes the device backing one authenticated connection.
type DeviceInfo struct {
	ConnectionID string `json:"connection_id"`
	PushName     string `json:"push_name"`
	Platform     string `json:"platform"`
	Version      string `json:"version"`
}

// Engine is one live protocol connection for a single account. The events
// channel is closed when the connection is torn down.
type Engine interface {
	Events() <-chan Event
	SendText(ctx context.Context, to, body string) (string, error)
	DeviceInfo(ctx context.Context) (DeviceInfo, error)
	Close(ctx context.Context) error
}

// Dialer starts one protocol connection for an account. A non-nil credential
// requests a warm restore of a previously authenticated session.
type Dialer interface {
	Dial(ctx context.Context, accountID string, credential []byte) (Engine, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, accountID string, credential []byte) (Engine, error)

func (f DialerFunc) Dial(ctx context.Context, accountID string, credential []byte) (Engine, error) {
	return f(ctx, accountID, credential)
}
