// Package enginestub provides a scripted protocol engine for tests. A stub
// preloads its event script into a buffered channel; tests can also emit
// events live to exercise asynchronous transitions.
package enginestub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/barok/wactl/internal/engine"
)

// Stub is one fake protocol connection.
type Stub struct {
	AccountID  string
	Credential []byte

	// Info is returned verbatim from DeviceInfo.
	Info engine.DeviceInfo
	// SendErr, when set, fails every SendText call.
	SendErr error
	// CloseErr, when set, is returned from Close.
	CloseErr error

	events     chan engine.Event
	emitClosed atomic.Bool

	closeOnce  sync.Once
	closed     chan struct{}
	closeCount atomic.Int32

	mu   sync.Mutex
	sent []SentMessage
}

// SentMessage records one SendText call.
type SentMessage struct {
	To   string
	Body string
	ID   string
}

func New(script ...engine.Event) *Stub {
	s := &Stub{
		events: make(chan engine.Event, 32),
		closed: make(chan struct{}),
		Info: engine.DeviceInfo{
			ConnectionID: uuid.NewString(),
			PushName:     "stub",
			Platform:     "test",
			Version:      "0.0.1",
		},
	}
	for _, ev := range script {
		s.events <- ev
	}
	return s
}

// Emit queues one more event for the consumer.
func (s *Stub) Emit(ev engine.Event) {
	s.events <- ev
}

// EndEvents closes the event stream, simulating an engine that went away
// without a terminal event.
func (s *Stub) EndEvents() {
	if s.emitClosed.CompareAndSwap(false, true) {
		close(s.events)
	}
}

func (s *Stub) Events() <-chan engine.Event {
	return s.events
}

func (s *Stub) SendText(ctx context.Context, to, body string) (string, error) {
	if s.SendErr != nil {
		return "", s.SendErr
	}
	select {
	case <-s.closed:
		return "", engine.ErrEngineClosed
	default:
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{To: to, Body: body, ID: id})
	s.mu.Unlock()
	return id, nil
}

// Sent returns a snapshot of recorded SendText calls.
func (s *Stub) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *Stub) DeviceInfo(ctx context.Context) (engine.DeviceInfo, error) {
	return s.Info, nil
}

func (s *Stub) Close(ctx context.Context) error {
	s.closeCount.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return s.CloseErr
}

// CloseCount reports how many times Close was called.
func (s *Stub) CloseCount() int {
	return int(s.closeCount.Load())
}

// Closed signals once Close has been called.
func (s *Stub) Closed() <-chan struct{} {
	return s.closed
}

// Dialer hands out stubs preloaded with Script. It records every dial so
// tests can inspect the credential passed for warm restores.
type Dialer struct {
	// Script is copied into each new stub.
	Script []engine.Event
	// DialErr, when set, fails every Dial call.
	DialErr error

	mu    sync.Mutex
	stubs []*Stub
}

var errDialRefused = errors.New("enginestub: dial refused")

func (d *Dialer) Dial(ctx context.Context, accountID string, credential []byte) (engine.Engine, error) {
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	stub := New(d.Script...)
	stub.AccountID = accountID
	stub.Credential = credential
	d.mu.Lock()
	d.stubs = append(d.stubs, stub)
	d.mu.Unlock()
	return stub, nil
}

// Last returns the most recently dialed stub.
func (d *Dialer) Last() *Stub {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.stubs) == 0 {
		return nil
	}
	return d.stubs[len(d.stubs)-1]
}

// Dials reports how many connections were dialed.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stubs)
}

// RefusingDialer always fails with a dial error.
func RefusingDialer() engine.Dialer {
	return engine.DialerFunc(func(ctx context.Context, accountID string, credential []byte) (engine.Engine, error) {
		return nil, errDialRefused
	})
}
