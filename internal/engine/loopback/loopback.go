// Package loopback is an in-process protocol engine used for development and
// smoke testing. It emits the full lifecycle sequence on a timer: handshake,
// then either a warm credential restore or a token scan that auto-completes
// after AuthDelay, then ready.
package loopback

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/barok/wactl/internal/engine"
)

const ProviderName = "loopback"

// Config tunes the simulated lifecycle timing.
type Config struct {
	HandshakeDelay time.Duration
	AuthDelay      time.Duration
}

func DefaultConfig() Config {
	return Config{
		HandshakeDelay: 50 * time.Millisecond,
		AuthDelay:      2 * time.Second,
	}
}

// Register installs the loopback provider with the given config.
func Register(cfg Config) {
	engine.RegisterProvider(ProviderName, Dialer(cfg))
}

// Dialer returns a loopback dialer with the given config.
func Dialer(cfg Config) engine.Dialer {
	if cfg.HandshakeDelay <= 0 {
		cfg.HandshakeDelay = DefaultConfig().HandshakeDelay
	}
	if cfg.AuthDelay <= 0 {
		cfg.AuthDelay = DefaultConfig().AuthDelay
	}
	return engine.DialerFunc(func(ctx context.Context, accountID string, credential []byte) (engine.Engine, error) {
		conn := &Conn{
			accountID:    accountID,
			connectionID: uuid.NewString(),
			events:       make(chan engine.Event, 8),
			done:         make(chan struct{}),
		}
		go conn.run(cfg, credential)
		return conn, nil
	})
}

// Conn is one simulated protocol connection.
type Conn struct {
	accountID    string
	connectionID string
	events       chan engine.Event

	closeOnce sync.Once
	done      chan struct{}
}

type storedCredential struct {
	AccountID    string `json:"account_id"`
	ConnectionID string `json:"connection_id"`
	IssuedAt     int64  `json:"issued_at"`
}

func (c *Conn) run(cfg Config, credential []byte) {
	defer close(c.events)

	if !c.emitAfter(cfg.HandshakeDelay, engine.Event{Kind: engine.KindHandshake}) {
		return
	}

	if len(credential) > 0 {
		var stored storedCredential
		if err := json.Unmarshal(credential, &stored); err != nil || stored.AccountID != c.accountID {
			c.emitAfter(0, engine.Event{Kind: engine.KindAuthFailure, Reason: "stored credential rejected"})
			return
		}
		if !c.emitAfter(0, engine.Event{Kind: engine.KindAuthenticated, Credential: credential}) {
			return
		}
		c.emitAfter(0, engine.Event{Kind: engine.KindReady})
		return
	}

	token := "loopback-scan:" + c.accountID + ":" + c.connectionID
	if !c.emitAfter(0, engine.Event{Kind: engine.KindTokenIssued, Token: token}) {
		return
	}

	fresh, _ := json.Marshal(storedCredential{
		AccountID:    c.accountID,
		ConnectionID: c.connectionID,
		IssuedAt:     time.Now().UnixMilli(),
	})
	if !c.emitAfter(cfg.AuthDelay, engine.Event{Kind: engine.KindAuthenticated, Credential: fresh}) {
		return
	}
	c.emitAfter(0, engine.Event{Kind: engine.KindReady})
}

func (c *Conn) emitAfter(d time.Duration, ev engine.Event) bool {
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.done:
			return false
		}
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) Events() <-chan engine.Event {
	return c.events
}

func (c *Conn) SendText(ctx context.Context, to, body string) (string, error) {
	select {
	case <-c.done:
		return "", engine.ErrEngineClosed
	default:
	}
	return uuid.NewString(), nil
}

func (c *Conn) DeviceInfo(ctx context.Context) (engine.DeviceInfo, error) {
	select {
	case <-c.done:
		return engine.DeviceInfo{}, engine.ErrEngineClosed
	default:
	}
	return engine.DeviceInfo{
		ConnectionID: c.connectionID,
		PushName:     "loopback",
		Platform:     "loopback",
		Version:      "0.0.1",
	}, nil
}

func (c *Conn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
