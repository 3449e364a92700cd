package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/barok/wactl/internal/engine"
	"github.com/barok/wactl/internal/observability"
)

const (
	registrationOutcomeSuccess = "success"
	registrationOutcomeExists  = "already_registered"
	registrationOutcomeInit    = "engine_init_error"
	registrationOutcomeTimeout = "timeout"
)

// Coordinator reacts to protocol engine events and drives session state
// transitions. It is the only component that mutates session state; for any
// one session its handlers run serialized on a single goroutine, while
// different sessions progress concurrently.
type Coordinator struct {
	name     string
	registry *Registry
	store    Store
	dialer   engine.Dialer

	terminate    func(code int)
	closeTimeout time.Duration
}

func NewCoordinator(name string, registry *Registry, store Store, dialer engine.Dialer) *Coordinator {
	return &Coordinator{
		name:         name,
		registry:     registry,
		store:        store,
		dialer:       dialer,
		terminate:    os.Exit,
		closeTimeout: 30 * time.Second,
	}
}

// SetTerminationHook replaces the process-exit call used by Reset. Tests
// observe reset through this hook instead of an actual exit.
func (c *Coordinator) SetTerminationHook(fn func(code int)) {
	if fn != nil {
		c.terminate = fn
	}
}

// Registry exposes the registry for query endpoints.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Register reserves the account slot, dials the protocol engine, and blocks
// until the first successful handshake or a fatal init outcome. It does not
// wait for full readiness; later lifecycle events arrive asynchronously on
// the per-session event loop.
//
// Cancel via ctx: on expiry the partially initialized session is discarded,
// the engine released, and ErrRegistrationTimeout returned. The account id
// is free for a retry on every failure path.
func (c *Coordinator) Register(ctx context.Context, accountID string) error {
	start := time.Now()
	sess, err := c.registry.TryRegister(accountID)
	if err != nil {
		observability.RecordRegistration(c.name, registrationOutcomeExists, time.Since(start))
		return err
	}
	attempt := uuid.NewString()
	log.Info().Str("account", accountID).Str("attempt", attempt).Msg("registering new client")

	credential, err := c.store.Load(accountID)
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			// A broken record must not block registration; fall back to a
			// fresh token login.
			log.Warn().Str("account", accountID).Err(err).Msg("credential load failed, starting cold")
		}
		credential = nil
	} else {
		log.Info().Str("account", accountID).Msg("loading session from storage")
	}

	eng, err := c.dialer.Dial(ctx, accountID, credential)
	if err != nil {
		c.registry.Remove(accountID)
		c.updateActiveGauge()
		observability.RecordRegistration(c.name, registrationOutcomeInit, time.Since(start))
		return fmt.Errorf("%w: %v", ErrEngineInit, err)
	}
	sess.attachEngine(eng)

	for {
		select {
		case <-ctx.Done():
			c.registry.Remove(accountID)
			c.updateActiveGauge()
			c.releaseEngine(accountID, eng)
			observability.RecordRegistration(c.name, registrationOutcomeTimeout, time.Since(start))
			return ErrRegistrationTimeout
		case ev, ok := <-eng.Events():
			if !ok {
				c.registry.Remove(accountID)
				c.updateActiveGauge()
				c.releaseEngine(accountID, eng)
				observability.RecordRegistration(c.name, registrationOutcomeInit, time.Since(start))
				return fmt.Errorf("%w: event stream closed during init", ErrEngineInit)
			}
			observability.RecordEngineEvent(c.name, string(ev.Kind))
			switch ev.Kind {
			case engine.KindHandshake:
				c.updateActiveGauge()
				observability.RecordRegistration(c.name, registrationOutcomeSuccess, time.Since(start))
				log.Info().Str("account", accountID).Str("attempt", attempt).Msg("handshake complete")
				go c.run(sess, eng)
				return nil
			case engine.KindInitFailed, engine.KindAuthFailure, engine.KindDisconnected:
				if err := c.store.Delete(accountID); err != nil {
					log.Warn().Str("account", accountID).Err(err).Msg("credential delete failed")
				}
				c.registry.Remove(accountID)
				c.updateActiveGauge()
				c.releaseEngine(accountID, eng)
				observability.RecordRegistration(c.name, registrationOutcomeInit, time.Since(start))
				return fmt.Errorf("%w: %s", ErrEngineInit, ev.Reason)
			default:
				// Engines may issue a token or restore credentials before
				// the handshake settles.
				c.apply(sess, ev)
			}
		}
	}
}

// run is the per-session event loop. One goroutine per session keeps
// handlers for that session serialized.
func (c *Coordinator) run(sess *Session, eng engine.Engine) {
	for ev := range eng.Events() {
		observability.RecordEngineEvent(c.name, string(ev.Kind))
		if terminal := c.apply(sess, ev); terminal {
			return
		}
	}
	// Stream ended without a terminal event; treat as a disconnect.
	c.teardown(sess, StateDisconnected, "event stream closed")
}

// apply performs one state transition. Returns true when the session
// reached a terminal state and the event loop must stop.
func (c *Coordinator) apply(sess *Session, ev engine.Event) bool {
	switch ev.Kind {
	case engine.KindTokenIssued:
		if sess.storeToken(ev.Token) {
			log.Info().Str("account", sess.AccountID).Msg("login token issued, waiting for scan")
		} else {
			log.Debug().Str("account", sess.AccountID).Str("state", sess.State().String()).Msg("dropping stale token")
		}
	case engine.KindAuthenticated:
		sess.markAuthenticated(ev.Credential)
		log.Info().Str("account", sess.AccountID).Msg("authentication success")
		if err := c.store.Save(sess.AccountID, ev.Credential); err != nil {
			// The session stays authenticated in memory; a crash before the
			// next successful save forces a fresh token scan.
			log.Error().Str("account", sess.AccountID).Err(err).Msg("credential persist failed")
		}
	case engine.KindReady:
		sess.markReady()
		log.Info().Str("account", sess.AccountID).Msg("client is ready")
	case engine.KindAuthFailure:
		log.Error().Str("account", sess.AccountID).Str("reason", ev.Reason).Msg("authentication failure")
		c.teardown(sess, StateAuthFailed, ev.Reason)
		return true
	case engine.KindDisconnected:
		log.Warn().Str("account", sess.AccountID).Str("reason", ev.Reason).Msg("client disconnected")
		c.teardown(sess, StateDisconnected, ev.Reason)
		return true
	case engine.KindHandshake:
		// Duplicate handshake after registration settled; nothing to do.
	}
	return false
}

// teardown runs the terminal sequence: delete the credential record, remove
// the session from the registry, then release the engine asynchronously.
// Release failures are logged and swallowed so a stuck engine can never
// block re-registration.
func (c *Coordinator) teardown(sess *Session, terminal State, reason string) {
	eng := sess.engineHandle()
	sess.markTerminal(terminal)
	if err := c.store.Delete(sess.AccountID); err != nil {
		log.Warn().Str("account", sess.AccountID).Err(err).Msg("credential delete failed")
	}
	c.registry.Remove(sess.AccountID)
	c.updateActiveGauge()
	if eng != nil {
		c.releaseEngine(sess.AccountID, eng)
	}
	log.Info().
		Str("account", sess.AccountID).
		Str("state", terminal.String()).
		Str("reason", reason).
		Msg("session removed")
}

func (c *Coordinator) releaseEngine(accountID string, eng engine.Engine) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
		defer cancel()
		if err := eng.Close(ctx); err != nil {
			log.Warn().Str("account", accountID).Err(err).Msg("engine release failed")
		}
	}()
}

// Reset deletes the stored credential of a ready session and terminates the
// process so the supervisor restarts it with a clean engine. Full-process
// restart is the documented teardown strategy; there is no in-place engine
// quiesce.
func (c *Coordinator) Reset(accountID string) error {
	sess, ok := c.registry.Get(accountID)
	if !ok {
		return ErrNotFound
	}
	if sess.State() != StateReady {
		return fmt.Errorf("%w: state is %s", ErrResetNotAllowed, sess.State())
	}
	if _, err := c.store.Load(accountID); err != nil {
		return err
	}
	if err := c.store.Delete(accountID); err != nil {
		return err
	}
	log.Warn().Str("account", accountID).Msg("credential removed, shutting down for clean restart")
	c.terminate(1)
	return nil
}

// SendText delegates a message send to the account's engine. The session
// must be ready.
func (c *Coordinator) SendText(ctx context.Context, accountID, to, body string) (string, error) {
	eng, err := c.readyEngine(accountID)
	if err != nil {
		return "", err
	}
	return eng.SendText(ctx, to, body)
}

// DeviceInfo delegates a device query to the account's engine. The session
// must be ready.
func (c *Coordinator) DeviceInfo(ctx context.Context, accountID string) (engine.DeviceInfo, error) {
	eng, err := c.readyEngine(accountID)
	if err != nil {
		return engine.DeviceInfo{}, err
	}
	return eng.DeviceInfo(ctx)
}

func (c *Coordinator) readyEngine(accountID string) (engine.Engine, error) {
	sess, ok := c.registry.Get(accountID)
	if !ok {
		return nil, ErrNotFound
	}
	if !sess.Ready() {
		return nil, fmt.Errorf("%w: state is %s", ErrNotReady, sess.State())
	}
	eng := sess.engineHandle()
	if eng == nil {
		return nil, ErrNotReady
	}
	return eng, nil
}

func (c *Coordinator) updateActiveGauge() {
	observability.SetActiveSessions(c.name, c.registry.Len())
}
