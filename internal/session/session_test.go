package session

import (
	"testing"

	"github.com/barok/wactl/internal/testutil/testlog"
)

func TestStateStrings(t *testing.T) {
	testlog.Start(t)

	cases := map[State]string{
		StateUnregistered:  "unregistered",
		StateConnecting:    "connecting",
		StateAwaitingToken: "awaiting_token",
		StateAuthenticated: "authenticated",
		StateReady:         "ready",
		StateDisconnected:  "disconnected",
		StateAuthFailed:    "auth_failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestStoreTokenTransitions(t *testing.T) {
	testlog.Start(t)

	sess := newSession("1@c.us")
	if !sess.storeToken("first") {
		t.Fatal("token from connecting must be accepted")
	}
	if sess.State() != StateAwaitingToken {
		t.Fatalf("unexpected state: %v", sess.State())
	}
	// Engines re-issue tokens while waiting for a scan.
	if !sess.storeToken("second") {
		t.Fatal("token re-issue must be accepted")
	}
	if sess.Token() != "second" {
		t.Fatalf("unexpected token: %q", sess.Token())
	}
}

func TestStaleTokenAfterReadyIsDropped(t *testing.T) {
	testlog.Start(t)

	sess := newSession("1@c.us")
	sess.markAuthenticated([]byte("cred"))
	sess.markReady()

	if sess.storeToken("late") {
		t.Fatal("token after ready must be dropped")
	}
	if sess.State() != StateReady {
		t.Fatalf("state must remain ready, got %v", sess.State())
	}
	if sess.Token() != "" {
		t.Fatalf("no pending token expected, got %q", sess.Token())
	}
}

func TestAuthenticatedClearsPendingToken(t *testing.T) {
	testlog.Start(t)

	sess := newSession("1@c.us")
	sess.storeToken("scan-me")
	sess.markAuthenticated([]byte("cred"))

	if sess.State() != StateAuthenticated {
		t.Fatalf("unexpected state: %v", sess.State())
	}
	if sess.Token() != "" {
		t.Fatalf("token must clear on authentication, got %q", sess.Token())
	}
}

func TestLateAuthenticatedKeepsReadyState(t *testing.T) {
	testlog.Start(t)

	sess := newSession("1@c.us")
	sess.markAuthenticated([]byte("old"))
	sess.markReady()

	sess.markAuthenticated([]byte("refreshed"))
	if sess.State() != StateReady {
		t.Fatalf("late authenticated must not regress ready, got %v", sess.State())
	}
}

func TestMarkTerminalDropsEngineHandle(t *testing.T) {
	testlog.Start(t)

	sess := newSession("1@c.us")
	sess.storeToken("scan-me")
	sess.markTerminal(StateDisconnected)

	if sess.State() != StateDisconnected {
		t.Fatalf("unexpected state: %v", sess.State())
	}
	if sess.engineHandle() != nil {
		t.Fatal("terminal session must not hold an engine handle")
	}
	if sess.Token() != "" {
		t.Fatalf("terminal session must not hold a token, got %q", sess.Token())
	}
}
