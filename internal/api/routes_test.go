package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/barok/wactl/internal/engine"
	"github.com/barok/wactl/internal/session"
	"github.com/barok/wactl/internal/testutil/enginestub"
	"github.com/barok/wactl/internal/testutil/testlog"
)

const testAccount = "6281234567@c.us"

type fixture struct {
	server *Server
	coord  *session.Coordinator
	store  *session.FileStore
	dialer *enginestub.Dialer
}

func newFixture(t *testing.T, dialer *enginestub.Dialer) *fixture {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	coord := session.NewCoordinator("wactl-test", session.NewRegistry(), store, dialer)
	coord.SetTerminationHook(func(int) {
		t.Fatal("unexpected process termination")
	})
	server := NewServer(Config{
		Name:            "wactl-test",
		Addr:            ":0",
		CorsOrigins:     []string{"*"},
		AccountDomain:   "c.us",
		RegisterTimeout: 2 * time.Second,
	}, coord)
	return &fixture{server: server, coord: coord, store: store, dialer: dialer}
}

func (f *fixture) do(t *testing.T, method, target string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rr, req)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s %s response %q: %v", method, target, rr.Body.String(), err)
	}
	return rr.Code, body
}

func (f *fixture) eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached: %s", msg)
}

func handshakeDialer() *enginestub.Dialer {
	return &enginestub.Dialer{Script: []engine.Event{{Kind: engine.KindHandshake}}}
}

func (f *fixture) makeReady(t *testing.T) *enginestub.Stub {
	t.Helper()
	code, body := f.do(t, http.MethodGet, "/api/registration?phone=6281234567")
	if code != http.StatusOK || body["info"] != true {
		t.Fatalf("registration failed: code=%d body=%v", code, body)
	}
	stub := f.dialer.Last()
	stub.Emit(engine.Event{Kind: engine.KindAuthenticated, Credential: []byte("cred")})
	stub.Emit(engine.Event{Kind: engine.KindReady})
	f.eventually(t, func() bool {
		return f.coord.Registry().SnapshotReadiness()[testAccount]
	}, "session ready")
	return stub
}

func TestRegistrationMissingPhone(t *testing.T) {
	f := newFixture(t, handshakeDialer())

	code, body := f.do(t, http.MethodGet, "/api/registration")
	if code != http.StatusBadRequest {
		t.Fatalf("unexpected code: %d", code)
	}
	if body["info"] != false || body["status_code"] != "MISSING_REQUIRED_ARGS" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestRegistrationSuccessThenConflict(t *testing.T) {
	f := newFixture(t, handshakeDialer())

	code, body := f.do(t, http.MethodGet, "/api/registration?phone=6281234567")
	if code != http.StatusOK {
		t.Fatalf("unexpected code: %d body=%v", code, body)
	}
	if body["info"] != true || body["status"] != "Registration Success" {
		t.Fatalf("unexpected body: %v", body)
	}

	code, body = f.do(t, http.MethodGet, "/api/registration?phone=6281234567")
	if code != http.StatusBadRequest {
		t.Fatalf("unexpected conflict code: %d", code)
	}
	if body["info"] != false || body["status_code"] != "CLIENT_IS_REGISTERED" {
		t.Fatalf("unexpected conflict body: %v", body)
	}
}

func TestRegistrationEngineFailure(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "session"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	coord := session.NewCoordinator("wactl-test", session.NewRegistry(), store, enginestub.RefusingDialer())
	server := NewServer(Config{
		Name:            "wactl-test",
		AccountDomain:   "c.us",
		RegisterTimeout: time.Second,
	}, coord)

	req := httptest.NewRequest(http.MethodGet, "/api/registration?phone=6281234567", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusOK || body["info"] != false {
		t.Fatalf("unexpected response: code=%d body=%v", rr.Code, body)
	}
	if body["status"] != "Unable to register client, failed to connect to the host." {
		t.Fatalf("unexpected status: %v", body["status"])
	}
}

func TestQRLifecycle(t *testing.T) {
	f := newFixture(t, handshakeDialer())

	// Unknown account.
	code, body := f.do(t, http.MethodGet, "/api/qr?phone=6281234567")
	if code != http.StatusBadRequest || body["status"] != "Client is not registered." {
		t.Fatalf("unexpected unknown response: code=%d body=%v", code, body)
	}

	if code, body = f.do(t, http.MethodGet, "/api/registration?phone=6281234567"); code != http.StatusOK {
		t.Fatalf("registration: code=%d body=%v", code, body)
	}

	// Registered but no token issued yet.
	code, body = f.do(t, http.MethodGet, "/api/qr?phone=6281234567")
	if code != http.StatusOK || body["info"] != false {
		t.Fatalf("unexpected pending response: code=%d body=%v", code, body)
	}

	f.dialer.Last().Emit(engine.Event{Kind: engine.KindTokenIssued, Token: "scan-me"})
	f.eventually(t, func() bool {
		return f.coord.Registry().SnapshotTokens()[testAccount] != ""
	}, "token issued")

	code, body = f.do(t, http.MethodGet, "/api/qr?phone=6281234567")
	if code != http.StatusOK || body["info"] != true {
		t.Fatalf("unexpected token response: code=%d body=%v", code, body)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data payload: %v", body)
	}
	if data["mime"] != "image/png" {
		t.Fatalf("unexpected mime: %v", data["mime"])
	}
	png, err := base64.StdEncoding.DecodeString(data["qr"].(string))
	if err != nil || len(png) == 0 {
		t.Fatalf("qr payload not base64 png: %v", err)
	}

	// Ready clears the token.
	f.dialer.Last().Emit(engine.Event{Kind: engine.KindAuthenticated, Credential: []byte("cred")})
	f.dialer.Last().Emit(engine.Event{Kind: engine.KindReady})
	f.eventually(t, func() bool {
		return f.coord.Registry().SnapshotReadiness()[testAccount]
	}, "session ready")

	code, body = f.do(t, http.MethodGet, "/api/qr?phone=6281234567")
	if code != http.StatusOK || body["status"] != "Client is ready, no scan needed." {
		t.Fatalf("unexpected ready response: code=%d body=%v", code, body)
	}
}

func TestMessageEndpoint(t *testing.T) {
	f := newFixture(t, handshakeDialer())
	stub := f.makeReady(t)

	target := "/api/message?phone=6281234567&to=628999&text=" + url.QueryEscape("hello there")
	code, body := f.do(t, http.MethodGet, target)
	if code != http.StatusOK || body["info"] != true {
		t.Fatalf("unexpected response: code=%d body=%v", code, body)
	}
	data := body["data"].(map[string]any)
	if data["message_id"] == "" {
		t.Fatalf("missing message id: %v", body)
	}
	sent := stub.Sent()
	if len(sent) != 1 || sent[0].To != "628999@c.us" || sent[0].Body != "hello there" {
		t.Fatalf("unexpected sent log: %+v", sent)
	}
}

func TestMessageRequiresArgsAndReadiness(t *testing.T) {
	f := newFixture(t, handshakeDialer())

	code, body := f.do(t, http.MethodPost, "/api/message?phone=6281234567")
	if code != http.StatusBadRequest || body["status_code"] != "MISSING_REQUIRED_ARGS" {
		t.Fatalf("unexpected missing-args response: code=%d body=%v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/api/message?phone=6281234567&to=628999&text=hi")
	if code != http.StatusBadRequest || body["status"] != "Client is not registered." {
		t.Fatalf("unexpected unregistered response: code=%d body=%v", code, body)
	}

	if code, body = f.do(t, http.MethodGet, "/api/registration?phone=6281234567"); code != http.StatusOK {
		t.Fatalf("registration: code=%d body=%v", code, body)
	}
	code, body = f.do(t, http.MethodGet, "/api/message?phone=6281234567&to=628999&text=hi")
	if code != http.StatusBadRequest || body["status"] != "Client is not ready." {
		t.Fatalf("unexpected not-ready response: code=%d body=%v", code, body)
	}
}

func TestDeviceEndpoint(t *testing.T) {
	f := newFixture(t, handshakeDialer())
	stub := f.makeReady(t)

	code, body := f.do(t, http.MethodGet, "/api/device?phone=6281234567")
	if code != http.StatusOK || body["info"] != true {
		t.Fatalf("unexpected response: code=%d body=%v", code, body)
	}
	data := body["data"].(map[string]any)
	if data["connection_id"] != stub.Info.ConnectionID {
		t.Fatalf("unexpected device payload: %v", data)
	}
}

func TestResetEndpoint(t *testing.T) {
	f := newFixture(t, handshakeDialer())

	code, body := f.do(t, http.MethodPost, "/api/device/reset")
	if code != http.StatusBadRequest || body["status_code"] != "MISSING_REQUIRED_ARGS" {
		t.Fatalf("unexpected missing-args response: code=%d body=%v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/api/device/reset?phone=6281234567")
	if code != http.StatusBadRequest || body["status"] != "Reset a non ready client is illegal." {
		t.Fatalf("unexpected unknown-account response: code=%d body=%v", code, body)
	}

	f.makeReady(t)
	var exitCode int
	f.coord.SetTerminationHook(func(code int) { exitCode = code })

	code, body = f.do(t, http.MethodPost, "/api/device/reset?phone=6281234567")
	if code != http.StatusOK || body["info"] != true {
		t.Fatalf("unexpected reset response: code=%d body=%v", code, body)
	}
	if exitCode != 1 {
		t.Fatalf("expected termination with code 1, got %d", exitCode)
	}
	if f.store.Has(testAccount) {
		t.Fatal("credential record must be deleted on reset")
	}
}

func TestListUserReflectsLifecycle(t *testing.T) {
	f := newFixture(t, handshakeDialer())

	code, body := f.do(t, http.MethodGet, "/api/list-user")
	if code != http.StatusOK {
		t.Fatalf("unexpected code: %d", code)
	}
	if ids := body["data"].([]any); len(ids) != 0 {
		t.Fatalf("expected empty list, got %v", ids)
	}

	if code, body = f.do(t, http.MethodGet, "/api/registration?phone=6281234567"); code != http.StatusOK {
		t.Fatalf("registration: code=%d body=%v", code, body)
	}
	_, body = f.do(t, http.MethodGet, "/api/list-user")
	ids := body["data"].([]any)
	if len(ids) != 1 || ids[0] != testAccount {
		t.Fatalf("unexpected ids: %v", ids)
	}

	// Auth failure while awaiting the scan clears everything.
	f.dialer.Last().Emit(engine.Event{Kind: engine.KindTokenIssued, Token: "scan-me"})
	f.dialer.Last().Emit(engine.Event{Kind: engine.KindAuthFailure, Reason: "scan rejected"})
	f.eventually(t, func() bool {
		_, ok := f.coord.Registry().Get(testAccount)
		return !ok
	}, "session removed")

	_, body = f.do(t, http.MethodGet, "/api/list-user")
	if ids := body["data"].([]any); len(ids) != 0 {
		t.Fatalf("expected empty list after auth failure, got %v", ids)
	}
	if f.store.Has(testAccount) {
		t.Fatal("credential record must be absent after auth failure")
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, handshakeDialer())

	code, body := f.do(t, http.MethodGet, "/api/health")
	if code != http.StatusOK || body["info"] != true || body["status"] != "server is up" {
		t.Fatalf("unexpected health response: code=%d body=%v", code, body)
	}

	code, body = f.do(t, http.MethodGet, "/ready")
	if code != http.StatusOK || body["ready"] != true {
		t.Fatalf("unexpected ready response: code=%d body=%v", code, body)
	}
}
