package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateSessionReturnsTokenAndBanner(t *testing.T) {
	environment := newTestEnvironment(t)

	payload := environment.createSession(t, "Rowan")
	if payload.SessionID == "" || payload.AccessToken == "" {
		t.Fatalf("expected session id and token, got %#v", payload)
	}
	if payload.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", payload.TokenType)
	}
	if !strings.Contains(payload.Banner, "Loading stored glyphs...") {
		t.Fatalf("expected loading banner, got %q", payload.Banner)
	}
}

func TestCreateSessionRejectsBlankPlayerName(t *testing.T) {
	environment := newTestEnvironment(t)

	request := httptest.NewRequest(http.MethodPost, "/session",
		bytes.NewReader([]byte(`{"player_name": "   "}`)))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	environment.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestCreateSessionRejectsMalformedBody(t *testing.T) {
	environment := newTestEnvironment(t)

	request := httptest.NewRequest(http.MethodPost, "/session",
		bytes.NewReader([]byte(`not json`)))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	environment.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestCommandRoundTripThroughHTTP(t *testing.T) {
	environment := newTestEnvironment(t)
	session := environment.createSession(t, "Rowan")

	output := commandOutput(t, environment.runCommand(t, session.AccessToken, "note carved in stone"))
	if output != "Note inscribed." {
		t.Fatalf("unexpected output: %q", output)
	}

	listing := commandOutput(t, environment.runCommand(t, session.AccessToken, "notes"))
	if !strings.Contains(listing, "carved in stone") {
		t.Fatalf("expected listing to include the note, got %q", listing)
	}
}

func TestCommandWithoutTokenIsUnauthorized(t *testing.T) {
	environment := newTestEnvironment(t)

	recorder := environment.runCommand(t, "", "notes")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestCommandWithGarbageTokenIsUnauthorized(t *testing.T) {
	environment := newTestEnvironment(t)

	recorder := environment.runCommand(t, "not-a-real-token", "notes")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestCommandAcceptsAccessTokenQueryParameter(t *testing.T) {
	environment := newTestEnvironment(t)
	session := environment.createSession(t, "Rowan")

	request := httptest.NewRequest(http.MethodPost,
		"/command?access_token="+session.AccessToken,
		bytes.NewReader([]byte(`{"line": "exit"}`)))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	environment.handler.ServeHTTP(recorder, request)

	if output := commandOutput(t, recorder); output != "Archive sealed. Float freely." {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestCommandForUnknownSessionReportsExpired(t *testing.T) {
	environment := newTestEnvironment(t)
	session := environment.createSession(t, "Rowan")

	// A valid token for a session this process no longer tracks, as after
	// a restart.
	other := newTestEnvironment(t)
	recorder := other.runCommand(t, session.AccessToken, "notes")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "session_expired") {
		t.Fatalf("expected session_expired, got %s", recorder.Body.String())
	}
}

func TestTwoSessionsShareTheArchive(t *testing.T) {
	environment := newTestEnvironment(t)
	first := environment.createSession(t, "Rowan")
	second := environment.createSession(t, "Marlowe")

	commandOutput(t, environment.runCommand(t, first.AccessToken, "note shared entry"))

	listing := commandOutput(t, environment.runCommand(t, second.AccessToken, "notes"))
	if !strings.Contains(listing, "shared entry") {
		t.Fatalf("expected the other session to see the note, got %q", listing)
	}
}
