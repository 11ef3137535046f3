package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEventStreamDeliversPrivilegedAnnouncements(t *testing.T) {
	environment := newTestEnvironment(t)
	announcer := environment.createSession(t, "Rowan")
	listener := environment.createSession(t, "Marlowe")

	ctx, cancel := context.WithCancel(context.Background())
	request := httptest.NewRequest(http.MethodGet,
		"/events?access_token="+listener.AccessToken, nil).WithContext(ctx)
	recorder := httptest.NewRecorder()

	finished := make(chan struct{})
	go func() {
		environment.handler.ServeHTTP(recorder, request)
		close(finished)
	}()

	// Let the stream register its subscriber before announcing.
	deadline := time.Now().Add(time.Second)
	for {
		environment.dispatcher.mu.RLock()
		subscribed := len(environment.dispatcher.subscribers) > 0
		environment.dispatcher.mu.RUnlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("event stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	output := commandOutput(t, environment.runCommand(t, announcer.AccessToken, "dm broadcast the gates open at dawn"))
	if !strings.Contains(output, "Broadcast set:") {
		t.Fatalf("unexpected output: %q", output)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("event stream did not terminate on cancellation")
	}

	body := recorder.Body.String()
	if !strings.Contains(body, "event: archive-event") {
		t.Fatalf("expected an archive event frame, got %q", body)
	}
	if !strings.Contains(body, `"kind":"broadcast"`) {
		t.Fatalf("expected a broadcast event payload, got %q", body)
	}
	if !strings.Contains(body, "the gates open at dawn") {
		t.Fatalf("expected the announcement text, got %q", body)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "text/event-stream" {
		t.Fatalf("unexpected content type %q", contentType)
	}
}

func TestEventStreamRequiresToken(t *testing.T) {
	environment := newTestEnvironment(t)

	request := httptest.NewRequest(http.MethodGet, "/events", nil)
	recorder := httptest.NewRecorder()
	environment.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
}
