package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/libraryterminal/archive/internal/auth"
	"github.com/libraryterminal/archive/internal/economy"
	"github.com/libraryterminal/archive/internal/store"
	"gorm.io/gorm"
)

type testEnvironment struct {
	handler    http.Handler
	sessions   *SessionManager
	dispatcher *EventDispatcher
	store      *store.Store
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:archive_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.Document{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	documents, err := store.New(store.Config{
		Database:   db,
		Clock:      time.Now,
		IDProvider: store.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	goldAndShop, err := economy.New(economy.Config{Store: documents, Clock: time.Now})
	if err != nil {
		t.Fatalf("failed to construct economy service: %v", err)
	}

	dispatcher := NewEventDispatcher()
	sessions, err := NewSessionManager(SessionManagerConfig{
		Store:      documents,
		Economy:    goldAndShop,
		IDProvider: store.NewUUIDProvider(),
		Events:     dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to construct session manager: %v", err)
	}

	tokens := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("server-test-secret"),
		Issuer:        "archive-terminal",
		Audience:      "archive-api",
	})

	handler, err := NewHTTPHandler(Dependencies{
		Sessions: sessions,
		Tokens:   tokens,
		Events:   dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	return &testEnvironment{
		handler:    handler,
		sessions:   sessions,
		dispatcher: dispatcher,
		store:      documents,
	}
}

// createSession drives POST /session and returns the decoded payload.
func (e *testEnvironment) createSession(t *testing.T, playerName string) sessionResponsePayload {
	t.Helper()

	body, err := json.Marshal(map[string]string{"player_name": playerName})
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload sessionResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode session response: %v", err)
	}
	return payload
}

// runCommand drives POST /command with the given bearer token.
func (e *testEnvironment) runCommand(t *testing.T, token string, line string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(map[string]string{"line": line})
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, "/command", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	e.handler.ServeHTTP(recorder, request)
	return recorder
}

func commandOutput(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload commandResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode command response: %v", err)
	}
	return payload.Output
}
