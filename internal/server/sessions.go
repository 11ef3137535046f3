package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libraryterminal/archive/internal/economy"
	"github.com/libraryterminal/archive/internal/store"
	"github.com/libraryterminal/archive/internal/terminal"
	"go.uber.org/zap"
)

// ErrInvalidPlayerName indicates the session request carried no usable name.
var ErrInvalidPlayerName = errors.New("server: invalid player name")

const maxPlayerNameLength = 190

// SessionManagerConfig describes the dependencies shared by every session.
type SessionManagerConfig struct {
	Store      *store.Store
	Economy    *economy.Service
	IDProvider store.IDProvider
	Events     *EventDispatcher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// SessionManager creates and resolves per-client terminal sessions. Each
// session owns its dispatcher and ordinal cache; the store and economy are
// shared.
type SessionManager struct {
	store    *store.Store
	economy  *economy.Service
	ids      store.IDProvider
	events   *EventDispatcher
	clock    func() time.Time
	logger   *zap.Logger
	mu       sync.Mutex
	sessions map[string]*SessionRecord
}

// SessionRecord ties a session identifier to its terminal state.
type SessionRecord struct {
	ID         string
	PlayerName string
	CreatedAt  time.Time
	Terminal   *terminal.Session
}

// NewSessionManager constructs the manager.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server: document store required")
	}
	if cfg.Economy == nil {
		return nil, fmt.Errorf("server: economy service required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("server: id provider required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SessionManager{
		store:    cfg.Store,
		economy:  cfg.Economy,
		ids:      cfg.IDProvider,
		events:   cfg.Events,
		clock:    clock,
		logger:   logger,
		sessions: make(map[string]*SessionRecord),
	}, nil
}

// Create registers a new session for the named player and returns its
// record. The player name identifies the session in logs only; it grants
// nothing.
func (m *SessionManager) Create(playerName string) (*SessionRecord, error) {
	name := strings.TrimSpace(playerName)
	if name == "" || len(name) > maxPlayerNameLength {
		return nil, ErrInvalidPlayerName
	}

	id, err := m.ids.NewID()
	if err != nil {
		return nil, err
	}

	session, err := terminal.NewSession(terminal.Config{
		Store:   m.store,
		Economy: m.economy,
		Clock:   m.clock,
		Logger:  m.logger.With(zap.String("session_id", id)),
		Events:  m.publishEvent,
	})
	if err != nil {
		return nil, err
	}

	record := &SessionRecord{
		ID:         id,
		PlayerName: name,
		CreatedAt:  m.clock().UTC(),
		Terminal:   session,
	}

	m.mu.Lock()
	m.sessions[id] = record
	m.mu.Unlock()

	m.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("player_name", name))
	return record, nil
}

// Lookup resolves a session identifier to its record.
func (m *SessionManager) Lookup(sessionID string) (*SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[sessionID]
	return record, ok
}

func (m *SessionManager) publishEvent(event terminal.Event) {
	if m.events == nil {
		return
	}
	m.events.Publish(ArchiveEvent{
		Kind:      event.Kind,
		Text:      event.Text,
		Timestamp: event.At,
	})
}
