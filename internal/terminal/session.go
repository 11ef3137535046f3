// Package terminal implements the archive command engine: one session owns
// a command registry, a dispatcher that turns raw input lines into handler
// invocations, and an ordinal index cache scoped to that session.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/libraryterminal/archive/internal/economy"
	"github.com/libraryterminal/archive/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore   = errors.New("document store is required")
	errMissingEconomy = errors.New("economy service is required")
	noOpLogger        = zap.NewNop()
)

// privilegedPrefix introduces the two-token "dm <name>" command form. The
// dispatcher resolves these keys for any caller; there is no authorization
// behind the naming convention.
const privilegedPrefix = "dm"

// HandlerFunc executes one command. The argument string is the raw
// remainder of the input line. Recoverable conditions (usage mistakes,
// unknown ordinals, insufficient funds) come back as message text; a
// returned error always means a store-layer failure and propagates uncaught.
type HandlerFunc func(ctx context.Context, arg string) (string, error)

// Event kinds published when privileged commands change ambient state.
const (
	EventKindTemperature = "temperature"
	EventKindBroadcast   = "broadcast"
)

// Event describes an ambient-state change observable by other clients.
type Event struct {
	Kind string
	Text string
	At   time.Time
}

// EventSink receives events published by privileged handlers.
type EventSink func(Event)

// Config captures the dependencies of one terminal session.
type Config struct {
	Store   *store.Store
	Economy *economy.Service
	Clock   func() time.Time
	Logger  *zap.Logger
	Events  EventSink
}

// Session is the per-client command engine: dispatcher, registry, and
// ordinal cache. Sessions share the store but never the cache.
type Session struct {
	store    *store.Store
	economy  *economy.Service
	cache    *IndexCache
	clock    func() time.Time
	logger   *zap.Logger
	events   EventSink
	commands map[string]HandlerFunc
}

// NewSession constructs a session with the full command registry.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Economy == nil {
		return nil, errMissingEconomy
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	session := &Session{
		store:    cfg.Store,
		economy:  cfg.Economy,
		cache:    NewIndexCache(cfg.Store),
		clock:    clock,
		logger:   logger,
		events:   cfg.Events,
		commands: make(map[string]HandlerFunc),
	}
	session.registerCommands()
	return session, nil
}

// Dispatch parses one input line and runs the matching handler. Command
// names match case-insensitively; arguments pass through verbatim. An
// unrecognized command names the offending head token. Empty output means
// the surface should emit nothing.
func (s *Session) Dispatch(ctx context.Context, line string) (string, error) {
	head, remainder := splitToken(line)
	if head == "" {
		return "", nil
	}

	key := strings.ToLower(head)
	if key == privilegedPrefix {
		sub, subRemainder := splitToken(remainder)
		if sub != "" {
			key = privilegedPrefix + " " + strings.ToLower(sub)
			remainder = subRemainder
		}
	}

	handler, ok := s.commands[key]
	if !ok {
		return fmt.Sprintf("Unknown incantation: '%s'", head), nil
	}

	output, err := handler(ctx, remainder)
	if err != nil {
		s.logger.Error("command handler failed",
			zap.String("command", key),
			zap.Error(err))
		return "", err
	}
	return output, nil
}

// InitialLoad renders the stored notes and inventory, warming the ordinal
// caches for both collections as a side effect.
func (s *Session) InitialLoad(ctx context.Context) (string, error) {
	var b strings.Builder
	b.WriteString("Loading stored glyphs...\n\n")

	notes, err := s.cache.Refresh(ctx, store.CollectionNotes)
	if err != nil {
		return "", err
	}
	b.WriteString("Notes:\n")
	b.WriteString(renderListing(notes, renderNoteLine))

	inventory, err := s.cache.Refresh(ctx, store.CollectionInventory)
	if err != nil {
		return "", err
	}
	b.WriteString("\n\nInventory:\n")
	b.WriteString(renderListing(inventory, renderInventoryLine))

	b.WriteString("\n\nType 'help' or 'dm help' for commands.")
	return b.String(), nil
}

func (s *Session) publish(kind, text string) {
	if s.events == nil {
		return
	}
	s.events(Event{Kind: kind, Text: text, At: s.clock().UTC()})
}

func (s *Session) nowMillis() int64 {
	return s.clock().UTC().UnixMilli()
}

// splitToken separates the first whitespace-delimited token from the rest
// of the line. Interior whitespace of the remainder is preserved so
// argument text round-trips untouched.
func splitToken(input string) (string, string) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ""
	}
	boundary := strings.IndexFunc(trimmed, unicode.IsSpace)
	if boundary < 0 {
		return trimmed, ""
	}
	return trimmed[:boundary], strings.TrimSpace(trimmed[boundary:])
}
