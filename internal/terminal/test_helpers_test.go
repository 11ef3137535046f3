package terminal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/libraryterminal/archive/internal/economy"
	"github.com/libraryterminal/archive/internal/store"
	"gorm.io/gorm"
)

// tickingClock hands out strictly increasing instants so every stored
// document gets a distinct timestamp.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestSession(t *testing.T) (*Session, *store.Store, *gorm.DB, *eventRecorder) {
	t.Helper()

	dsn := fmt.Sprintf("file:archive_terminal_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.Document{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &tickingClock{now: time.UnixMilli(1700000000000).UTC()}

	documents, err := store.New(store.Config{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: store.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	goldAndShop, err := economy.New(economy.Config{Store: documents, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct economy service: %v", err)
	}

	recorder := &eventRecorder{}
	session, err := NewSession(Config{
		Store:   documents,
		Economy: goldAndShop,
		Clock:   clock.Now,
		Events:  recorder.record,
	})
	if err != nil {
		t.Fatalf("failed to construct session: %v", err)
	}
	return session, documents, db, recorder
}

func mustDispatch(t *testing.T, session *Session, line string) string {
	t.Helper()
	output, err := session.Dispatch(context.Background(), line)
	if err != nil {
		t.Fatalf("unexpected dispatch error for %q: %v", line, err)
	}
	return output
}

func countDocuments(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&store.Document{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count documents: %v", err)
	}
	return count
}
