package auth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nerrad567/dashauth/internal/infrastructure/config"
	"github.com/nerrad567/dashauth/internal/infrastructure/database"
	"github.com/nerrad567/dashauth/migrations"
)

const testSecret = "unit-test-signing-secret-of-32-bytes!!"

// testStore opens a temporary SQLite database with every migration applied.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Migrator(migrations.FS).Up(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return NewSQLiteStore(db)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testHasher uses the minimum bcrypt cost to keep tests fast.
func testHasher() *Hasher {
	return NewHasher(bcrypt.MinCost)
}

// insertPrincipal stores a principal with the given password directly.
func insertPrincipal(t *testing.T, store Store, username, password string, role Role) *Principal {
	t.Helper()

	hash, err := testHasher().Hash(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	p := &Principal{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     username,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.InsertPrincipal(context.Background(), p); err != nil {
		t.Fatalf("inserting principal %s: %v", username, err)
	}
	return p
}

// eventLog collects recorded events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Record(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}
