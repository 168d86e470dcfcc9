package corpus

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CTAG07/Pizzabot/pkg/markov"
)

var _ Sink = (*markov.Model)(nil)

// call is one message delivered to a recordingSink.
type call struct {
	channel string
	message string
	context bool
}

// recordingSink remembers every call in order.
type recordingSink struct {
	calls []call
}

func (s *recordingSink) RecordMessage(channel, message string) {
	s.calls = append(s.calls, call{channel: channel, message: message})
}

func (s *recordingSink) PrimeContext(channel, message string) {
	s.calls = append(s.calls, call{channel: channel, message: message, context: true})
}

// setupTestDB creates a new SQLite database and a Journal for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Journal) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	j, err := NewJournal(db)
	if err != nil {
		t.Fatalf("NewJournal() error = %v", err)
	}
	t.Cleanup(j.Close)

	return db, j
}
