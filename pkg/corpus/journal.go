package corpus

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// SetupSchema creates the journal table and its index. It is idempotent and safe
// to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaMessages = `
CREATE TABLE IF NOT EXISTS corpus_messages (
    message_id INTEGER PRIMARY KEY,
    channel_id TEXT NOT NULL,
    body TEXT NOT NULL,
    context_only INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
		schemaChannelIndex = `CREATE INDEX IF NOT EXISTS idx_corpus_messages_channel ON corpus_messages (channel_id, message_id);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaMessages); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	if _, err = tx.Exec(schemaChannelIndex); err != nil {
		return fmt.Errorf("could not create channel index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Entry is a single journaled message.
type Entry struct {
	Channel     string `json:"channel"`
	Body        string `json:"body"`
	ContextOnly bool   `json:"context_only"`
}

// ReplayStats counts the rows a Replay fed into a Sink. LastID is the id of the
// last row fed.
type ReplayStats struct {
	Messages int           `json:"messages"`
	Context  int           `json:"context"`
	LastID   int64         `json:"last_id"`
	Duration time.Duration `json:"duration"`
}

// JournalStats holds aggregate counts over the whole journal.
type JournalStats struct {
	Messages    int `json:"messages"`
	ContextOnly int `json:"context_only"`
	Channels    int `json:"channels"`
}

// Journal appends chat messages to a SQLite table and replays them into a Sink.
// It holds prepared statements and is safe for concurrent use.
type Journal struct {
	db               *sql.DB
	stmtAppend       *sql.Stmt
	stmtReplay       *sql.Stmt
	stmtChannel      *sql.Stmt
	stmtChannels     *sql.Stmt
	stmtStats        *sql.Stmt
	stmtChannelCount *sql.Stmt
	logger           *slog.Logger
}

// NewJournal prepares the statements used by the journal. SetupSchema must have
// been called on db first.
func NewJournal(db *sql.DB) (*Journal, error) {
	j := &Journal{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	statements := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&j.stmtAppend, `INSERT INTO corpus_messages (channel_id, body, context_only) VALUES (?, ?, ?);`},
		{&j.stmtReplay, `SELECT message_id, channel_id, body, context_only FROM corpus_messages WHERE message_id > ? ORDER BY message_id;`},
		{&j.stmtChannel, `SELECT body, context_only FROM corpus_messages WHERE channel_id = ? ORDER BY message_id;`},
		{&j.stmtChannels, `SELECT DISTINCT channel_id FROM corpus_messages ORDER BY channel_id;`},
		{&j.stmtStats, `SELECT COUNT(*), coalesce(SUM(context_only), 0) FROM corpus_messages;`},
		{&j.stmtChannelCount, `SELECT COUNT(DISTINCT channel_id) FROM corpus_messages;`},
	}
	for _, s := range statements {
		stmt, err := db.Prepare(s.query)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("could not prepare journal statement: %w", err)
		}
		*s.stmt = stmt
	}
	return j, nil
}

// Close releases the prepared statements. The database itself stays open.
func (j *Journal) Close() {
	for _, stmt := range []*sql.Stmt{
		j.stmtAppend, j.stmtReplay, j.stmtChannel,
		j.stmtChannels, j.stmtStats, j.stmtChannelCount,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Journal. By default, all logs are discarded.
func (j *Journal) SetLogger(logger *slog.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// Append stores one message at the end of the journal.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if _, err := j.stmtAppend.ExecContext(ctx, e.Channel, e.Body, e.ContextOnly); err != nil {
		return fmt.Errorf("could not append message for channel '%s': %w", e.Channel, err)
	}
	return nil
}

// Replay feeds every journaled message into sink in the order it was appended.
// Context-only entries go to PrimeContext, all others to RecordMessage.
func (j *Journal) Replay(ctx context.Context, sink Sink) (ReplayStats, error) {
	return j.ReplaySince(ctx, sink, 0)
}

// ReplaySince is Replay restricted to messages appended after the message with id
// after. The returned LastID is the id to pass to the next call to pick up where
// this one stopped; it equals after when nothing new was found.
func (j *Journal) ReplaySince(ctx context.Context, sink Sink, after int64) (ReplayStats, error) {
	start := time.Now()
	stats := ReplayStats{LastID: after}

	rows, err := j.stmtReplay.QueryContext(ctx, after)
	if err != nil {
		return stats, fmt.Errorf("could not query journal: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	for rows.Next() {
		var e Entry
		if err = rows.Scan(&stats.LastID, &e.Channel, &e.Body, &e.ContextOnly); err != nil {
			return stats, fmt.Errorf("could not scan journal row: %w", err)
		}
		if e.ContextOnly {
			sink.PrimeContext(e.Channel, e.Body)
			stats.Context++
		} else {
			sink.RecordMessage(e.Channel, e.Body)
			stats.Messages++
		}
	}
	if err = rows.Err(); err != nil {
		return stats, fmt.Errorf("error iterating journal rows: %w", err)
	}

	stats.Duration = time.Since(start)
	j.logger.Info("Journal replayed", "after", after, "messages", stats.Messages, "context", stats.Context, "duration", stats.Duration)
	return stats, nil
}

// ImportLegacy appends a legacy file for channel to the journal in a single
// transaction. Either every line is stored or none is.
func (j *Journal) ImportLegacy(ctx context.Context, channel string, r io.Reader, magic string) (LoadStats, error) {
	stats := LoadStats{Channels: 1}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadStats{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	stmtAppend := tx.StmtContext(ctx, j.stmtAppend)
	err = scanLines(r, magic, func(body string, contextOnly bool) error {
		if _, err := stmtAppend.ExecContext(ctx, channel, body, contextOnly); err != nil {
			return fmt.Errorf("could not insert line: %w", err)
		}
		if contextOnly {
			stats.Context++
		} else {
			stats.Messages++
		}
		return nil
	})
	if err != nil {
		return LoadStats{}, fmt.Errorf("%w: importing channel %q: %w", ErrIngestion, channel, err)
	}

	if err = tx.Commit(); err != nil {
		return LoadStats{}, fmt.Errorf("could not commit transaction: %w", err)
	}
	j.logger.Info("Legacy file imported", "channel", channel, "messages", stats.Messages, "context", stats.Context)
	return stats, nil
}

// ImportLegacyDir imports every legacy file of dir, one transaction per channel.
func (j *Journal) ImportLegacyDir(ctx context.Context, dir, magic string, skip []string) (LoadStats, error) {
	files, err := LegacyFiles(dir, skip)
	if err != nil {
		return LoadStats{}, err
	}

	var total LoadStats
	for _, channel := range sortedKeys(files) {
		stats, err := j.importLegacyFile(ctx, channel, files[channel], magic)
		if err != nil {
			return total, err
		}
		total.add(stats)
	}
	return total, nil
}

func (j *Journal) importLegacyFile(ctx context.Context, channel, path, magic string) (LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadStats{}, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	return j.ImportLegacy(ctx, channel, f, magic)
}

// ExportLegacy writes the history of channel in the legacy line format, with
// magic in front of every context-only message. A context-only body spanning
// several lines gets magic on each of them so none is learned on re-import.
func (j *Journal) ExportLegacy(ctx context.Context, channel string, w io.Writer, magic string) (int, error) {
	rows, err := j.stmtChannel.QueryContext(ctx, channel)
	if err != nil {
		return 0, fmt.Errorf("could not query channel '%s': %w", channel, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	bw := bufio.NewWriter(w)
	written := 0
	for rows.Next() {
		var body string
		var contextOnly bool
		if err = rows.Scan(&body, &contextOnly); err != nil {
			return written, fmt.Errorf("could not scan journal row: %w", err)
		}
		if contextOnly {
			_, _ = bw.WriteString(magic)
			body = strings.ReplaceAll(body, "\n", "\n"+magic)
		}
		_, _ = bw.WriteString(body)
		if err = bw.WriteByte('\n'); err != nil {
			return written, fmt.Errorf("could not write line: %w", err)
		}
		written++
	}
	if err = rows.Err(); err != nil {
		return written, fmt.Errorf("error iterating journal rows: %w", err)
	}
	if err = bw.Flush(); err != nil {
		return written, fmt.Errorf("could not flush output: %w", err)
	}
	return written, nil
}

// Stats returns aggregate counts over the journal.
func (j *Journal) Stats(ctx context.Context) (JournalStats, error) {
	var stats JournalStats
	if err := j.stmtStats.QueryRowContext(ctx).Scan(&stats.Messages, &stats.ContextOnly); err != nil {
		return JournalStats{}, fmt.Errorf("could not count messages: %w", err)
	}
	if err := j.stmtChannelCount.QueryRowContext(ctx).Scan(&stats.Channels); err != nil {
		return JournalStats{}, fmt.Errorf("could not count channels: %w", err)
	}
	return stats, nil
}

// Channels returns the distinct channel ids in the journal, sorted.
func (j *Journal) Channels(ctx context.Context) ([]string, error) {
	rows, err := j.stmtChannels.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not query channels: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	channels := make([]string, 0)
	for rows.Next() {
		var channel string
		if err = rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("could not scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}
