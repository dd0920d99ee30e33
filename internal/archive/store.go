// Package archive persists processed invoices. The DSN decides the driver:
// postgres URLs go through pgx's database/sql adapter, anything else is
// treated as a SQLite path (":memory:" included).
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Store struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
}

// Record is one archived processing outcome.
type Record struct {
	ID         uuid.UUID
	FileName   string
	FileHash   string
	Status     string
	Confidence float32
	Document   json.RawMessage
	Report     json.RawMessage
	CreatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id          TEXT PRIMARY KEY,
	file_name   TEXT NOT NULL,
	file_hash   TEXT NOT NULL,
	status      TEXT NOT NULL,
	confidence  REAL NOT NULL,
	document    TEXT NOT NULL,
	report      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS invoices_file_hash ON invoices (file_hash);
`

// Open connects, pings and ensures the schema exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	postgres := strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
	driver := "sqlite"
	if postgres {
		driver = "pgx"
	}
	logger.Info("archive.connecting", "driver", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	logger.Info("archive.connected", "driver", driver)
	return &Store{db: db, postgres: postgres, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save inserts one record; the caller treats failures as non-fatal.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	q := s.rebind(`INSERT INTO invoices
		(id, file_name, file_hash, status, confidence, document, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		rec.ID.String(), rec.FileName, rec.FileHash, rec.Status, rec.Confidence,
		string(rec.Document), string(rec.Report), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice record: %w", err)
	}
	s.logger.Info("archive.saved",
		"id", rec.ID, "file", rec.FileName, "status", rec.Status, "confidence", rec.Confidence)
	return nil
}

// Recent lists the latest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.rebind(`SELECT id, file_name, file_hash, status, confidence, document, report, created_at
		FROM invoices ORDER BY created_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query invoice records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("archive.rows_close_failed", "error", err)
		}
	}()

	var out []Record
	for rows.Next() {
		var rec Record
		var id, doc, rep string
		if err := rows.Scan(&id, &rec.FileName, &rec.FileHash, &rec.Status,
			&rec.Confidence, &doc, &rep, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invoice record: %w", err)
		}
		rec.ID, _ = uuid.Parse(id)
		rec.Document = json.RawMessage(doc)
		rec.Report = json.RawMessage(rep)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// rebind converts ?-placeholders to $N for postgres.
func (s *Store) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
