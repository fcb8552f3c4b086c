// Package journal mirrors accepted captures into PostgreSQL.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver

	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

var log = logger.Module("Journal")

//go:embed migrations/*.sql
var migrationFS embed.FS

// Capture is one journaled capture event.
type Capture struct {
	ID            string
	SessionID     string
	ImageFilename string
	CapturedAt    string // types.TimestampLayout
	Detections    []types.Detection
}

// Store persists captures to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the journal database at connStr and applies migrations.
func Open(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if err = migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS journal_schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), -1) FROM journal_schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.ExecContext(ctx, `INSERT INTO journal_schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
		log.Info("applied migration %s", entries[i].Name())
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertCapture writes a capture and its detections in one transaction.
func (s *Store) InsertCapture(ctx context.Context, c Capture) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO captures (id, session_id, image_filename, captured_at, recorded_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.SessionID, c.ImageFilename, c.CapturedAt, time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	for i, d := range c.Detections {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO detections (capture_id, seq, clase, confianza, x1, y1, x2, y2)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, i, d.ClassLabel, d.FormattedConfidence(), d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2,
		)
		if err != nil {
			return fmt.Errorf("detection %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ClassCounts returns the number of journaled detections per class.
func (s *Store) ClassCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT clase, COUNT(*) FROM detections GROUP BY clase`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var clase string
		var n int
		if err := rows.Scan(&clase, &n); err != nil {
			return nil, err
		}
		counts[clase] = n
	}
	return counts, rows.Err()
}

// CaptureCount returns the number of journaled captures.
func (s *Store) CaptureCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n)
	return n, err
}
