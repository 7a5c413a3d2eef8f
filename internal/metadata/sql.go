package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL flavour differences between backends
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLRepository stores records in an image_metadata table
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (or creates) a SQLite database at path
func OpenSQLite(ctx context.Context, path string) (*SQLRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	return newSQLRepository(ctx, db, DialectSQLite)
}

// OpenPostgres connects to Postgres using dsn
func OpenPostgres(ctx context.Context, dsn string) (*SQLRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return newSQLRepository(ctx, db, DialectPostgres)
}

// NewSQLRepository wraps an open database and ensures the table exists
func NewSQLRepository(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLRepository, error) {
	return newSQLRepository(ctx, db, dialect)
}

func newSQLRepository(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLRepository, error) {
	repo := &SQLRepository{db: db, dialect: dialect}
	if err := repo.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ensure metadata table: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS image_metadata (
			image_id TEXT PRIMARY KEY,
			image_url TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			format TEXT NOT NULL,
			tags TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create image_metadata table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_image_metadata_url ON image_metadata (image_url)`
	if _, err := r.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create image_metadata index: %w", err)
	}
	return nil
}

// Save inserts rec, replacing any record with the same image ID
func (r *SQLRepository) Save(ctx context.Context, rec Record) error {
	query := r.rebind(`
		INSERT INTO image_metadata (image_id, image_url, width, height, format, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (image_id) DO UPDATE
		SET image_url = EXCLUDED.image_url,
		    width = EXCLUDED.width,
		    height = EXCLUDED.height,
		    format = EXCLUDED.format,
		    tags = EXCLUDED.tags
	`)

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.ImageID,
		rec.ImageURL,
		rec.Width,
		rec.Height,
		rec.Format,
		rec.Tags,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}
	return nil
}

// Get returns the record for imageID
func (r *SQLRepository) Get(ctx context.Context, imageID string) (Record, error) {
	query := r.rebind(`
		SELECT image_id, image_url, width, height, format, tags, created_at
		FROM image_metadata
		WHERE image_id = ?
	`)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, imageID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get metadata: %w", err)
	}
	return rec, nil
}

// ListByURL returns every record stored for imageURL, oldest first
func (r *SQLRepository) ListByURL(ctx context.Context, imageURL string) ([]Record, error) {
	query := r.rebind(`
		SELECT image_id, image_url, width, height, format, tags, created_at
		FROM image_metadata
		WHERE image_url = ?
		ORDER BY created_at
	`)

	rows, err := r.db.QueryContext(ctx, query, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database
func (r *SQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		createdAt string
	)
	if err := row.Scan(&rec.ImageID, &rec.ImageURL, &rec.Width, &rec.Height, &rec.Format, &rec.Tags, &createdAt); err != nil {
		return Record{}, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = ts
	return rec, nil
}

// rebind rewrites ? placeholders to $n for Postgres
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
