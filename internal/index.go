package internal

import (
	"bufio"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// IndexFileName is the file index inside SUMMARIES_PATH
const IndexFileName = "video_index.txt"

const indexSeparator = " | "

//go:embed migrations/*.sql
var migrationsFS embed.FS

// VideoIndex remembers which videos were handled and where their notes went
type VideoIndex interface {
	StatusRecorder
	// ProcessedIDs returns every video id with at least one entry
	ProcessedIDs(ctx context.Context) (map[string]bool, error)
	// Values returns the recorded values for one video, oldest first
	Values(ctx context.Context, videoID string) ([]string, error)
}

// NoteFiles returns the recorded values of a video that point at existing
// markdown files
func NoteFiles(ctx context.Context, index VideoIndex, videoID string) ([]string, error) {
	values, err := index.Values(ctx, videoID)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, v := range values {
		if strings.HasSuffix(v, ".md") && FileExists(v) {
			files = append(files, v)
		}
	}
	return files, nil
}

// FileIndex is an append-only text file with one "id | value" line per entry
type FileIndex struct {
	path string
	mu   sync.Mutex
}

// NewFileIndex creates an index stored in dir
func NewFileIndex(dir string) *FileIndex {
	return &FileIndex{path: filepath.Join(dir, IndexFileName)}
}

// Path returns the index file
func (f *FileIndex) Path() string {
	return f.path
}

func (f *FileIndex) scan(fn func(id, value string)) error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening video index: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, value, _ := strings.Cut(line, indexSeparator)
		fn(strings.TrimSpace(id), strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading video index: %w", err)
	}
	return nil
}

func (f *FileIndex) ProcessedIDs(ctx context.Context) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := map[string]bool{}
	err := f.scan(func(id, _ string) { ids[id] = true })
	return ids, err
}

func (f *FileIndex) Values(ctx context.Context, videoID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var values []string
	err := f.scan(func(id, value string) {
		if id == videoID {
			values = append(values, value)
		}
	})
	return values, err
}

func (f *FileIndex) Record(ctx context.Context, videoID, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := EnsureDirs(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening video index: %w", err)
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, "%s%s%s\n", videoID, indexSeparator, value); err != nil {
		return fmt.Errorf("writing video index: %w", err)
	}
	return nil
}

// PostgresIndex stores entries in the video_index table
type PostgresIndex struct {
	db *sql.DB
}

// OpenPostgresIndex connects to dsn and applies pending migrations
func OpenPostgresIndex(ctx context.Context, dsn string) (*PostgresIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresIndex{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrating video index: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}

func (p *PostgresIndex) ProcessedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT video_id FROM video_index`)
	if err != nil {
		return nil, fmt.Errorf("querying processed videos: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning video id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (p *PostgresIndex) Values(ctx context.Context, videoID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT value FROM video_index WHERE video_id = $1 ORDER BY created_at, id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("querying video %s: %w", videoID, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning index value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (p *PostgresIndex) Record(ctx context.Context, videoID, value string) error {
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO video_index (video_id, value) VALUES ($1, $2)`, videoID, value); err != nil {
		return fmt.Errorf("recording video %s: %w", videoID, err)
	}
	return nil
}

// readOnlyIndex wraps an index so that Record is a no-op. Used with
// --skip-verification, where nothing is written back.
type readOnlyIndex struct {
	VideoIndex
}

func (readOnlyIndex) Record(context.Context, string, string) error { return nil }
