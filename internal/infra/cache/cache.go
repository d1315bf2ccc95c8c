// Package cache provides a SQLite-based cache of resolved track metadata.
// It keeps the per-item queue content fallback from hammering the catalog
// with lookups it has already answered.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nbonamy/tidal-streamer/internal/tidal"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the cache database.
	DefaultDBPath = "data/tracks.db"

	// DefaultTTL is how long a cached track stays fresh.
	DefaultTTL = 24 * time.Hour
)

// DB is the SQLite track cache.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	ttl  time.Duration
}

// NewDB creates a cache instance. Open must be called before use.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
		ttl:  DefaultTTL,
	}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.path != ":memory:" {
		dir := filepath.Dir(d.path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Track cache opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

// initSchema creates the schema on a fresh database.
func (d *DB) initSchema() error {
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		CurrentSchemaVersion,
	)
	return err
}

// GetTrack returns the cached track, if present and fresh.
func (d *DB) GetTrack(trackID int) (*tidal.Track, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, false
	}

	var data string
	var updatedAt int64
	err := d.db.QueryRow(
		`SELECT data, updated_at FROM tracks WHERE id = ?`, trackID,
	).Scan(&data, &updatedAt)
	if err != nil {
		return nil, false
	}

	if time.Since(time.Unix(updatedAt, 0)) > d.ttl {
		return nil, false
	}

	var track tidal.Track
	if err := json.Unmarshal([]byte(data), &track); err != nil {
		log.Warn().Err(err).Int("trackId", trackID).Msg("Corrupt cache entry")
		return nil, false
	}
	return &track, true
}

// PutTrack stores or refreshes a track.
func (d *DB) PutTrack(track *tidal.Track) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return fmt.Errorf("cache not open")
	}

	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("marshal track: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT OR REPLACE INTO tracks (id, data, updated_at) VALUES (?, ?, ?)`,
		track.ID, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("store track: %w", err)
	}
	return nil
}
