package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/freezedry/internal/fetch"
	"github.com/nao1215/freezedry/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "freezedry.db"

// SnapshotDB provides SQLite-based storage for cached responses and
// snapshot records. It implements fetch.Cache.
type SnapshotDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	// maxAge is how long a cached response stays valid. Zero means
	// cached responses never expire.
	maxAge time.Duration
}

// Options configures SnapshotDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool

	// MaxAge is how long a cached response is served before it is fetched
	// again. Zero disables expiry.
	MaxAge time.Duration
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
		MaxAge:            24 * time.Hour,
	}
}

// Open opens or creates a SnapshotDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*SnapshotDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. The crawler stores responses from
	// many goroutines, so all of them share a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &SnapshotDB{
		db:     db,
		dbPath: dbPath,
		maxAge: opts.MaxAge,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (sdb *SnapshotDB) Close() error {
	return sdb.db.Close()
}

// Path returns the database file path.
func (sdb *SnapshotDB) Path() string {
	return sdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (sdb *SnapshotDB) createTables() error {
	schema := `
	-- Responses cache fetched subresources keyed by the requested URL
	CREATE TABLE IF NOT EXISTS responses (
		url TEXT PRIMARY KEY,
		final_url TEXT NOT NULL,
		content_type TEXT,
		body BLOB NOT NULL,
		digest TEXT NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_responses_fetched_at ON responses(fetched_at);

	-- Snapshots store the record of each run as JSON
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		digest TEXT,
		output_size INTEGER,
		snapshot_json TEXT NOT NULL,
		status_summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_url ON snapshots(url);
	CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// Put stores resp under url, replacing any earlier entry.
func (sdb *SnapshotDB) Put(ctx context.Context, url string, resp *fetch.Response) error {
	query := `
	INSERT INTO responses (url, final_url, content_type, body, digest)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		final_url = excluded.final_url,
		content_type = excluded.content_type,
		body = excluded.body,
		digest = excluded.digest,
		fetched_at = CURRENT_TIMESTAMP
	`

	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	_, err := sdb.db.ExecContext(ctx, query,
		url,
		resp.URL,
		resp.ContentType,
		body,
		model.Digest(resp.Body),
	)
	if err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}
	return nil
}

// Get returns the cached response for url. Entries older than MaxAge or
// whose body no longer matches its digest count as misses.
func (sdb *SnapshotDB) Get(ctx context.Context, url string) (*fetch.Response, bool, error) {
	query := `
	SELECT final_url, content_type, body, digest, fetched_at
	FROM responses
	WHERE url = ?
	`

	var (
		resp        fetch.Response
		contentType sql.NullString
		digest      string
		fetchedAt   string
	)
	err := sdb.db.QueryRowContext(ctx, query, url).Scan(
		&resp.URL,
		&contentType,
		&resp.Body,
		&digest,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get response: %w", err)
	}

	if sdb.maxAge > 0 && time.Since(parseTimestamp(fetchedAt)) > sdb.maxAge {
		return nil, false, nil
	}
	if model.Digest(resp.Body) != digest {
		return nil, false, nil
	}
	resp.ContentType = contentType.String
	return &resp, true, nil
}

// Clear removes every cached response and returns how many were removed.
// Snapshot records are kept.
func (sdb *SnapshotDB) Clear(ctx context.Context) (int64, error) {
	result, err := sdb.db.ExecContext(ctx, "DELETE FROM responses")
	if err != nil {
		return 0, fmt.Errorf("failed to clear responses: %w", err)
	}
	return result.RowsAffected()
}

// Prune removes cached responses older than age.
func (sdb *SnapshotDB) Prune(ctx context.Context, age time.Duration) (int64, error) {
	modifier := fmt.Sprintf("-%d seconds", int(age.Seconds()))
	result, err := sdb.db.ExecContext(ctx,
		"DELETE FROM responses WHERE fetched_at <= datetime('now', ?)", modifier)
	if err != nil {
		return 0, fmt.Errorf("failed to prune responses: %w", err)
	}
	return result.RowsAffected()
}

// SaveSnapshot stores the record of a run.
func (sdb *SnapshotDB) SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) (int64, error) {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	summary := make(map[string]int)
	for status, count := range snapshot.CountByStatus() {
		summary[status.String()] = count
	}
	summaryJSON, _ := json.Marshal(summary) //nolint:errcheck,errchkjson // a map of string to int always marshals

	query := `
	INSERT INTO snapshots (url, digest, output_size, snapshot_json, status_summary)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := sdb.db.ExecContext(ctx, query,
		snapshot.URL,
		snapshot.Digest,
		snapshot.OutputSize,
		string(snapshotJSON),
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return result.LastInsertId()
}

// GetLatestSnapshot retrieves the most recent snapshot record for url, or
// nil when there is none.
func (sdb *SnapshotDB) GetLatestSnapshot(ctx context.Context, url string) (*model.Snapshot, error) {
	query := `
	SELECT snapshot_json FROM snapshots
	WHERE url = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`
	return sdb.querySnapshot(ctx, query, url)
}

// GetSnapshotByID retrieves a snapshot record by its database ID.
func (sdb *SnapshotDB) GetSnapshotByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	return sdb.querySnapshot(ctx, "SELECT snapshot_json FROM snapshots WHERE id = ?", id)
}

func (sdb *SnapshotDB) querySnapshot(ctx context.Context, query string, args ...any) (*model.Snapshot, error) {
	var snapshotJSON string
	err := sdb.db.QueryRowContext(ctx, query, args...).Scan(&snapshotJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snapshot, nil
}

// SnapshotMetadata contains summary information about a stored snapshot.
type SnapshotMetadata struct {
	// ID is the unique identifier of the snapshot in the database.
	ID int64

	URL string

	// Timestamp is when the snapshot was stored.
	Timestamp time.Time

	// Digest is the SHA3-256 of the produced markup.
	Digest string

	OutputSize int

	// StatusSummary counts resources per outcome.
	StatusSummary map[string]int
}

// GetSnapshotHistory retrieves snapshot metadata for url, newest first.
func (sdb *SnapshotDB) GetSnapshotHistory(ctx context.Context, url string) ([]SnapshotMetadata, error) {
	query := `
	SELECT id, url, timestamp, digest, output_size, status_summary
	FROM snapshots
	WHERE url = ?
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot history: %w", err)
	}
	defer rows.Close()

	var results []SnapshotMetadata
	for rows.Next() {
		var (
			meta        SnapshotMetadata
			timestamp   string
			digest      sql.NullString
			summaryJSON sql.NullString
		)
		if err := rows.Scan(&meta.ID, &meta.URL, &timestamp, &digest, &meta.OutputSize, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.Timestamp = parseTimestamp(timestamp)
		meta.Digest = digest.String
		meta.StatusSummary = make(map[string]int)
		if summaryJSON.Valid && summaryJSON.String != "" {
			_ = json.Unmarshal([]byte(summaryJSON.String), &meta.StatusSummary) //nolint:errcheck // a malformed summary leaves the map empty
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, it returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
