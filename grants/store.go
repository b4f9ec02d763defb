package grants

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for grant operations
var (
	ErrGrantNotFound = errors.New("grant not found")
	ErrDuplicateURL  = errors.New("grant with this URL already exists")
)

// Store persists discovered grants using SQLite.
type Store struct {
	db *sql.DB
}

// Filter represents filtering options for listing grants.
type Filter struct {
	SourceID      *uuid.UUID
	ExcludeSample bool
	Limit         int
	Offset        int
}

// NewStore creates a grant store with the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the grants table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		funder TEXT,
		amount TEXT,
		deadline TEXT,
		url TEXT NOT NULL UNIQUE,
		source_id TEXT,
		sample INTEGER NOT NULL DEFAULT 0,
		discovered_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a grant.
func (s *Store) Add(g Grant) error {
	query := `
		INSERT INTO grants (
			id, title, description, funder, amount, deadline,
			url, source_id, sample, discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var sourceID any
	if g.SourceID != nil {
		sourceID = g.SourceID.String()
	}

	_, err := s.db.Exec(query,
		g.ID.String(),
		g.Title,
		g.Description,
		g.Funder,
		g.Amount,
		g.Deadline,
		g.URL,
		sourceID,
		g.Sample,
		g.DiscoveredAt.Truncate(0).Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "unique constraint") {
			return ErrDuplicateURL
		}
		return fmt.Errorf("failed to insert grant: %w", err)
	}

	return nil
}

// Get retrieves a grant by ID.
func (s *Store) Get(id uuid.UUID) (*Grant, error) {
	query := `
		SELECT id, title, description, funder, amount, deadline,
		       url, source_id, sample, discovered_at
		FROM grants
		WHERE id = ?
	`

	grant, err := scanGrant(s.db.QueryRow(query, id.String()))
	if err == sql.ErrNoRows {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query grant: %w", err)
	}

	return grant, nil
}

// List returns grants matching the filter, newest first.
func (s *Store) List(filter Filter) ([]Grant, error) {
	query := `
		SELECT id, title, description, funder, amount, deadline,
		       url, source_id, sample, discovered_at
		FROM grants
	`

	var whereClauses []string
	var args []any

	if filter.SourceID != nil {
		whereClauses = append(whereClauses, "source_id = ?")
		args = append(args, filter.SourceID.String())
	}
	if filter.ExcludeSample {
		whereClauses = append(whereClauses, "sample = 0")
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY discovered_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	grants := []Grant{}
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, *grant)
	}

	return grants, rows.Err()
}

// Count returns the number of stored grants, optionally excluding sample
// data.
func (s *Store) Count(excludeSample bool) (int, error) {
	query := "SELECT COUNT(*) FROM grants"
	if excludeSample {
		query += " WHERE sample = 0"
	}

	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count grants: %w", err)
	}
	return count, nil
}

// URLExists reports whether a grant with the given URL is already stored,
// the deduplication key for repeated harvests.
func (s *Store) URLExists(url string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM grants WHERE url = ?", url).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check URL: %w", err)
	}
	return count > 0, nil
}

// DeleteSamples removes synthetic fallback entries, typically once a real
// harvest has succeeded.
func (s *Store) DeleteSamples() error {
	if _, err := s.db.Exec("DELETE FROM grants WHERE sample = 1"); err != nil {
		return fmt.Errorf("failed to delete sample grants: %w", err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanGrant parses one SQL row into a Grant.
func scanGrant(row rowScanner) (*Grant, error) {
	var idStr, title, description, grantURL, discoveredAtStr string
	var funder, amount, deadline, sourceIDStr sql.NullString
	var sample bool

	err := row.Scan(&idStr, &title, &description, &funder, &amount,
		&deadline, &grantURL, &sourceIDStr, &sample, &discoveredAtStr)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse grant ID: %w", err)
	}

	grant := &Grant{
		ID:           id,
		Title:        title,
		Description:  description,
		URL:          grantURL,
		Sample:       sample,
		DiscoveredAt: parseTime(discoveredAtStr),
	}

	if funder.Valid {
		grant.Funder = &funder.String
	}
	if amount.Valid {
		grant.Amount = &amount.String
	}
	if deadline.Valid {
		grant.Deadline = &deadline.String
	}
	if sourceIDStr.Valid {
		sourceID, err := uuid.Parse(sourceIDStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse source ID: %w", err)
		}
		grant.SourceID = &sourceID
	}

	return grant, nil
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
