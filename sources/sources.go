package sources

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grantscout/grantscout/scrape"
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for source operations
var (
	ErrSourceNotFound    = errors.New("source not found")
	ErrDuplicateURL      = errors.New("source with this URL already exists")
	ErrInvalidSourceType = errors.New("source_type must be website or feed")
)

// SourceStore manages grant source configurations using SQLite.
type SourceStore struct {
	db *sql.DB
}

// Source represents a configured grant listing to harvest. Website sources
// are scraped with CSS selectors; feed sources are parsed as RSS/Atom.
type Source struct {
	SourceID        uuid.UUID           `json:"source_id"`
	SourceType      string              `json:"source_type"` // "website", "feed"
	URL             string              `json:"url"`
	Name            string              `json:"name"`
	Funder          string              `json:"funder"`
	FallbackURLs    []string            `json:"fallback_urls,omitempty"`
	Selectors       *scrape.SelectorMap `json:"selectors,omitempty"`
	EnabledAt       *time.Time          `json:"enabled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	LastFetchedAt   *time.Time          `json:"last_fetched_at,omitempty"`
	FetchErrorCount int                 `json:"fetch_error_count"`
	LastError       *string             `json:"last_error,omitempty"`
}

// IsEnabled returns true if the source is currently enabled.
func (s *Source) IsEnabled() bool {
	return s.EnabledAt != nil
}

// SourceUpdate represents fields that can be updated on a source.
type SourceUpdate struct {
	Name            *string
	URL             *string
	Funder          *string
	FallbackURLs    []string
	Selectors       *scrape.SelectorMap
	EnabledAt       *time.Time
	ClearEnabledAt  bool // Set to true to set enabled_at to NULL
	LastFetchedAt   *time.Time
	FetchErrorCount *int
	LastError       *string
	ClearLastError  bool
}

// SourceFilter represents filtering options for listing sources.
type SourceFilter struct {
	Type    *string // Filter by source_type
	Enabled *bool   // Filter by enabled status
	Limit   int     // Pagination limit
	Offset  int     // Pagination offset
}

// NewSourceStore creates a new source store with the given database path.
func NewSourceStore(dbPath string) (*SourceStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SourceStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the sources table if it doesn't exist.
func (s *SourceStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		source_id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		funder TEXT NOT NULL DEFAULT '',
		fallback_urls TEXT,
		selectors TEXT,
		enabled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_fetched_at TEXT,
		fetch_error_count INTEGER DEFAULT 0,
		last_error TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SourceStore) Close() error {
	return s.db.Close()
}

// CreateSource creates a new source.
func (s *SourceStore) CreateSource(
	sourceType, url, name, funder string,
	fallbacks []string,
	selectors *scrape.SelectorMap,
	enabledAt *time.Time,
) (*Source, error) {
	if err := ValidateSourceType(sourceType); err != nil {
		return nil, err
	}

	now := time.Now()

	source := &Source{
		SourceID:        uuid.New(),
		SourceType:      sourceType,
		URL:             url,
		Name:            name,
		Funder:          funder,
		FallbackURLs:    fallbacks,
		Selectors:       selectors,
		EnabledAt:       enabledAt,
		CreatedAt:       now,
		UpdatedAt:       now,
		FetchErrorCount: 0,
	}

	fallbacksJSON, err := marshalFallbacks(fallbacks)
	if err != nil {
		return nil, err
	}
	selectorsJSON, err := marshalSelectors(selectors)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO sources (
			source_id, source_type, url, name, funder,
			fallback_urls, selectors, enabled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		source.SourceID.String(),
		source.SourceType,
		source.URL,
		source.Name,
		source.Funder,
		fallbacksJSON,
		selectorsJSON,
		formatTime(source.EnabledAt),
		formatTime(&source.CreatedAt),
		formatTime(&source.UpdatedAt),
	)
	if err != nil {
		// Check for duplicate URL constraint violation
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "unique constraint") {
			return nil, ErrDuplicateURL
		}
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}

	return source, nil
}

// GetSource retrieves a source by ID.
func (s *SourceStore) GetSource(sourceID uuid.UUID) (*Source, error) {
	query := `
		SELECT source_id, source_type, url, name, funder,
		       fallback_urls, selectors, enabled_at, created_at, updated_at,
		       last_fetched_at, fetch_error_count, last_error
		FROM sources
		WHERE source_id = ?
	`

	var sourceIDStr, sourceType, url, name, funder, createdAtStr, updatedAtStr string
	var fallbacksJSON, selectorsJSON, enabledAtStr, lastFetchedAtStr, lastError sql.NullString
	var fetchErrorCount int

	err := s.db.QueryRow(query, sourceID.String()).Scan(
		&sourceIDStr, &sourceType, &url, &name, &funder,
		&fallbacksJSON, &selectorsJSON, &enabledAtStr,
		&createdAtStr, &updatedAtStr,
		&lastFetchedAtStr, &fetchErrorCount, &lastError,
	)

	if err == sql.ErrNoRows {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}

	return scanSource(
		sourceIDStr, sourceType, url, name, funder,
		createdAtStr, updatedAtStr,
		fallbacksJSON, selectorsJSON, enabledAtStr, lastFetchedAtStr,
		fetchErrorCount, lastError,
	)
}

// ListSources lists sources with optional filtering.
func (s *SourceStore) ListSources(filter SourceFilter) ([]Source, error) {
	query := `
		SELECT source_id, source_type, url, name, funder,
		       fallback_urls, selectors, enabled_at, created_at, updated_at,
		       last_fetched_at, fetch_error_count, last_error
		FROM sources
	`

	var whereClauses []string
	var args []any

	if filter.Type != nil {
		whereClauses = append(whereClauses, "source_type = ?")
		args = append(args, *filter.Type)
	}

	if filter.Enabled != nil {
		if *filter.Enabled {
			whereClauses = append(whereClauses, "enabled_at IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "enabled_at IS NULL")
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var sourceIDStr, sourceType, url, name, funder, createdAtStr, updatedAtStr string
		var fallbacksJSON, selectorsJSON, enabledAtStr, lastFetchedAtStr, lastError sql.NullString
		var fetchErrorCount int

		err := rows.Scan(
			&sourceIDStr, &sourceType, &url, &name, &funder,
			&fallbacksJSON, &selectorsJSON, &enabledAtStr,
			&createdAtStr, &updatedAtStr,
			&lastFetchedAtStr, &fetchErrorCount, &lastError,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}

		source, err := scanSource(
			sourceIDStr, sourceType, url, name, funder,
			createdAtStr, updatedAtStr,
			fallbacksJSON, selectorsJSON, enabledAtStr, lastFetchedAtStr,
			fetchErrorCount, lastError,
		)
		if err != nil {
			return nil, err
		}

		sources = append(sources, *source)
	}

	return sources, nil
}

// UpdateSource updates a source with the provided fields.
func (s *SourceStore) UpdateSource(sourceID uuid.UUID, update SourceUpdate) error {
	// Build dynamic UPDATE query based on provided fields
	setClauses := []string{"updated_at = ?"}
	now := time.Now()
	args := []any{formatTime(&now)}

	if update.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *update.Name)
	}
	if update.URL != nil {
		setClauses = append(setClauses, "url = ?")
		args = append(args, *update.URL)
	}
	if update.Funder != nil {
		setClauses = append(setClauses, "funder = ?")
		args = append(args, *update.Funder)
	}
	if update.FallbackURLs != nil {
		fallbacksJSON, err := marshalFallbacks(update.FallbackURLs)
		if err != nil {
			return err
		}
		setClauses = append(setClauses, "fallback_urls = ?")
		args = append(args, fallbacksJSON)
	}
	if update.Selectors != nil {
		selectorsJSON, err := marshalSelectors(update.Selectors)
		if err != nil {
			return err
		}
		setClauses = append(setClauses, "selectors = ?")
		args = append(args, selectorsJSON)
	}
	if update.ClearEnabledAt {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, nil)
	} else if update.EnabledAt != nil {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, formatTime(update.EnabledAt))
	}
	if update.LastFetchedAt != nil {
		setClauses = append(setClauses, "last_fetched_at = ?")
		args = append(args, formatTime(update.LastFetchedAt))
	}
	if update.FetchErrorCount != nil {
		setClauses = append(setClauses, "fetch_error_count = ?")
		args = append(args, *update.FetchErrorCount)
	}
	if update.ClearLastError {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, nil)
	} else if update.LastError != nil {
		setClauses = append(setClauses, "last_error = ?")
		args = append(args, *update.LastError)
	}

	// Add WHERE clause
	args = append(args, sourceID.String())

	query := fmt.Sprintf("UPDATE sources SET %s WHERE source_id = ?",
		strings.Join(setClauses, ", "))

	result, err := s.db.Exec(query, args...)
	if err != nil {
		// Check for duplicate URL constraint violation
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "unique constraint") {
			return ErrDuplicateURL
		}
		return fmt.Errorf("failed to update source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}

	return nil
}

// RecordFetchSuccess stamps a successful harvest pass: sets last_fetched_at,
// zeroes the error counter, and clears the stored error.
func (s *SourceStore) RecordFetchSuccess(sourceID uuid.UUID, fetchedAt time.Time) error {
	zero := 0
	return s.UpdateSource(sourceID, SourceUpdate{
		LastFetchedAt:   &fetchedAt,
		FetchErrorCount: &zero,
		ClearLastError:  true,
	})
}

// RecordFetchError increments the error counter and stores the message.
func (s *SourceStore) RecordFetchError(sourceID uuid.UUID, fetchErr error) error {
	source, err := s.GetSource(sourceID)
	if err != nil {
		return err
	}

	count := source.FetchErrorCount + 1
	msg := fetchErr.Error()
	return s.UpdateSource(sourceID, SourceUpdate{
		FetchErrorCount: &count,
		LastError:       &msg,
	})
}

// DeleteSource deletes a source.
func (s *SourceStore) DeleteSource(sourceID uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM sources WHERE source_id = ?", sourceID.String())
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSourceNotFound
	}

	return nil
}

// ValidateSourceType validates that the source type is supported.
func ValidateSourceType(sourceType string) error {
	if sourceType != "website" && sourceType != "feed" {
		return ErrInvalidSourceType
	}
	return nil
}

// scanSource is a shared helper that parses SQL row data into a Source
// struct. This eliminates duplication between GetSource and ListSources.
func scanSource(
	sourceIDStr, sourceType, url, name, funder string,
	createdAtStr, updatedAtStr string,
	fallbacksJSON, selectorsJSON, enabledAtStr, lastFetchedAtStr sql.NullString,
	fetchErrorCount int,
	lastError sql.NullString,
) (*Source, error) {
	sourceID, err := uuid.Parse(sourceIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source ID: %w", err)
	}

	source := &Source{
		SourceID:        sourceID,
		SourceType:      sourceType,
		URL:             url,
		Name:            name,
		Funder:          funder,
		CreatedAt:       parseTime(createdAtStr),
		UpdatedAt:       parseTime(updatedAtStr),
		FetchErrorCount: fetchErrorCount,
	}

	// Parse optional timestamps
	if enabledAtStr.Valid {
		t := parseTime(enabledAtStr.String)
		source.EnabledAt = &t
	}
	if lastFetchedAtStr.Valid {
		t := parseTime(lastFetchedAtStr.String)
		source.LastFetchedAt = &t
	}

	if lastError.Valid {
		source.LastError = &lastError.String
	}

	// Parse JSON columns
	if fallbacksJSON.Valid {
		var fallbacks []string
		if err := json.Unmarshal([]byte(fallbacksJSON.String), &fallbacks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fallback_urls: %w", err)
		}
		source.FallbackURLs = fallbacks
	}
	if selectorsJSON.Valid {
		var selectors scrape.SelectorMap
		if err := json.Unmarshal([]byte(selectorsJSON.String), &selectors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal selectors: %w", err)
		}
		source.Selectors = &selectors
	}

	return source, nil
}

func marshalFallbacks(fallbacks []string) (any, error) {
	if len(fallbacks) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(fallbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fallback_urls: %w", err)
	}
	return string(data), nil
}

func marshalSelectors(selectors *scrape.SelectorMap) (any, error) {
	if selectors == nil {
		return nil, nil
	}
	data, err := json.Marshal(selectors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal selectors: %w", err)
	}
	return string(data), nil
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	// Try RFC3339Nano first, fall back to RFC3339 for compatibility
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	// Strip monotonic clock for consistent comparisons
	return t.Truncate(0)
}
