// Package research provides the artifact store and retrieval engine the
// convergence loop draws evidence from. Artifacts are prior findings,
// postmortems, and reference notes; retrieval combines SQLite full-text
// search with BM25 ranking.
package research

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Artifact is one stored piece of research evidence.
type Artifact struct {
	ID           string    // Unique identifier
	Title        string    // Short display title
	Content      string    // Body text, searched and ranked
	Source       string    // Where the artifact came from (path, URL, report)
	Tags         []string  // Free-form labels
	AccessCount  int       // Number of times retrieval returned this artifact
	LastAccessed time.Time // Last time retrieval returned this artifact
	CreatedAt    time.Time // When the artifact was stored

	// Relevance is the ranking score assigned at search time. It is not
	// persisted.
	Relevance float64
}

// ArtifactStore provides SQLite-backed storage for research artifacts.
type ArtifactStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// ProjectDBPath returns the path to the project-local artifact database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".waggle", "research.db")
}

// NewArtifactStore opens an artifact store at the given database path,
// creating parent directories as needed. WAL mode is enabled for
// concurrent reads.
func NewArtifactStore(dbPath string) (*ArtifactStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &ArtifactStore{db: conn, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *ArtifactStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the path to the database file.
func (s *ArtifactStore) Path() string {
	return s.dbPath
}

// Add stores an artifact. An artifact with the same id replaces the
// previous version.
func (s *ArtifactStore) Add(a *Artifact) error {
	if a == nil {
		return fmt.Errorf("add artifact: nil artifact")
	}
	if a.ID == "" {
		return fmt.Errorf("add artifact: missing id")
	}
	if a.Content == "" {
		return fmt.Errorf("add artifact %s: missing content", a.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("add artifact %s: marshal tags: %w", a.ID, err)
	}

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO artifacts (id, title, content, source, tags, access_count, last_accessed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Title, a.Content, a.Source, string(tags), a.AccessCount,
		nullableTime(a.LastAccessed), formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("add artifact %s: %w", a.ID, err)
	}
	return nil
}

// Touch increments the artifact's access count and stamps the access time.
func (s *ArtifactStore) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE artifacts
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touch artifact %s: %w", id, err)
	}
	return nil
}

// List returns the most recently created artifacts up to the limit.
func (s *ArtifactStore) List(limit int) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, title, content, source, tags, access_count, last_accessed, created_at
		FROM artifacts
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// Count returns the number of stored artifacts.
func (s *ArtifactStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	row := s.db.QueryRow("SELECT COUNT(*) FROM artifacts")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return count, nil
}

// scanArtifacts reads artifact rows into models.
func scanArtifacts(rows *sql.Rows) ([]*Artifact, error) {
	var artifacts []*Artifact
	for rows.Next() {
		var a Artifact
		var source, tags, lastAccessed sql.NullString
		var createdAt string

		err := rows.Scan(&a.ID, &a.Title, &a.Content, &source, &tags,
			&a.AccessCount, &lastAccessed, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}

		a.Source = source.String
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags for %s: %w", a.ID, err)
			}
		}
		if lastAccessed.Valid {
			if t, err := parseTime(lastAccessed.String); err == nil {
				a.LastAccessed = t
			}
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", a.ID, err)
		}

		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// nullableTime maps a zero time to NULL for storage.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
