package research

import (
	"fmt"
)

// SearchFTS performs a full-text search on title and content. Results come
// back in SQLite's own rank order; the retriever re-ranks them.
func (s *ArtifactStore) SearchFTS(query string) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT a.id, a.title, a.content, a.source, a.tags, a.access_count, a.last_accessed, a.created_at
		FROM artifacts a
		JOIN artifacts_fts fts ON a.rowid = fts.rowid
		WHERE artifacts_fts MATCH ?
		ORDER BY rank
	`, query)
	if err != nil {
		return nil, fmt.Errorf("search artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}
