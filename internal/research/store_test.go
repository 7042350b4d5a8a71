package research

import (
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore opens and migrates a fresh artifact store for a test.
func setupTestStore(t *testing.T) *ArtifactStore {
	t.Helper()
	store, err := NewArtifactStore(filepath.Join(t.TempDir(), "research.db"))
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return store
}

func addArtifact(t *testing.T, store *ArtifactStore, id, title, content string) {
	t.Helper()
	err := store.Add(&Artifact{
		ID:      id,
		Title:   title,
		Content: content,
		Source:  "test",
	})
	if err != nil {
		t.Fatalf("Add(%s) failed: %v", id, err)
	}
}

func TestAdd_Validation(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Add(nil); err == nil {
		t.Error("nil artifact should be rejected")
	}
	if err := store.Add(&Artifact{Content: "text"}); err == nil {
		t.Error("artifact without id should be rejected")
	}
	if err := store.Add(&Artifact{ID: "a-1"}); err == nil {
		t.Error("artifact without content should be rejected")
	}
}

func TestAddAndList(t *testing.T) {
	store := setupTestStore(t)

	err := store.Add(&Artifact{
		ID:        "a-1",
		Title:     "Retry backoff postmortem",
		Content:   "Exponential backoff without jitter synchronized the herd.",
		Source:    "postmortems/2024-11.md",
		Tags:      []string{"retry", "backoff"},
		CreatedAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	artifacts, err := store.List(10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(artifacts))
	}

	got := artifacts[0]
	if got.Title != "Retry backoff postmortem" {
		t.Errorf("title = %q", got.Title)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "retry" {
		t.Errorf("tags not preserved: %v", got.Tags)
	}
	if got.AccessCount != 0 || !got.LastAccessed.IsZero() {
		t.Errorf("fresh artifact should have no access history: count=%d at=%v", got.AccessCount, got.LastAccessed)
	}
}

func TestAdd_ReplacesByID(t *testing.T) {
	store := setupTestStore(t)

	addArtifact(t, store, "a-1", "first", "original content")
	addArtifact(t, store, "a-1", "first", "revised content")

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("replace should keep one row, got %d", count)
	}

	artifacts, err := store.List(1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if artifacts[0].Content != "revised content" {
		t.Errorf("content = %q, want revised", artifacts[0].Content)
	}
}

func TestTouch(t *testing.T) {
	store := setupTestStore(t)
	addArtifact(t, store, "a-1", "doc", "some content here")

	if err := store.Touch("a-1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if err := store.Touch("a-1"); err != nil {
		t.Fatalf("second Touch failed: %v", err)
	}

	artifacts, err := store.List(1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if artifacts[0].AccessCount != 2 {
		t.Errorf("access count = %d, want 2", artifacts[0].AccessCount)
	}
	if artifacts[0].LastAccessed.IsZero() {
		t.Error("touch should stamp the access time")
	}
}

func TestSearchFTS_MatchesContent(t *testing.T) {
	store := setupTestStore(t)
	addArtifact(t, store, "a-1", "Migration runbook", "How to roll back a failed database migration safely.")
	addArtifact(t, store, "a-2", "Cache sizing", "Sizing the redis cache for peak traffic.")

	results, err := store.SearchFTS("migration")
	if err != nil {
		t.Fatalf("SearchFTS failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
	if results[0].ID != "a-1" {
		t.Errorf("matched %s, want a-1", results[0].ID)
	}
}

func TestSearchFTS_DeletedRowsDropOut(t *testing.T) {
	store := setupTestStore(t)
	addArtifact(t, store, "a-1", "doc", "searchable body text")

	if _, err := store.db.Exec("DELETE FROM artifacts WHERE id = ?", "a-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	results, err := store.SearchFTS("searchable")
	if err != nil {
		t.Fatalf("SearchFTS failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted artifact should not match, got %d results", len(results))
	}
}
