package research

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCorpus = `artifacts:
  - id: seed-1
    title: Flaky test quarantine
    content: Quarantine flaky tests behind a tag and track them in the triage board.
    source: runbooks/flaky.md
    tags: [testing, flaky]
  - title: Rollback drill
    content: Practice rolling back the deploy weekly so the runbook stays honest.
    source: runbooks/rollback.md
`

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	return path
}

func TestLoadSeedCorpus(t *testing.T) {
	path := writeCorpus(t, sampleCorpus)

	artifacts, err := LoadSeedCorpus(path)
	if err != nil {
		t.Fatalf("LoadSeedCorpus failed: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(artifacts))
	}

	if artifacts[0].ID != "seed-1" {
		t.Errorf("explicit id not kept: %s", artifacts[0].ID)
	}
	if artifacts[1].ID == "" {
		t.Error("missing id should be assigned")
	}
	if artifacts[0].Tags[0] != "testing" {
		t.Errorf("tags not parsed: %v", artifacts[0].Tags)
	}
}

func TestLoadSeedCorpus_MissingContent(t *testing.T) {
	path := writeCorpus(t, "artifacts:\n  - title: broken\n    source: x\n")

	if _, err := LoadSeedCorpus(path); err == nil {
		t.Error("entry without content should be rejected")
	}
}

func TestLoadSeedCorpus_MissingFile(t *testing.T) {
	if _, err := LoadSeedCorpus(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}

func TestSeed_LoadsIntoStore(t *testing.T) {
	store := setupTestStore(t)
	path := writeCorpus(t, sampleCorpus)

	n, err := Seed(store, path)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 seeded artifacts, got %d", n)
	}

	results, err := store.SearchFTS("rollback")
	if err != nil {
		t.Fatalf("SearchFTS failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("seeded corpus should be searchable, got %d matches", len(results))
	}
}
