package research

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML shape of a research corpus file.
type seedFile struct {
	Artifacts []seedArtifact `yaml:"artifacts"`
}

// seedArtifact is one corpus entry.
type seedArtifact struct {
	ID      string   `yaml:"id"`
	Title   string   `yaml:"title"`
	Content string   `yaml:"content"`
	Source  string   `yaml:"source"`
	Tags    []string `yaml:"tags"`
}

// LoadSeedCorpus reads artifacts from a YAML corpus file. Entries without
// an id are assigned one.
func LoadSeedCorpus(path string) ([]*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse corpus file %s: %w", path, err)
	}

	now := time.Now()
	artifacts := make([]*Artifact, 0, len(file.Artifacts))
	for i, entry := range file.Artifacts {
		if entry.Content == "" {
			return nil, fmt.Errorf("corpus entry %d (%s): missing content", i, entry.Title)
		}
		id := entry.ID
		if id == "" {
			id = uuid.New().String()
		}
		artifacts = append(artifacts, &Artifact{
			ID:        id,
			Title:     entry.Title,
			Content:   entry.Content,
			Source:    entry.Source,
			Tags:      entry.Tags,
			CreatedAt: now,
		})
	}
	return artifacts, nil
}

// Seed loads a YAML corpus file into the store.
func Seed(store *ArtifactStore, path string) (int, error) {
	artifacts, err := LoadSeedCorpus(path)
	if err != nil {
		return 0, err
	}
	for _, a := range artifacts {
		if err := store.Add(a); err != nil {
			return 0, fmt.Errorf("seed corpus: %w", err)
		}
	}
	return len(artifacts), nil
}
