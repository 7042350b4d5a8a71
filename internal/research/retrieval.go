package research

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

// RetrievalStore is the storage surface the retriever needs.
type RetrievalStore interface {
	// SearchFTS performs a full-text search over stored artifacts.
	SearchFTS(query string) ([]*Artifact, error)
	// Touch records that retrieval returned an artifact.
	Touch(id string) error
}

// Retriever queries and ranks artifacts for relevance to a query.
type Retriever struct {
	store RetrievalStore
	// Fields used during ranking to enable BM25 scoring
	queryTerms []string
	avgDocLen  float64
	docFreqs   map[string]int
	totalDocs  int
}

// NewRetriever creates a Retriever over the given store.
func NewRetriever(store RetrievalStore) *Retriever {
	return &Retriever{store: store}
}

// Search retrieves the artifacts most relevant to the query, ranked by a
// BM25 score modulated by access count and recency. Each returned artifact
// carries its relevance score and has its access stamped in the store.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]*Artifact, error) {
	if r.store == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	keywords := extractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	// Join keywords with OR for the FTS5 query.
	artifacts, err := r.store.SearchFTS(strings.Join(keywords, " OR "))
	if err != nil {
		return nil, fmt.Errorf("retrieve artifacts: %w", err)
	}
	if len(artifacts) == 0 {
		return nil, nil
	}

	r.queryTerms = tokenize(strings.ToLower(query))
	r.avgDocLen, r.docFreqs = computeCorpusStats(artifacts)
	r.totalDocs = len(artifacts)
	r.rankArtifacts(artifacts)

	if len(artifacts) > limit {
		artifacts = artifacts[:limit]
	}

	for _, a := range artifacts {
		if err := r.store.Touch(a.ID); err != nil {
			return nil, fmt.Errorf("record access for %s: %w", a.ID, err)
		}
	}
	return artifacts, nil
}

// stopWords are common words filtered out of keyword extraction.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"will": true, "with": true, "not": true, "but": true, "you": true,
	"your": true, "can": true, "do": true, "does": true, "did": true,
	"should": true, "would": true, "could": true, "may": true, "might": true,
	"must": true, "shall": true, "need": true, "if": true, "then": true,
	"else": true, "when": true, "where": true, "which": true, "who": true,
	"whom": true, "what": true, "how": true, "why": true, "all": true,
	"any": true, "both": true, "each": true, "few": true, "more": true,
	"most": true, "other": true, "some": true, "such": true, "no": true,
	"nor": true, "only": true, "own": true, "same": true, "so": true,
	"than": true, "too": true, "very": true, "just": true, "also": true,
}

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_]*`)

// extractKeywords extracts meaningful keywords from text.
// It removes common stop words and returns unique, lowercase keywords.
func extractKeywords(text string) []string {
	if text == "" {
		return nil
	}

	words := wordPattern.FindAllString(text, -1)

	seen := make(map[string]bool)
	keywords := make([]string, 0)
	for _, word := range words {
		lower := strings.ToLower(word)
		// Skip short words and stop words
		if len(lower) < 3 || stopWords[lower] {
			continue
		}
		if !seen[lower] {
			seen[lower] = true
			keywords = append(keywords, lower)
		}
	}
	return keywords
}

// tokenize splits text into lowercase tokens for BM25 scoring.
func tokenize(text string) []string {
	words := wordPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		lower := strings.ToLower(word)
		if len(lower) >= 2 {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// computeCorpusStats computes the average document length and per-term
// document frequencies over the candidate set.
func computeCorpusStats(artifacts []*Artifact) (float64, map[string]int) {
	docFreqs := make(map[string]int)
	totalLen := 0

	for _, a := range artifacts {
		terms := tokenize(strings.ToLower(a.Title + " " + a.Content))
		totalLen += len(terms)

		seen := make(map[string]bool)
		for _, term := range terms {
			if !seen[term] {
				seen[term] = true
				docFreqs[term]++
			}
		}
	}

	avgDocLen := 0.0
	if len(artifacts) > 0 {
		avgDocLen = float64(totalLen) / float64(len(artifacts))
	}
	return avgDocLen, docFreqs
}

// rankArtifacts sorts artifacts by combined relevance, highest first, and
// stores each artifact's score on it.
func (r *Retriever) rankArtifacts(artifacts []*Artifact) {
	now := time.Now()
	for _, a := range artifacts {
		a.Relevance = r.calculateScore(a, now)
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Relevance > artifacts[j].Relevance
	})
}

// calculateScore computes a combined relevance score for an artifact.
// The score combines:
//   - BM25 semantic relevance (primary signal)
//   - Access count (usage signal, sqrt-dampened)
//   - Recency factor (time decay, 7-day half-life)
//
// Formula: (1 + BM25) * sqrt(1 + accessCount) * recencyFactor.
// Adding 1 to BM25 ensures non-matching artifacts still rank by the
// remaining factors.
func (r *Retriever) calculateScore(a *Artifact, now time.Time) float64 {
	bm25 := 0.0
	if r.totalDocs > 0 && len(r.queryTerms) > 0 {
		bm25 = bm25Score(a, r.queryTerms, r.avgDocLen, r.docFreqs, r.totalDocs)
	}

	accessScore := math.Sqrt(1 + float64(a.AccessCount))

	daysSinceAccess := now.Sub(a.LastAccessed).Hours() / 24
	if daysSinceAccess < 0 {
		daysSinceAccess = 0
	}

	// Decay formula: factor = 1 / (1 + days/halfLife), ~0.5 at 7 days.
	halfLife := 7.0
	recencyFactor := 1.0
	if !a.LastAccessed.IsZero() {
		recencyFactor = 1.0 / (1.0 + daysSinceAccess/halfLife)
	}

	return (1 + bm25) * accessScore * recencyFactor
}

// BM25 parameters - standard values from literature
const (
	bm25K1 = 1.2  // Term frequency saturation parameter
	bm25B  = 0.75 // Length normalization parameter
)

// bm25Score computes a BM25 relevance score for an artifact against query
// terms. Higher scores indicate greater relevance.
func bm25Score(a *Artifact, queryTerms []string, avgDocLen float64, docFreqs map[string]int, totalDocs int) float64 {
	if len(queryTerms) == 0 || totalDocs == 0 {
		return 0
	}

	docTerms := tokenize(strings.ToLower(a.Title + " " + a.Content))
	docLen := float64(len(docTerms))
	if docLen == 0 {
		return 0
	}

	termFreqs := make(map[string]int)
	for _, term := range docTerms {
		termFreqs[term]++
	}

	score := 0.0
	for _, term := range queryTerms {
		tf := float64(termFreqs[term])
		if tf == 0 {
			continue
		}

		df := docFreqs[term]
		if df == 0 {
			df = 1
		}

		// IDF component: log((N - df + 0.5) / (df + 0.5) + 1)
		idf := math.Log((float64(totalDocs)-float64(df)+0.5)/(float64(df)+0.5) + 1)

		// TF component with length normalization
		lengthNorm := 1 - bm25B + bm25B*(docLen/avgDocLen)
		tfNorm := (tf * (bm25K1 + 1)) / (tf + bm25K1*lengthNorm)

		score += idf * tfNorm
	}
	return score
}
