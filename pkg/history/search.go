package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/helioslabs/ledgerscope/pkg/knowledge"
)

// searchScanLimit bounds how many recent runs a similarity search scans.
const searchScanLimit = 500

// minSimilarity filters out matches with almost no token overlap.
const minSimilarity = 0.2

// Match pairs a stored run with its similarity to the searched question.
type Match struct {
	Run        *Run    `json:"run"`
	Similarity float64 `json:"similarity"`
}

// SearchSimilar finds stored runs whose questions share vocabulary with the
// given question, ranked by Jaccard similarity over non-stopword tokens.
func (s *Store) SearchSimilar(ctx context.Context, question string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 5
	}
	qTokens := knowledge.Tokenize(question)
	if len(qTokens) == 0 {
		return nil, nil
	}

	runs, err := s.Recent(ctx, searchScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan runs for search: %w", err)
	}

	var matches []Match
	for _, run := range runs {
		score := similarity(qTokens, knowledge.Tokenize(run.Question))
		if score < minSimilarity {
			continue
		}
		matches = append(matches, Match{Run: run, Similarity: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// similarity is the Jaccard index of two token sets.
func similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(a))
	for _, tok := range a {
		seen[tok] = struct{}{}
	}
	shared := 0
	for _, tok := range b {
		if _, ok := seen[tok]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
