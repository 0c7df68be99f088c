package answer

import (
	"regexp"
	"strconv"

	"ragbackend/retrieval"
)

// Citation is one Match the model's answer referenced (spec §4.11
// step 6).
type Citation struct {
	DocumentID  uint64   `json:"document_id"`
	ChunkID     uint64   `json:"chunk_id"`
	Page        *int     `json:"page,omitempty"`
	Score       float64  `json:"score"`
	Snippet     string   `json:"snippet"`
	Breadcrumbs []string `json:"breadcrumbs,omitempty"`
}

// markerPattern finds `[i]` references in model output, 1-indexed
// against the context blocks the prompt numbered (spec §4.11 step 4:
// "numbered context blocks [i] ... aligned with Match index").
// SPEC_FULL.md resolves the ambiguity between this and
// original_source's search-order matching in favor of the spec text's
// literal marker scan.
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// ExtractCitations scans answerText for [i] markers and returns the
// referenced Matches as Citations, de-duplicated and in first-occurrence
// order. If no markers are found, every Match is returned (spec §4.11
// step 6).
func ExtractCitations(answerText string, matches []retrieval.Match) []Citation {
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]bool)
	var order []int
	for _, m := range markerPattern.FindAllStringSubmatch(answerText, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(matches) {
			continue
		}
		idx := n - 1
		if seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}

	if len(order) == 0 {
		return matchesToCitations(matches)
	}

	citations := make([]Citation, len(order))
	for i, idx := range order {
		citations[i] = matchToCitation(matches[idx])
	}
	return citations
}

func matchesToCitations(matches []retrieval.Match) []Citation {
	citations := make([]Citation, len(matches))
	for i, m := range matches {
		citations[i] = matchToCitation(m)
	}
	return citations
}

func matchToCitation(m retrieval.Match) Citation {
	return Citation{
		DocumentID:  m.DocumentID,
		ChunkID:     m.ChunkID,
		Page:        m.Page,
		Score:       m.Score,
		Snippet:     m.Snippet,
		Breadcrumbs: m.Breadcrumbs,
	}
}
