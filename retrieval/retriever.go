// Package retrieval is the Retriever (C10): embeds a query, searches
// the Vector Index, optionally reranks, and assembles a token-budgeted
// context. Grounded on knowledge/service.go's QueryTopChunks for the
// embed-then-search-then-hydrate shape, generalized from a fixed
// collection-per-agent filter to the tenant-scoped Vector Index
// contract and extended with the reranker and greedy context-assembly
// steps spec.md §4.10 adds beyond what the teacher ever needed.
package retrieval

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"ragbackend/chunking"
	"ragbackend/config"
	"ragbackend/embedding"
	"ragbackend/metadata"
	"ragbackend/ragerrors"
	"ragbackend/vectorindex"
)

// snippetMaxChars bounds Match.Snippet; spec.md names the knob
// ("snippet_max_chars") but does not add it to the configuration table,
// so it is a fixed internal default rather than an undocumented env var.
const snippetMaxChars = 320

// Match is one retrieved chunk, ready to render into a prompt or an API
// response (spec §4.10 step 6).
type Match struct {
	DocumentID  uint64
	ChunkID     uint64
	Page        *int
	Score       float64
	Snippet     string
	Breadcrumbs []string
}

// Reranker rescales candidate scores against the query text. No teacher
// or example repo calls a reranking endpoint; this interface is
// grounded on embedding.remoteEmbedder's HTTP-retry shape, applied to a
// cross-encoder-style rerank endpoint instead of an embeddings one.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]float64, error)
}

// RerankCandidate is one (chunk_id, text) pair sent to the reranker.
type RerankCandidate struct {
	ChunkID uint64
	Text    string
}

// Request bounds the Retriever's inputs per spec §4.10.
type Request struct {
	TenantID     string
	Query        string
	TopK         int
	Rerank       bool
	MaxCtxTokens int
}

// Retriever is the capability composed from the Embedding Provider,
// Vector Index, Metadata Store, and optional Reranker.
type Retriever struct {
	store    *metadata.Store
	embedder embedding.Embedder
	index    *vectorindex.Index
	reranker Reranker
	cfg      *config.Config
}

func New(store *metadata.Store, embedder embedding.Embedder, index *vectorindex.Index, reranker Reranker, cfg *config.Config) *Retriever {
	return &Retriever{store: store, embedder: embedder, index: index, reranker: reranker, cfg: cfg}
}

// Result is the Retriever's output: ranked Matches plus the assembled
// context text ready to drop into a prompt.
type Result struct {
	Matches []Match
	Context string
}

// Retrieve runs the full algorithm in spec §4.10: embed, search,
// hydrate, optionally rerank, then greedily assemble context within
// MaxCtxTokens and cfg.MaxCtxChunks.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Result{}, ragerrors.New(ragerrors.ValidationError, "retrieval: query is required")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = r.cfg.TopKDefault
	}
	if topK > r.cfg.TopKMax {
		topK = r.cfg.TopKMax
	}
	maxCtxTokens := req.MaxCtxTokens
	if maxCtxTokens <= 0 {
		maxCtxTokens = r.cfg.MaxCtxTokens
	}
	if maxCtxTokens > r.cfg.MaxCtxCap {
		maxCtxTokens = r.cfg.MaxCtxCap
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		return Result{}, ragerrors.Wrap(ragerrors.RetrievalUnavailable, "retrieval: embed query", err)
	}

	hits, err := r.index.Search(ctx, req.TenantID, vectors[0], topK, 0)
	if err != nil {
		return Result{}, ragerrors.Wrap(ragerrors.RetrievalUnavailable, "retrieval: vector search", err)
	}
	if len(hits) == 0 {
		return Result{Matches: nil, Context: ""}, nil
	}

	ids := make([]uint64, len(hits))
	scoreByChunk := make(map[uint64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
		scoreByChunk[h.ChunkID] = h.Score
	}

	chunks, err := r.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return Result{}, ragerrors.Wrap(ragerrors.RetrievalUnavailable, "retrieval: hydrate chunks", err)
	}
	chunkByID := make(map[uint64]metadata.Chunk, len(chunks))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	type candidate struct {
		chunk metadata.Chunk
		score float64
	}
	candidates := make([]candidate, 0, len(ids))
	for _, id := range ids {
		c, ok := chunkByID[id]
		if !ok {
			continue // chunk deleted/replaced since the index was last upserted
		}
		candidates = append(candidates, candidate{chunk: c, score: scoreByChunk[id]})
	}

	if req.Rerank && r.reranker != nil && len(candidates) > 0 {
		pairs := make([]RerankCandidate, len(candidates))
		for i, c := range candidates {
			pairs[i] = RerankCandidate{ChunkID: c.chunk.ID, Text: c.chunk.Text}
		}
		scores, err := r.reranker.Rerank(ctx, query, pairs)
		if err != nil {
			return Result{}, ragerrors.Wrap(ragerrors.RetrievalUnavailable, "retrieval: rerank", err)
		}
		if len(scores) == len(candidates) {
			for i := range candidates {
				candidates[i].score = scores[i]
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})

	maxChunks := r.cfg.MaxCtxChunks
	if maxChunks <= 0 {
		maxChunks = 6
	}

	var matches []Match
	var contextBlocks []string
	usedTokens := 0
	for _, c := range candidates {
		if len(matches) >= maxChunks {
			break
		}
		tokens := chunking.CountTokens(c.chunk.Text)
		if usedTokens+tokens > maxCtxTokens {
			continue // skip, don't stop: a later smaller chunk may still fit
		}
		usedTokens += tokens

		breadcrumbs := decodeHeaderPath(c.chunk.HeaderPath)
		m := Match{
			DocumentID:  c.chunk.DocumentID,
			ChunkID:     c.chunk.ID,
			Page:        c.chunk.Page,
			Score:       c.score,
			Snippet:     truncateAtSentence(c.chunk.Text, snippetMaxChars),
			Breadcrumbs: breadcrumbs,
		}
		matches = append(matches, m)
		contextBlocks = append(contextBlocks, strings.Join(breadcrumbs, " > ")+"\n"+c.chunk.Text)

		if usedTokens >= maxCtxTokens {
			break
		}
	}

	return Result{Matches: matches, Context: strings.Join(contextBlocks, "\n\n")}, nil
}

func decodeHeaderPath(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var path []string
	if err := json.Unmarshal(raw, &path); err != nil {
		return nil
	}
	return path
}

// truncateAtSentence cuts text to at most max chars, preferring to stop
// at the last sentence-ending punctuation within the limit so a snippet
// doesn't end mid-word (spec §4.10: "at a sentence boundary when
// possible").
func truncateAtSentence(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	window := text[:max]
	if idx := strings.LastIndexAny(window, ".!?"); idx > max/2 {
		return strings.TrimSpace(window[:idx+1])
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return strings.TrimSpace(window[:idx]) + "…"
	}
	return window
}
