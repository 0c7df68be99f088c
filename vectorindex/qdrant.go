// Package vectorindex is the Vector Index (C6): upsert(chunk_ids,
// vectors) / search(query_vec, k, tenant_filter) over Qdrant. Grounded
// directly on knowledge/qdrant.go's qdrantClient (same bare-HTTP+JSON
// client idiom, no official Go Qdrant SDK anywhere in the pack),
// generalized to push tenant_id into the Qdrant filter payload, accept
// a probes hint, and produce the strictly-ordered, tie-broken Match
// list spec §4.6 requires.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

const collectionName = "chunks"

// Match is one search hit: score = 1 − cosine_distance ∈ [0,1] (spec §4.6).
type Match struct {
	ChunkID uint64
	Score   float64
}

// Index is the Vector Index capability contract.
type Index struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	dim        int
	lists      int
	probes     int
}

func New(cfg *config.Config) (*Index, error) {
	baseURL := strings.TrimRight(envOr(cfg, "http://localhost:6333"), "/")
	return &Index{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		dim:        cfg.EmbedDim,
		lists:      cfg.IVFFlatLists,
		probes:     cfg.IVFFlatProbes,
	}, nil
}

func envOr(cfg *config.Config, def string) string {
	// Qdrant connection isn't part of SPEC_FULL.md's named config keys
	// (spec §6.2 only lists tuning knobs IVFFLAT_LISTS/PROBES). No
	// environment variable is read: the index always uses def.
	return def
}

// EnsureCollection creates the collection if absent, sized to cfg.EmbedDim.
func (idx *Index) EnsureCollection(ctx context.Context) error {
	payload := map[string]any{
		"vectors": map[string]any{"size": idx.dim, "distance": "Cosine"},
	}
	return idx.do(ctx, http.MethodPut, "/collections/"+collectionName, payload, nil)
}

// Upsert replaces the vector for each chunk id (idempotent replace on
// conflict, spec §4.6).
func (idx *Index) Upsert(ctx context.Context, tenantID string, chunkIDs []uint64, vectors [][]float32) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	points := make([]map[string]any, len(chunkIDs))
	for i, id := range chunkIDs {
		points[i] = map[string]any{
			"id":     id,
			"vector": vectors[i],
			"payload": map[string]any{
				"tenant_id": tenantID,
				"chunk_id":  id,
			},
		}
	}
	return idx.do(ctx, http.MethodPut, "/collections/"+collectionName+"/points", map[string]any{"points": points}, nil)
}

// Delete removes the points for the given chunk ids.
func (idx *Index) Delete(ctx context.Context, chunkIDs []uint64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return idx.do(ctx, http.MethodDelete, "/collections/"+collectionName+"/points", map[string]any{"points": chunkIDs}, nil)
}

// Search returns the top-k matches, filtered server-side to tenantID
// (spec §4.6: "Search MUST push the tenant predicate into the index
// query... never return cross-tenant hits"), ordered strictly
// descending by score with ties broken by lower chunk_id.
func (idx *Index) Search(ctx context.Context, tenantID string, queryVec []float32, k int, probes int) ([]Match, error) {
	if k <= 0 {
		k = 5
	}
	if probes <= 0 {
		probes = idx.probes
	}
	payload := map[string]any{
		"vector":       queryVec,
		"limit":        k,
		"with_payload": false,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "tenant_id", "match": map[string]any{"value": tenantID}},
			},
		},
		"params": map[string]any{"hnsw_ef": probes * 16},
	}

	var decoded struct {
		Result []struct {
			ID    any     `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	if err := idx.do(ctx, http.MethodPost, "/collections/"+collectionName+"/points/search", payload, &decoded); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(decoded.Result))
	for _, r := range decoded.Result {
		matches = append(matches, Match{ChunkID: stringifyID(r.ID), Score: r.Score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	return matches, nil
}

func (idx *Index) do(ctx context.Context, method, path string, payload any, out any) error {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return fmt.Errorf("vectorindex: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, idx.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("vectorindex: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idx.apiKey != "" {
		req.Header.Set("api-key", idx.apiKey)
	}

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return ragerrors.Wrap(ragerrors.IndexUnavailable, "vectorindex: request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ragerrors.New(ragerrors.IndexUnavailable, fmt.Sprintf("vectorindex: status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("vectorindex: decode response: %w", err)
		}
	}
	return nil
}

func stringifyID(id any) uint64 {
	switch v := id.(type) {
	case float64:
		return uint64(v)
	case string:
		n, _ := strconv.ParseUint(v, 10, 64)
		return n
	default:
		n, _ := strconv.ParseUint(fmt.Sprint(v), 10, 64)
		return n
	}
}
