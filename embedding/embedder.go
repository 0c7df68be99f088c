// Package embedding is the Embedding Provider (C5): maps text batches
// to fixed-dimension, L2-normalized vectors. The remote variant is
// grounded directly on knowledge/embedder.go's httpEmbedder (same
// batching, same retry-on-failure HTTP POST /embeddings shape); the
// local variant is new, added to satisfy spec §4.5's "local
// (single-process, batch size B)" requirement that the teacher's
// single-vendor embedder never had to support.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

// Embedder is the capability contract shared by every provider.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	// Tag identifies the provider implementation, stamped as
	// Embedding.provider_tag on every row it produces (spec §4.5).
	Tag() string
}

// New selects an Embedder by cfg.EmbedProvider. It does not compare
// EMBED_DIM with the vector index's collection size, so a dimension
// mismatch is not reported at startup; the remote provider rejects a
// returned vector whose length differs from EMBED_DIM at embed time.
func New(cfg *config.Config) (Embedder, error) {
	switch cfg.EmbedProvider {
	case "local":
		return &localEmbedder{dim: cfg.EmbedDim, batchSize: cfg.EmbedBatchSize}, nil
	case "remote":
		if strings.TrimSpace(cfg.RemoteEmbedURL) == "" {
			return nil, ragerrors.New(ragerrors.ConfigError, "embedding: REMOTE_EMBED_URL is required for remote provider")
		}
		return &remoteEmbedder{
			httpClient: &http.Client{Timeout: 30 * time.Second},
			baseURL:    strings.TrimRight(cfg.RemoteEmbedURL, "/"),
			apiKey:     cfg.RemoteEmbedToken,
			maxBatch:   cfg.EmbedBatchSize,
			expectDim:  cfg.EmbedDim,
		}, nil
	default:
		return nil, ragerrors.New(ragerrors.ConfigError, fmt.Sprintf("embedding: unknown provider %q", cfg.EmbedProvider))
	}
}

// l2Normalize scales v to unit length, satisfying the Embedding
// invariant |‖v‖₂ − 1| ≤ 1e-3 (spec §3) for every provider uniformly
// (spec §9 Open Question (b): "the contract in §4.5 requires
// L2-normalization uniformly").
func l2Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// localEmbedder is a deterministic, single-process embedder: it hashes
// the lowercased whitespace-separated words of the input text into a
// fixed-width vector (a
// feature-hashing / "hashing trick" embedding), normalizes it, and
// returns it. It needs no network and no model weights, matching spec
// §4.5's "local (single-process, batch size B)" variant, and is
// deterministic so retrieval tests do not depend on network access.
type localEmbedder struct {
	dim       int
	batchSize int
}

func (e *localEmbedder) Tag() string { return "local" }

func (e *localEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		out[i] = l2Normalize(hashEmbed(text, e.dim))
	}
	return out, nil
}

func hashEmbed(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 384
	}
	v := make([]float32, dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		idx := int(h.Sum32() % uint32(dim))
		v[idx] += 1
	}
	return v
}

// remoteEmbedder is grounded verbatim on knowledge/embedder.go's
// httpEmbedder, trimmed to the fields spec §4.5/§6.2 actually names
// (EMBED_DIM, REMOTE_EMBED_URL, REMOTE_EMBED_TOKEN), with bounded
// exponential backoff added on transient failures per spec §4.5
// ("retries and exponential backoff; fails with EmbedUnavailable after
// budget").
type remoteEmbedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxBatch   int
	expectDim  int
}

type embeddingRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *remoteEmbedder) Tag() string { return "remote" }

func (e *remoteEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	sanitized := make([]string, 0, len(inputs))
	for _, item := range inputs {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			sanitized = append(sanitized, trimmed)
		}
	}
	if len(sanitized) == 0 {
		return nil, nil
	}

	maxBatch := e.maxBatch
	if maxBatch <= 0 {
		maxBatch = 16
	}

	var results [][]float32
	for start := 0; start < len(sanitized); start += maxBatch {
		end := start + maxBatch
		if end > len(sanitized) {
			end = len(sanitized)
		}
		vectors, err := e.embedBatchWithRetry(ctx, sanitized[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}
	return results, nil
}

func (e *remoteEmbedder) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	backoff := 250 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 4; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		vectors, err := e.embedBatch(ctx, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
	}
	return nil, ragerrors.Wrap(ragerrors.EmbedUnavailable, "embedding: exhausted retries", lastErr)
}

func (e *remoteEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload := embeddingRequest{Input: batch}
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return nil, fmt.Errorf("embedding: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", body)
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding: status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	if len(decoded.Data) != len(batch) {
		return nil, fmt.Errorf("embedding: response count mismatch (expected %d, got %d)", len(batch), len(decoded.Data))
	}

	vectors := make([][]float32, len(decoded.Data))
	for i, item := range decoded.Data {
		vec := make([]float32, len(item.Embedding))
		for j, value := range item.Embedding {
			vec[j] = float32(value)
		}
		if e.expectDim > 0 && len(vec) != e.expectDim {
			return nil, errors.New("embedding: vector dimension does not match EMBED_DIM")
		}
		vectors[i] = l2Normalize(vec)
	}
	return vectors, nil
}
