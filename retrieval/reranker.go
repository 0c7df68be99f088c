package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

// httpReranker calls an external rerank endpoint, POSTing (query,
// documents) and reading back per-document scores. Grounded on
// embedding.remoteEmbedder's bare-HTTP+JSON+retry shape (itself grounded
// on knowledge/embedder.go's httpEmbedder), applied to a rerank endpoint
// instead of an embeddings one since no reranker client exists anywhere
// in the example pack.
type httpReranker struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPReranker builds a Reranker from cfg.RerankURL/RerankToken. It
// is only constructed when cfg.RerankEnabled is set by the caller.
func NewHTTPReranker(cfg *config.Config) (Reranker, error) {
	if strings.TrimSpace(cfg.RerankURL) == "" {
		return nil, ragerrors.New(ragerrors.ConfigError, "retrieval: RERANK_URL is required when RERANK_ENABLED=true")
	}
	return &httpReranker{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.RerankURL, "/"),
		apiKey:     cfg.RerankToken,
	}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (r *httpReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	backoff := 250 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		scores, err := r.rerankOnce(ctx, query, docs)
		if err == nil {
			return scores, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("retrieval: reranker exhausted retries: %w", lastErr)
}

func (r *httpReranker) rerankOnce(ctx context.Context, query string, docs []string) ([]float64, error) {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(rerankRequest{Query: query, Documents: docs}); err != nil {
		return nil, fmt.Errorf("retrieval: encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", body)
	if err != nil {
		return nil, fmt.Errorf("retrieval: create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("retrieval: rerank status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("retrieval: decode rerank response: %w", err)
	}
	if len(decoded.Scores) != len(docs) {
		return nil, fmt.Errorf("retrieval: rerank response count mismatch (expected %d, got %d)", len(docs), len(decoded.Scores))
	}
	return decoded.Scores, nil
}
