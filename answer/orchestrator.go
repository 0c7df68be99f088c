// Package answer is the Answer Orchestrator (C11): wraps the Retriever
// with a fingerprint cache, grounded-prompt construction, LLM
// invocation (sync or streaming), citation extraction, and usage
// recording, per spec.md §4.11. No teacher file builds a RAG prompt;
// the grounding-and-refusal instruction and numbered-context-block
// format are new, following spec.md's literal text, while the
// streaming plumbing reuses llm.ChatClient's ChatStream (itself
// adapted from the teacher's own streaming chat client).
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ragbackend/config"
	"ragbackend/llm"
	"ragbackend/ragerrors"
	"ragbackend/retrieval"
)

const systemInstruction = "You answer strictly from the numbered context blocks provided below. " +
	"Cite the blocks you rely on using their bracketed number, like [1]. " +
	"If the context does not contain the answer, say you do not know."

// Usage records generation accounting for one answer (spec §4.11 step 7).
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	LatencyMS        int64   `json:"latency_ms"`
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
}

// Request bounds the Orchestrator's inputs: retrieval inputs plus
// generation params (spec §4.11 input line).
type Request struct {
	TenantID     string
	Query        string
	TopK         int
	Rerank       bool
	MaxCtxTokens int
	Temperature  float64
	MaxTokens    int
}

// Response is the non-streaming result shape (spec §4.11 step 5).
type Response struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Usage     Usage      `json:"usage"`
	Cached    bool       `json:"cached"`
}

// StreamEvent is one event of the streaming protocol (spec §4.11 step 5:
// "chunk{text}" while tokens arrive, "done{citations, usage}" at the end,
// "error" on mid-stream failure).
type StreamEvent struct {
	Event     string     `json:"event"`
	Text      string     `json:"text,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Orchestrator composes the Retriever, the LLM client, and the answer
// cache.
type Orchestrator struct {
	retriever *retrieval.Retriever
	llmClient *llm.ChatClient
	cache     *Cache
	cfg       *config.Config
}

func New(retriever *retrieval.Retriever, llmClient *llm.ChatClient, cache *Cache, cfg *config.Config) *Orchestrator {
	return &Orchestrator{retriever: retriever, llmClient: llmClient, cache: cache, cfg: cfg}
}

// Answer runs the full non-streaming algorithm in spec §4.11.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Response, error) {
	topK, maxCtxTokens := o.resolveBounds(req)
	fingerprint := Fingerprint(req.TenantID, req.Query, topK, req.Rerank, maxCtxTokens, o.cfg.LLMModel)

	if cached, ok := o.cache.Get(ctx, fingerprint); ok {
		return Response{Answer: cached.Answer, Citations: cached.Citations, Usage: cached.Usage, Cached: true}, nil
	}

	result, err := o.retriever.Retrieve(ctx, retrieval.Request{
		TenantID: req.TenantID, Query: req.Query, TopK: topK, Rerank: req.Rerank, MaxCtxTokens: maxCtxTokens,
	})
	if err != nil {
		return Response{}, err
	}

	prompt := buildPrompt(req.Query, result.Matches)
	params := llm.Params{MaxTokens: req.MaxTokens, Temperature: req.Temperature}

	start := time.Now()
	res, err := o.llmClient.Chat(ctx, prompt, params)
	if err != nil {
		return Response{}, ragerrors.Wrap(ragerrors.LLMUnavailable, "answer: llm call failed", err)
	}
	latency := time.Since(start)

	citations := ExtractCitations(res.Content, result.Matches)
	usage := usageFrom(res, o.cfg, latency)

	o.cache.Put(ctx, fingerprint, CachedAnswer{Answer: res.Content, Citations: citations, Usage: usage})

	return Response{Answer: res.Content, Citations: citations, Usage: usage}, nil
}

// AnswerStream runs the streaming variant: on a cache hit it replays the
// cached answer as a single chunk+done pair (spec §4.11 step 2: "stream
// path replays as one event"); otherwise it streams LLM deltas live and
// discards the partial output for caching if the call fails mid-stream
// (spec §4.11 step 5/"Failures").
func (o *Orchestrator) AnswerStream(ctx context.Context, req Request, emit func(StreamEvent) error) error {
	topK, maxCtxTokens := o.resolveBounds(req)
	fingerprint := Fingerprint(req.TenantID, req.Query, topK, req.Rerank, maxCtxTokens, o.cfg.LLMModel)

	if cached, ok := o.cache.Get(ctx, fingerprint); ok {
		if err := emit(StreamEvent{Event: "chunk", Text: cached.Answer}); err != nil {
			return err
		}
		usage := cached.Usage
		return emit(StreamEvent{Event: "done", Citations: cached.Citations, Usage: &usage})
	}

	result, err := o.retriever.Retrieve(ctx, retrieval.Request{
		TenantID: req.TenantID, Query: req.Query, TopK: topK, Rerank: req.Rerank, MaxCtxTokens: maxCtxTokens,
	})
	if err != nil {
		return err // retrieval failure -> RetrievalUnavailable, LLM never called
	}

	prompt := buildPrompt(req.Query, result.Matches)
	params := llm.Params{MaxTokens: req.MaxTokens, Temperature: req.Temperature}

	start := time.Now()
	res, err := o.llmClient.ChatStream(ctx, prompt, params, func(delta llm.ChatStreamDelta) error {
		if delta.Content == "" {
			return nil
		}
		return emit(StreamEvent{Event: "chunk", Text: delta.Content})
	})
	if err != nil {
		_ = emit(StreamEvent{Event: "error", Error: err.Error()})
		return ragerrors.Wrap(ragerrors.LLMUnavailable, "answer: llm stream failed", err)
	}
	latency := time.Since(start)

	citations := ExtractCitations(res.Content, result.Matches)
	usage := usageFrom(res, o.cfg, latency)
	o.cache.Put(ctx, fingerprint, CachedAnswer{Answer: res.Content, Citations: citations, Usage: usage})

	return emit(StreamEvent{Event: "done", Citations: citations, Usage: &usage})
}

func (o *Orchestrator) resolveBounds(req Request) (topK, maxCtxTokens int) {
	topK = req.TopK
	if topK <= 0 {
		topK = o.cfg.TopKDefault
	}
	if topK > o.cfg.TopKMax {
		topK = o.cfg.TopKMax
	}
	maxCtxTokens = req.MaxCtxTokens
	if maxCtxTokens <= 0 {
		maxCtxTokens = o.cfg.MaxCtxTokens
	}
	if maxCtxTokens > o.cfg.MaxCtxCap {
		maxCtxTokens = o.cfg.MaxCtxCap
	}
	return topK, maxCtxTokens
}

// buildPrompt assembles the grounding-and-refusal system instruction,
// numbered context blocks aligned 1:1 with Match index, and the user
// query last (spec §4.11 step 4).
func buildPrompt(query string, matches []retrieval.Match) []llm.ChatMessage {
	var blocks strings.Builder
	for i, m := range matches {
		breadcrumbs := strings.Join(m.Breadcrumbs, " > ")
		fmt.Fprintf(&blocks, "[%d] %s\n%s\n\n", i+1, breadcrumbs, m.Snippet)
	}

	messages := []llm.ChatMessage{
		{Role: "system", Content: systemInstruction},
	}
	if blocks.Len() > 0 {
		messages = append(messages, llm.ChatMessage{Role: "system", Content: strings.TrimSpace(blocks.String())})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: query})
	return messages
}

func usageFrom(res llm.ChatResult, cfg *config.Config, latency time.Duration) Usage {
	u := Usage{LatencyMS: latency.Milliseconds(), Provider: cfg.LLMProvider, Model: cfg.LLMModel}
	if res.Usage != nil {
		u.PromptTokens = res.Usage.PromptTokens
		u.CompletionTokens = res.Usage.CompletionTokens
	}
	return u
}
