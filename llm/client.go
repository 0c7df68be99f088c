// Package llm is the LLM provider client for the Answer Orchestrator
// (C11). Adapted from the teacher's own Qiniu/OpenAI-compatible chat
// completions client: the env-driven constructor is replaced with one
// that reads the already-resolved config.Config (spec §6.2's
// LLM_PROVIDER/LLM_MODEL/LLM_TIMEOUT/LLM_MAX_TOKENS/LLM_TEMPERATURE),
// and MaxTokens/Temperature become per-request parameters instead of
// client-wide constants, since spec §4.11 takes them per call.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

const defaultBaseURL = "https://openai.qiniu.com/v1"

// ChatClient wraps the HTTP calls to an OpenAI-compatible chat
// completions API.
type ChatClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	modelID     string
	maxTokens   int
	temperature float64
}

// NewFromConfig builds a ChatClient from resolved configuration. The
// provider's API key/base URL are not part of SPEC_FULL.md's named
// config keys (spec §6.2 only names model/timeout/max_tokens/
// temperature), so they are read directly here the way the teacher's
// own NewChatClientFromEnv did, via LLM_API_KEY/LLM_BASE_URL.
func NewFromConfig(cfg *config.Config, apiKey, baseURL string) (*ChatClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ragerrors.New(ragerrors.ConfigError, "llm: LLM_API_KEY is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, ragerrors.New(ragerrors.ConfigError, fmt.Sprintf("llm: invalid base URL %q", baseURL))
	}

	return &ChatClient{
		httpClient:  &http.Client{Timeout: cfg.LLMTimeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		modelID:     cfg.LLMModel,
		maxTokens:   cfg.LLMMaxTokens,
		temperature: cfg.LLMTemperature,
	}, nil
}

// ChatMessage represents a single turn in a chat conversation payload.
type ChatMessage struct {
	Role    string
	Content string
}

// chatCompletionMessage matches the API payload structure for messages.
type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest represents the request body sent to the model.
type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Stream      bool                    `json:"stream"`
	Messages    []chatCompletionMessage `json:"messages"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Temperature float64                 `json:"temperature,omitempty"`
}

// Params overrides the client's configured generation defaults for one
// call (spec §4.11: temperature/max_tokens are per-request inputs). A
// zero value in either field keeps the client's default.
type Params struct {
	MaxTokens   int
	Temperature float64
}

func (c *ChatClient) resolve(p Params) (int, float64) {
	maxTokens := c.maxTokens
	if p.MaxTokens > 0 {
		maxTokens = p.MaxTokens
	}
	temperature := c.temperature
	if p.Temperature > 0 {
		temperature = p.Temperature
	}
	return maxTokens, temperature
}

// chatCompletionUsage captures token accounting returned by the API.
type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatCompletionResponse captures the subset of fields we consume.
type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
	Usage *chatCompletionUsage `json:"usage"`
}

type ChatStreamDelta struct {
	Content      string
	FullContent  string
	FinishReason string
	Done         bool
}

// chatStreamChunk mirrors the streaming delta payload from the provider.

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatCompletionUsage `json:"usage"`
}

// ChatUsage captures token usage metrics returned by the provider.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult represents the content and usage information for a chat completion.
type ChatResult struct {
	Content string
	Usage   *ChatUsage
}

// Complete sends the given prompt to the chat completions API and returns the response with usage metrics.
func (c *ChatClient) Complete(ctx context.Context, prompt string, params Params) (ChatResult, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return ChatResult{}, errors.New("llm: prompt cannot be empty")
	}

	return c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: trimmed},
	}, params)
}

// Chat sends the provided conversational messages to the LLM and returns the first assistant reply with usage metrics.
func (c *ChatClient) Chat(ctx context.Context, messages []ChatMessage, params Params) (ChatResult, error) {
	if c == nil {
		return ChatResult{}, errors.New("llm: client is nil")
	}
	if len(messages) == 0 {
		return ChatResult{}, errors.New("llm: messages cannot be empty")
	}

	maxTokens, temperature := c.resolve(params)
	payload := chatCompletionRequest{
		Model:       c.modelID,
		Stream:      false,
		Messages:    make([]chatCompletionMessage, 0, len(messages)),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		payload.Messages = append(payload.Messages, chatCompletionMessage{Role: role, Content: content})
	}

	if len(payload.Messages) == 0 {
		return ChatResult{}, errors.New("llm: messages contain no content")
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return ChatResult{}, fmt.Errorf("llm: encode request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return ChatResult{}, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatResult{}, fmt.Errorf("llm: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return ChatResult{}, fmt.Errorf("llm: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChatResult{}, fmt.Errorf("llm: decode response: %w", err)
	}

	if len(decoded.Choices) == 0 {
		return ChatResult{}, errors.New("llm: response contains no choices")
	}

	full := strings.TrimSpace(decoded.Choices[0].Message.Content)

	return ChatResult{
		Content: full,
		Usage:   convertUsage(decoded.Usage),
	}, nil
}

// ChatStream sends the provided messages with streaming enabled and invokes handler for each delta.
func (c *ChatClient) ChatStream(ctx context.Context, messages []ChatMessage, params Params, handler func(ChatStreamDelta) error) (ChatResult, error) {
	if c == nil {
		return ChatResult{}, errors.New("llm: client is nil")
	}
	if len(messages) == 0 {
		return ChatResult{}, errors.New("llm: messages cannot be empty")
	}

	maxTokens, temperature := c.resolve(params)
	payload := chatCompletionRequest{
		Model:       c.modelID,
		Stream:      true,
		Messages:    make([]chatCompletionMessage, 0, len(messages)),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	for _, msg := range messages {
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		payload.Messages = append(payload.Messages, chatCompletionMessage{Role: role, Content: content})
	}

	if len(payload.Messages) == 0 {
		return ChatResult{}, errors.New("llm: messages contain no content")
	}

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return ChatResult{}, fmt.Errorf("llm: encode request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return ChatResult{}, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatResult{}, fmt.Errorf("llm: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return ChatResult{}, fmt.Errorf("llm: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.Contains(contentType, "application/json") {
		var decoded chatCompletionResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return ChatResult{}, fmt.Errorf("llm: decode response: %w", err)
		}
		if len(decoded.Choices) == 0 {
			return ChatResult{}, errors.New("llm: response contains no choices")
		}
		full := strings.TrimSpace(decoded.Choices[0].Message.Content)
		if handler != nil && full != "" {
			if err := handler(ChatStreamDelta{Content: full, FullContent: full}); err != nil {
				return ChatResult{}, err
			}
		}
		if handler != nil {
			if err := handler(ChatStreamDelta{FullContent: full, Done: true}); err != nil {
				return ChatResult{}, err
			}
		}
		return ChatResult{
			Content: full,
			Usage:   convertUsage(decoded.Usage),
		}, nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var builder strings.Builder
	var usage *chatCompletionUsage

	flushDelta := func(delta ChatStreamDelta) error {
		if handler == nil {
			return nil
		}
		return handler(delta)
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(line[len("data:"):])
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			if err := flushDelta(ChatStreamDelta{FullContent: builder.String(), Done: true}); err != nil {
				return ChatResult{}, err
			}
			return ChatResult{
				Content: builder.String(),
				Usage:   convertUsage(usage),
			}, nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			deltaText := choice.Delta.Content
			if deltaText != "" {
				builder.WriteString(deltaText)
				if err := flushDelta(ChatStreamDelta{
					Content:      deltaText,
					FullContent:  builder.String(),
					FinishReason: choice.FinishReason,
				}); err != nil {
					return ChatResult{}, err
				}
			}
			if deltaText == "" && choice.FinishReason != "" {
				if err := flushDelta(ChatStreamDelta{
					FullContent:  builder.String(),
					FinishReason: choice.FinishReason,
				}); err != nil {
					return ChatResult{}, err
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return ChatResult{}, fmt.Errorf("llm: read stream: %w", err)
	}

	if err := flushDelta(ChatStreamDelta{FullContent: builder.String(), Done: true}); err != nil {
		return ChatResult{}, err
	}

	return ChatResult{
		Content: builder.String(),
		Usage:   convertUsage(usage),
	}, nil
}

func convertUsage(raw *chatCompletionUsage) *ChatUsage {
	if raw == nil {
		return nil
	}
	return &ChatUsage{
		PromptTokens:     raw.PromptTokens,
		CompletionTokens: raw.CompletionTokens,
		TotalTokens:      raw.TotalTokens,
	}
}
