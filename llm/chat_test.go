package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *ChatClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &ChatClient{
		httpClient: server.Client(),
		baseURL:    server.URL,
		apiKey:     "test-key",
		modelID:    "gpt-oss-120b",
		maxTokens:  512,
	}
}

func TestChat_ReturnsFirstChoiceContentAndUsage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.Stream)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message chatCompletionMessage `json:"message"`
			}{{Message: chatCompletionMessage{Role: "assistant", Content: "hello there"}}},
			Usage: &chatCompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	})

	result, err := client.Chat(context.Background(), []ChatMessage{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
	}, Params{})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Content)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 15, result.Usage.TotalTokens)
}

func TestChat_EmptyMessagesRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})
	_, err := client.Chat(context.Background(), nil, Params{})
	require.Error(t, err)
}

func TestChat_BlankContentMessagesFilteredAndRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})
	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "   "}}, Params{})
	require.Error(t, err)
}

func TestChat_NonOKStatusIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("server exploded"))
	})
	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Params{})
	require.Error(t, err)
}

func TestChat_NoChoicesIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatCompletionResponse{})
	})
	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Params{})
	require.Error(t, err)
}

func TestChatStream_SSEDeltasAccumulateIntoFullContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var deltas []ChatStreamDelta
	result, err := client.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Params{}, func(d ChatStreamDelta) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Content)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 5, result.Usage.TotalTokens)

	require.NotEmpty(t, deltas)
	assert.True(t, deltas[len(deltas)-1].Done)
}

func TestChatStream_JSONResponseTreatedAsSingleDelta(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionResponse{
			Choices: []struct {
				Message chatCompletionMessage `json:"message"`
			}{{Message: chatCompletionMessage{Content: "whole answer"}}},
		})
	})

	var got []ChatStreamDelta
	result, err := client.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Params{}, func(d ChatStreamDelta) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "whole answer", result.Content)
	require.Len(t, got, 2)
	assert.True(t, got[1].Done)
}

func TestChatStream_HandlerErrorAborts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	boom := fmt.Errorf("handler boom")
	_, err := client.ChatStream(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, Params{}, func(d ChatStreamDelta) error {
		return boom
	})
	require.Error(t, err)
}
