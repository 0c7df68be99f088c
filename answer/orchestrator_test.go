package answer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbackend/config"
	"ragbackend/llm"
	"ragbackend/retrieval"
)

func TestBuildPrompt_NoMatchesOmitsContextBlock(t *testing.T) {
	messages := buildPrompt("what is RAG?", nil)

	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "what is RAG?", messages[1].Content)
}

func TestBuildPrompt_NumbersContextBlocksByMatchIndex(t *testing.T) {
	matches := []retrieval.Match{
		{ChunkID: 1, Snippet: "first snippet", Breadcrumbs: []string{"Intro"}},
		{ChunkID: 2, Snippet: "second snippet", Breadcrumbs: []string{"Background"}},
	}

	messages := buildPrompt("query text", matches)

	require.Len(t, messages, 3)
	contextBlock := messages[1].Content
	assert.True(t, strings.Contains(contextBlock, "[1] Intro"))
	assert.True(t, strings.Contains(contextBlock, "[2] Background"))
	assert.True(t, strings.Index(contextBlock, "[1]") < strings.Index(contextBlock, "[2]"))
}

func TestUsageFrom_PopulatesFromChatResult(t *testing.T) {
	cfg := &config.Config{LLMProvider: "openai-compatible", LLMModel: "gpt-oss-120b"}
	res := llm.ChatResult{
		Content: "an answer",
		Usage:   &llm.ChatUsage{PromptTokens: 120, CompletionTokens: 45},
	}

	usage := usageFrom(res, cfg, 250*time.Millisecond)

	assert.Equal(t, 120, usage.PromptTokens)
	assert.Equal(t, 45, usage.CompletionTokens)
	assert.Equal(t, int64(250), usage.LatencyMS)
	assert.Equal(t, "openai-compatible", usage.Provider)
	assert.Equal(t, "gpt-oss-120b", usage.Model)
}

func TestUsageFrom_NilUsageLeavesTokensZero(t *testing.T) {
	cfg := &config.Config{LLMProvider: "p", LLMModel: "m"}
	usage := usageFrom(llm.ChatResult{Content: "x"}, cfg, time.Second)

	assert.Zero(t, usage.PromptTokens)
	assert.Zero(t, usage.CompletionTokens)
}
