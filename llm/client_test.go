package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbackend/config"
	"ragbackend/ragerrors"
)

func testConfig() *config.Config {
	return &config.Config{
		LLMModel:       "gpt-oss-120b",
		LLMTimeout:     30 * time.Second,
		LLMMaxTokens:   512,
		LLMTemperature: 0.2,
	}
}

func TestNewFromConfig_RequiresAPIKey(t *testing.T) {
	_, err := NewFromConfig(testConfig(), "", "https://example.com/v1")
	require.Error(t, err)
	assert.Equal(t, ragerrors.ConfigError, ragerrors.KindOf(err))
}

func TestNewFromConfig_DefaultsBaseURL(t *testing.T) {
	client, err := NewFromConfig(testConfig(), "key-123", "")
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, client.baseURL)
}

func TestNewFromConfig_TrimsTrailingSlash(t *testing.T) {
	client, err := NewFromConfig(testConfig(), "key-123", "https://example.com/v1/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v1", client.baseURL)
}

func TestNewFromConfig_RejectsNonHTTPBaseURL(t *testing.T) {
	_, err := NewFromConfig(testConfig(), "key-123", "ftp://example.com")
	require.Error(t, err)
	assert.Equal(t, ragerrors.ConfigError, ragerrors.KindOf(err))
}

func TestResolve_PerRequestOverridesDefault(t *testing.T) {
	client, err := NewFromConfig(testConfig(), "key-123", "")
	require.NoError(t, err)

	maxTokens, temperature := client.resolve(Params{MaxTokens: 256, Temperature: 0.9})
	assert.Equal(t, 256, maxTokens)
	assert.Equal(t, 0.9, temperature)
}

func TestResolve_ZeroParamsKeepClientDefault(t *testing.T) {
	client, err := NewFromConfig(testConfig(), "key-123", "")
	require.NoError(t, err)

	maxTokens, temperature := client.resolve(Params{})
	assert.Equal(t, 512, maxTokens)
	assert.Equal(t, 0.2, temperature)
}
