package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	t.Setenv("AUTH_SECRET", "a-secret")
	clearEnv(t, "EMBED_PROVIDER", "TOP_K_DEFAULT", "MAX_CTX_TOKENS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.EmbedProvider)
	assert.Equal(t, 5, cfg.TopKDefault)
	assert.Equal(t, 1200, cfg.MaxCtxTokens)
}

func TestLoad_RequiresAuthSecretWhenAuthRequired(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("REQUIRE_AUTH", "true")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_AuthSecretNotRequiredWhenAuthDisabled(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("REQUIRE_AUTH", "false")

	_, err := Load()
	require.NoError(t, err)
}

func TestLoad_RejectsUnknownEmbedProvider(t *testing.T) {
	t.Setenv("AUTH_SECRET", "a-secret")
	t.Setenv("EMBED_PROVIDER", "bogus")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RemoteEmbedRequiresURL(t *testing.T) {
	t.Setenv("AUTH_SECRET", "a-secret")
	t.Setenv("EMBED_PROVIDER", "remote")
	t.Setenv("REMOTE_EMBED_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RemoteEmbedWithURLSucceeds(t *testing.T) {
	t.Setenv("AUTH_SECRET", "a-secret")
	t.Setenv("EMBED_PROVIDER", "remote")
	t.Setenv("REMOTE_EMBED_URL", "https://embed.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "remote", cfg.EmbedProvider)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("AUTH_SECRET", "a-secret")
	t.Setenv("TOP_K_DEFAULT", "20")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.TopKDefault)
	assert.Equal(t, 10, cfg.RateLimitPerMin)
}
