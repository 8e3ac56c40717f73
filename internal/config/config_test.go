package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
)

func TestNewRequiresCredential(t *testing.T) {
	_, err := New()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingCredential)
}

func TestNewAppliesOptions(t *testing.T) {
	cfg, err := New(
		WithOpenRouterKey("key-123"),
		WithPort(9090),
		WithCORSOrigin("https://example.com"),
	)
	require.NoError(t, err)
	assert.Equal(t, "key-123", cfg.OpenRouterKey)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://example.com", cfg.CORSOrigin)
}

func TestWithPortRejectsOutOfRange(t *testing.T) {
	_, err := New(WithOpenRouterKey("k"), WithPort(0))
	assert.Error(t, err)

	_, err = New(WithOpenRouterKey("k"), WithPort(70000))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_JSON", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.OpenRouterKey)
	assert.Equal(t, 9999, cfg.Port)
	assert.True(t, cfg.LogJSON)
}
