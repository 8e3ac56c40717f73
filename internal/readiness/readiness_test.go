package readiness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
)

type fakeGateway struct {
	models []string
	err    error
}

func (f *fakeGateway) ChatCompletion(ctx context.Context, model, system, user string) (string, error) {
	return "", nil
}

func (f *fakeGateway) ListModels(ctx context.Context) ([]string, error) {
	return f.models, f.err
}

func TestCheckSucceeds(t *testing.T) {
	dir := t.TempDir()
	gw := &fakeGateway{models: []string{"a", "b", "c"}}

	artifact, err := Check(context.Background(), gw, dir, "run1")
	require.NoError(t, err)
	assert.Equal(t, 3, artifact.LLMCount)
	assert.Equal(t, "READY", artifact.Status)
}

func TestCheckFailsLowPluralism(t *testing.T) {
	dir := t.TempDir()
	gw := &fakeGateway{models: []string{"a"}}

	_, err := Check(context.Background(), gw, dir, "run1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrLowPluralism))
}
