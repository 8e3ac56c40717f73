package synthesis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldjoshua/UltrAI-JFF/internal/types"
)

type fakeGateway struct {
	text string
	err  error
}

func (f *fakeGateway) ChatCompletion(ctx context.Context, model, system, user string) (string, error) {
	return f.text, f.err
}

func (f *fakeGateway) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func TestCalculateTimeoutBuckets(t *testing.T) {
	assert.Equal(t, 60*time.Second, CalculateTimeout(strings.Repeat("x", 500), 2))
	assert.Equal(t, 90*time.Second, CalculateTimeout(strings.Repeat("x", 2000), 2))
	assert.Equal(t, 120*time.Second, CalculateTimeout(strings.Repeat("x", 4000), 2))
	assert.Equal(t, 180*time.Second, CalculateTimeout(strings.Repeat("x", 6000), 2))
}

func TestCalculateTimeoutScalesForManyDrafts(t *testing.T) {
	// 4500 chars falls in the <5000 bucket (120s base); 4 drafts multiplies by 1.2.
	got := CalculateTimeout(strings.Repeat("x", 4500), 4)
	assert.Equal(t, time.Duration(144*float64(time.Second)), got)
}

func TestCalculateTimeoutClampsToRange(t *testing.T) {
	got := CalculateTimeout("", 1)
	assert.GreaterOrEqual(t, got, 60*time.Second)
	assert.LessOrEqual(t, got, 300*time.Second)
}

func TestMaxCharsPerDraftBuckets(t *testing.T) {
	assert.Equal(t, 2000, MaxCharsPerDraft(200*time.Second))
	assert.Equal(t, 1200, MaxCharsPerDraft(150*time.Second))
	assert.Equal(t, 800, MaxCharsPerDraft(100*time.Second))
	assert.Equal(t, 500, MaxCharsPerDraft(60*time.Second))
}

func TestExecuteSelectsNeutralAndBuildsStats(t *testing.T) {
	gw := &fakeGateway{text: "synthesized answer"}
	active := []string{"openai/gpt-4o-mini", "anthropic/claude-3-haiku"}
	meta := []types.Response{
		{Model: "openai/gpt-4o-mini", Text: "draft one"},
		{Model: "anthropic/claude-3-haiku", Text: "draft two"},
	}

	result, err := Execute(context.Background(), gw, active, meta, "what is 2+2?", 2)
	require.NoError(t, err)

	assert.Equal(t, "openai/gpt-4o-mini", result.Artifact.Model)
	assert.Equal(t, "openai/gpt-4o-mini", result.Artifact.NeutralChosen)
	assert.Equal(t, "synthesized answer", result.Artifact.Text)
	assert.Equal(t, 2, result.Artifact.Stats.ActiveCount)
	assert.Equal(t, 2, result.Artifact.Stats.MetaCount)
}
