// Package readiness implements the system-readiness probe (C3): it lists
// the models the gateway currently reports and writes 00_ready.json.
package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
	"github.com/fieldjoshua/UltrAI-JFF/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
	"github.com/fieldjoshua/UltrAI-JFF/internal/types"
)

// MinReadyModels is the pluralism floor: fewer than this and the run can't
// proceed.
const MinReadyModels = 2

// Check lists available models via gw, requires at least MinReadyModels,
// and writes 00_ready.json to runDir.
func Check(ctx context.Context, gw gateway.Gateway, runDir, runID string) (*types.ReadyArtifact, error) {
	models, err := gw.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	if len(models) < MinReadyModels {
		return nil, fmt.Errorf("%w: found %d, need at least %d", apperrors.ErrLowPluralism, len(models), MinReadyModels)
	}

	artifact := &types.ReadyArtifact{
		RunID:     runID,
		ReadyList: models,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    "READY",
		LLMCount:  len(models),
	}

	if err := store.Write(runDir, "00_ready.json", artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}
