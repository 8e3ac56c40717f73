// Package stats implements the statistics component (C8): it reads the
// three response artifacts and emits counts and average timings (plus the
// single R3 timing), defensively
// — a missing or malformed artifact yields zeros, never an error.
package stats

import (
	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
	"github.com/fieldjoshua/UltrAI-JFF/internal/types"
)

// Generate reads 03_initial.json, 04_meta.json, and 05_ultrai.json from
// runDir and writes stats.json. It never returns an error: any stage that
// can't be read contributes zeros.
func Generate(runDir string) types.StatsArtifact {
	artifact := types.StatsArtifact{
		Initial: collectRoundStats(runDir, "03_initial.json"),
		Meta:    collectRoundStats(runDir, "04_meta.json"),
		Ultrai:  collectUltraiStats(runDir),
	}
	_ = store.Write(runDir, "stats.json", artifact)
	return artifact
}

func collectRoundStats(runDir, name string) types.RoundStats {
	var responses []types.Response
	if err := store.Read(runDir, name, &responses); err != nil {
		return types.RoundStats{}
	}

	var sum int64
	var n int
	for _, r := range responses {
		if !r.Error {
			sum += r.Ms
			n++
		}
	}
	if n == 0 {
		return types.RoundStats{Count: len(responses), AvgMs: 0}
	}
	return types.RoundStats{Count: len(responses), AvgMs: int(sum / int64(n))}
}

func collectUltraiStats(runDir string) types.UltraiStats {
	var artifact types.SynthesisArtifact
	if err := store.Read(runDir, "05_ultrai.json", &artifact); err != nil {
		return types.UltraiStats{}
	}
	return types.UltraiStats{Count: 1, Ms: artifact.Ms}
}
