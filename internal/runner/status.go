package runner

import (
	"time"

	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
)

// artifactOrder is walked in order; the last artifact in it that is
// present defines the run's current phase.
var artifactOrder = []string{
	"00_ready.json",
	"01_inputs.json",
	"02_activate.json",
	"03_initial.json",
	"04_meta.json",
	"05_ultrai.json",
	"stats.json",
}

// Status is the computed view returned by getStatus.
type Status struct {
	RunID      string   `json:"run_id"`
	Phase      string   `json:"phase"`
	Round      string   `json:"round"`
	Completed  bool     `json:"completed"`
	Failed     bool     `json:"failed"`
	Artifacts  []string `json:"artifacts"`
	Steps      []Step   `json:"steps"`
	Progress   int      `json:"progress"`
	LastUpdate string   `json:"last_update"`
}

// currentPhase reports the highest-numbered artifact present. Every run has
// 01_inputs.json from StartRun, so a run that fails at readiness or at
// activation (e.g. an unsatisfiable cocktail, after 00_ready.json is
// written) reports phase "01_inputs.json", never "00_ready.json".
func currentPhase(runDir string) string {
	phase := ""
	for _, name := range artifactOrder {
		if store.Exists(runDir, name) {
			phase = name
		}
	}
	return phase
}

func currentRound(runDir string) string {
	switch {
	case store.Exists(runDir, "05_ultrai.json"):
		return "R3"
	case store.Exists(runDir, "04_meta.json"):
		return "R2"
	case store.Exists(runDir, "03_initial.json"):
		return "R1"
	default:
		return ""
	}
}

// GetStatus computes a run's status by combining artifact presence (the
// durable source of truth) with the in-memory progress tracker
// (best-effort, absent after a restart).
func (c *Controller) GetStatus(runID, runDir string) (Status, error) {
	artifacts, err := store.List(runDir, "*.json")
	if err != nil {
		return Status{}, err
	}

	_, failed := store.ReadErrorFile(runDir)
	completed := store.Exists(runDir, "05_ultrai.json")

	status := Status{
		RunID:     runID,
		Phase:     currentPhase(runDir),
		Round:     currentRound(runDir),
		Completed: completed,
		Failed:    failed,
		Artifacts: artifacts,
	}

	if snap, ok := c.Tracker.Snapshot(runID); ok {
		status.Steps = append(status.Steps, snap.Steps...)
	}
	if snap, ok := c.Tracker.Snapshot(runID + ":r1"); ok {
		status.Steps = append(status.Steps, snap.Steps...)
	}
	if snap, ok := c.Tracker.Snapshot(runID + ":r2"); ok {
		status.Steps = append(status.Steps, snap.Steps...)
	}
	if len(status.Steps) > 0 {
		total := 0
		for _, s := range status.Steps {
			total += s.Progress
		}
		status.Progress = total / len(status.Steps)
		status.LastUpdate = time.Now().UTC().Format(time.RFC3339)
	}

	return status, nil
}
