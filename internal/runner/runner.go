// Package runner implements the run controller (C9): it assigns run IDs,
// schedules the pipeline as a background task, tracks best-effort progress
// in memory, and appends structured events to a per-run NDJSON log —
// patterned after gomind's async-task lifecycle (queued/running/terminal)
// even though this runner has no external queue to back it.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldjoshua/UltrAI-JFF/internal/activation"
	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
	"github.com/fieldjoshua/UltrAI-JFF/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF/internal/logging"
	"github.com/fieldjoshua/UltrAI-JFF/internal/readiness"
	"github.com/fieldjoshua/UltrAI-JFF/internal/rounds"
	"github.com/fieldjoshua/UltrAI-JFF/internal/stats"
	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
	"github.com/fieldjoshua/UltrAI-JFF/internal/synthesis"
	"github.com/fieldjoshua/UltrAI-JFF/internal/telemetry"
	"github.com/fieldjoshua/UltrAI-JFF/internal/types"
)

var tracer = otel.Tracer("github.com/fieldjoshua/UltrAI-JFF/internal/runner")

// StepStatus mirrors gomind's TaskStatus for one progress step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
)

// Step is one entry of a run's progress steps list.
type Step struct {
	Text      string     `json:"text"`
	Status    StepStatus `json:"status"`
	Progress  int        `json:"progress"`
	Timestamp string     `json:"timestamp"`
	TimeSec   float64    `json:"time,omitempty"`
}

// Snapshot is an immutable copy of a run's progress, safe to hand to
// callers without risking mutation of the tracker's internal state.
type Snapshot struct {
	Steps      []Step
	Percentage int
	LastUpdate string
}

// Tracker is the process-wide, mutex-guarded map from run id to progress.
// It hands out snapshots, never references, per the single-writer-mutex
// discipline the pipeline's concurrency model calls for.
type Tracker struct {
	mu    sync.Mutex
	runs  map[string][]Step
}

// NewTracker returns an empty progress tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string][]Step)}
}

func (t *Tracker) init(runID string, steps []Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[runID] = steps
}

func (t *Tracker) update(runID string, index int, status StepStatus, progress int, timeSec float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	steps := t.runs[runID]
	if index < 0 || index >= len(steps) {
		return
	}
	steps[index].Status = status
	steps[index].Progress = progress
	steps[index].Timestamp = time.Now().UTC().Format(time.RFC3339)
	if timeSec > 0 {
		steps[index].TimeSec = timeSec
	}
}

// Snapshot returns a deep copy of runID's current steps and overall
// percentage, or false if the tracker has no record (process restart,
// or the run hasn't reached the controller yet).
func (t *Tracker) Snapshot(runID string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	steps, ok := t.runs[runID]
	if !ok {
		return Snapshot{}, false
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)

	total := 0
	for _, s := range cp {
		total += s.Progress
	}
	pct := 0
	if len(cp) > 0 {
		pct = total / len(cp)
	}
	return Snapshot{Steps: cp, Percentage: pct, LastUpdate: time.Now().UTC().Format(time.RFC3339)}, true
}

// EventLog appends NDJSON lines to runDir/events.log, rotating the file
// once it exceeds maxBytes.
type EventLog struct {
	mu       sync.Mutex
	runDir   string
	maxBytes int64
}

func NewEventLog(runDir string, maxBytes int64) *EventLog {
	return &EventLog{runDir: runDir, maxBytes: maxBytes}
}

func (e *EventLog) Append(event map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	event["ts"] = time.Now().UTC().Format(time.RFC3339)
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	path := filepath.Join(e.runDir, "events.log")
	if info, err := os.Stat(path); err == nil && e.maxBytes > 0 && info.Size() >= e.maxBytes {
		rotated := path + "." + time.Now().UTC().Format("20060102T150405")
		_ = os.Rename(path, rotated)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(line)
}

// Controller wires the store, gateway, cocktail table, and progress
// tracker together to run the pipeline end to end for each request.
type Controller struct {
	Store            *store.Store
	Cocktails        *cocktail.Table
	Tracker          *Tracker
	Logger           logging.Logger
	EventLogMaxBytes int64
	NewGateway       func() gateway.Gateway
	Metrics          *telemetry.Metrics
}

// metrics returns c.Metrics, or a freshly constructed one if the caller
// left it nil (tests and older callers don't set it).
func (c *Controller) metrics() *telemetry.Metrics {
	if c.Metrics == nil {
		c.Metrics = telemetry.New("github.com/fieldjoshua/UltrAI-JFF/internal/runner")
	}
	return c.Metrics
}

// AllocateRunID builds a run id in the api_<cocktail-lc>_<timestamp>
// shape, with a uuid suffix to guarantee uniqueness under concurrent
// requests for the same cocktail within the same second.
func AllocateRunID(cocktailName string) string {
	ts := time.Now().UTC().Format("20060102_150405")
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("api_%s_%s_%s", strings.ToLower(cocktailName), ts, suffix)
}

// StartRun allocates a run directory, writes 01_inputs.json, and launches
// the pipeline in a background goroutine. It returns the run id
// immediately; the caller does not block on pipeline completion.
func (c *Controller) StartRun(query, cocktailName string) (string, error) {
	runID := AllocateRunID(cocktailName)
	runDir, err := c.Store.Create(runID)
	if err != nil {
		return "", err
	}

	inputs := types.Inputs{Query: query, Analysis: "Synthesis", Cocktail: cocktailName, Addons: []string{}}
	if err := store.Write(runDir, "01_inputs.json", inputs); err != nil {
		return "", err
	}

	go c.run(runID, runDir, inputs)

	return runID, nil
}

func (c *Controller) run(runID, runDir string, inputs types.Inputs) {
	ctx, span := tracer.Start(context.Background(), "pipeline.run",
		trace.WithAttributes(attribute.String("run_id", runID), attribute.String("cocktail", inputs.Cocktail)))
	defer span.End()

	events := NewEventLog(runDir, c.EventLogMaxBytes)
	log := c.Logger.WithComponent("runner")
	c.metrics().RunStarted(ctx, inputs.Cocktail)

	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, fmt.Errorf("panic: %v", r))
		}
	}()

	c.Tracker.init(runID, []Step{
		{Text: "Checking gateway readiness", Status: StepPending},
		{Text: "Resolving cocktail activation", Status: StepPending},
	})

	gw := c.NewGateway()

	c.Tracker.update(runID, 0, StepInProgress, 10, 0)
	events.Append(map[string]interface{}{"stage": "readiness", "status": "started", "run_id": runID})
	readinessCtx, readinessSpan := tracer.Start(ctx, "pipeline.readiness")
	readyArtifact, err := readiness.Check(readinessCtx, gw, runDir, runID)
	readinessSpan.End()
	if err != nil {
		span.RecordError(err)
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("readiness", runID, err))
		return
	}
	c.Tracker.update(runID, 0, StepCompleted, 100, 0)
	events.Append(map[string]interface{}{"stage": "readiness", "status": "completed", "llm_count": readyArtifact.LLMCount})

	roster, ok := c.Cocktails.Lookup(inputs.Cocktail)
	if !ok {
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("activation", runID, fmt.Errorf("%w: unknown cocktail %s", apperrors.ErrCocktailUnsatisfiable, inputs.Cocktail)))
		return
	}

	c.Tracker.update(runID, 1, StepInProgress, 10, 0)
	_, activationSpan := tracer.Start(ctx, "pipeline.activation")
	activateArtifact, err := activation.Resolve(inputs.Cocktail, roster, readyArtifact.ReadyList)
	activationSpan.End()
	if err != nil {
		span.RecordError(err)
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("activation", runID, err))
		return
	}
	if err := store.Write(runDir, "02_activate.json", activateArtifact); err != nil {
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("activation", runID, err))
		return
	}
	c.Tracker.update(runID, 1, StepCompleted, 100, 0)
	events.Append(map[string]interface{}{"stage": "activation", "status": "completed", "active_list": activateArtifact.ActiveList})

	c.runInitial(ctx, gw, runDir, runID, inputs, activateArtifact, events, log)
}

func (c *Controller) runInitial(ctx context.Context, gw gateway.Gateway, runDir, runID string, inputs types.Inputs, activateArtifact *types.ActivateArtifact, events *EventLog, log logging.Logger) {
	steps := make([]Step, len(activateArtifact.ActiveList))
	for i, m := range activateArtifact.ActiveList {
		steps[i] = Step{Text: "R1: " + m, Status: StepPending}
	}
	c.Tracker.init(runID+":r1", steps)

	onProgress := func(model string, elapsed time.Duration, completed, total int) {
		c.Tracker.update(runID+":r1", completed-1, StepCompleted, 100, elapsed.Seconds())
		events.Append(map[string]interface{}{"stage": "r1", "model": model, "completed": completed, "total": total})
		c.metrics().ModelCall(ctx, model, "r1")
	}

	r1Ctx, r1Span := tracer.Start(ctx, "pipeline.r1_initial")
	initialResult := rounds.ExecuteInitial(r1Ctx, gw, activateArtifact.ActiveList, activateArtifact.BackupList, inputs.Query, onProgress)
	r1Span.End()
	if err := rounds.WriteInitial(runDir, runID, initialResult); err != nil {
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("r1", runID, err))
		return
	}

	c.runMeta(ctx, gw, runDir, runID, inputs, activateArtifact, initialResult, events, log)
}

func (c *Controller) runMeta(ctx context.Context, gw gateway.Gateway, runDir, runID string, inputs types.Inputs, activateArtifact *types.ActivateArtifact, initialResult rounds.InitialResult, events *EventLog, log logging.Logger) {
	live := rounds.LiveMembership(initialResult.Responses)
	if len(live) < 2 {
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("r2", runID, apperrors.ErrInsufficientPeers))
		return
	}

	peerContext := rounds.BuildPeerContext(initialResult.Responses)

	steps := make([]Step, len(live))
	for i, m := range live {
		steps[i] = Step{Text: "R2: " + m, Status: StepPending}
	}
	c.Tracker.init(runID+":r2", steps)

	onProgress := func(model string, elapsed time.Duration, completed, total int) {
		c.Tracker.update(runID+":r2", completed-1, StepCompleted, 100, elapsed.Seconds())
		events.Append(map[string]interface{}{"stage": "r2", "model": model, "completed": completed, "total": total})
		c.metrics().ModelCall(ctx, model, "r2")
	}

	r2Ctx, r2Span := tracer.Start(ctx, "pipeline.r2_meta")
	metaResult := rounds.ExecuteMeta(r2Ctx, gw, live, inputs.Query, peerContext, onProgress)
	r2Span.End()
	if err := rounds.WriteMeta(runDir, runID, metaResult); err != nil {
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("r2", runID, err))
		return
	}

	c.runSynthesis(ctx, gw, runDir, runID, inputs, activateArtifact, metaResult, events, log)
}

func (c *Controller) runSynthesis(ctx context.Context, gw gateway.Gateway, runDir, runID string, inputs types.Inputs, activateArtifact *types.ActivateArtifact, metaResult rounds.MetaResult, events *EventLog, log logging.Logger) {
	events.Append(map[string]interface{}{"stage": "r3", "status": "started", "phase": "Initializing NEUTRAL LLM"})

	r3Ctx, r3Span := tracer.Start(ctx, "pipeline.r3_synthesis")
	result, err := synthesis.Execute(r3Ctx, gw, activateArtifact.ActiveList, metaResult.Responses, inputs.Query, metaResult.ConcurrencyLimit)
	r3Span.End()
	if err != nil {
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("r3", runID, err))
		return
	}
	if err := synthesis.Write(runDir, runID, result); err != nil {
		c.fail(ctx, runDir, events, log, runID, inputs.Cocktail, apperrors.Stage("r3", runID, err))
		return
	}
	events.Append(map[string]interface{}{"stage": "r3", "status": "completed", "model": result.Artifact.Model})

	statsArtifact := stats.Generate(runDir)
	events.Append(map[string]interface{}{"stage": "stats", "status": "completed", "stats": statsArtifact})

	c.metrics().RunCompleted(ctx, inputs.Cocktail)
	log.Info("run completed", map[string]interface{}{"run_id": runID})
}

func (c *Controller) fail(ctx context.Context, runDir string, events *EventLog, log logging.Logger, runID, cocktailName string, err error) {
	_ = store.WriteErrorFile(runDir, "PipelineError", err.Error())
	events.Append(map[string]interface{}{"stage": "error", "message": err.Error()})
	c.metrics().RunFailed(ctx, cocktailName, apperrors.StageOf(err))
	log.Error("run failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
}
