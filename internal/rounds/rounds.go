// Package rounds implements the R1 (INITIAL) and R2 (META) fan-out
// executors. Both bound concurrency with a semaphore and preserve slot
// order in their output; R2 runs on the shared fanOut helper, while R1
// keeps its own loop since a failed primary retries its aligned backup
// inline, under the same semaphore slot, before giving up.
package rounds

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
	"github.com/fieldjoshua/UltrAI-JFF/internal/types"
)

// ConcurrencyLimit mirrors calculate_concurrency_limit: width equals the
// slot count unless attachments are present, in which case it narrows.
// The pipeline never sends attachments today, but the shape is kept so a
// future caller can pass them without touching the fan-out routine.
func ConcurrencyLimit(slotCount, attachmentCount int) int {
	if attachmentCount > 3 {
		return 1
	}
	if attachmentCount > 0 {
		return 2
	}
	return slotCount
}

// PromptBuilder produces the (system, user) message pair for one model in
// a stage.
type PromptBuilder func(model string) (system, user string)

// ProgressFunc is invoked once per slot completion with the model that
// finished, how long it took, and the running/total completed counts.
type ProgressFunc func(model string, elapsed time.Duration, completed, total int)

// fanOut runs gw.ChatCompletion for each model in models concurrently,
// bounded by limit, and returns one result per model in the SAME order as
// models (identity preserved regardless of completion order).
func fanOut(ctx context.Context, gw gateway.Gateway, models []string, build PromptBuilder, round types.Round, limit int, onProgress ProgressFunc) []types.Response {
	results := make([]types.Response, len(models))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			system, user := build(model)

			start := time.Now()
			text, err := gw.ChatCompletion(ctx, model, system, user)
			elapsed := time.Since(start)

			var resp types.Response
			if err != nil {
				resp = types.Response{Round: round, Model: model, Text: fmt.Sprintf("ERROR: %v", err), Ms: 0, Error: true}
			} else {
				resp = types.Response{Round: round, Model: model, Text: text, Ms: elapsed.Milliseconds()}
			}
			results[i] = resp

			mu.Lock()
			completed++
			n := completed
			mu.Unlock()
			if onProgress != nil {
				onProgress(model, elapsed, n, len(models))
			}
		}(i, model)
	}

	wg.Wait()
	return results
}

// InitialResult is what ExecuteInitial returns for the caller to persist
// and hand to R2.
type InitialResult struct {
	Responses        []types.Response
	FailedModels     []string
	ConcurrencyLimit int
}

// ExecuteInitial runs R1: each active-list slot is queried independently;
// a failed slot immediately tries its aligned backupList entry under the
// same semaphore before being recorded as a failure.
func ExecuteInitial(ctx context.Context, gw gateway.Gateway, activeList, backupList []string, query string, onProgress ProgressFunc) InitialResult {
	limit := ConcurrencyLimit(len(activeList), 0)
	sem := make(chan struct{}, limit)

	results := make([]types.Response, len(activeList))
	var failedMu sync.Mutex
	var failedModels []string
	var wg sync.WaitGroup
	var progMu sync.Mutex
	completed := 0
	total := len(activeList)

	reportProgress := func(model string, elapsed time.Duration) {
		progMu.Lock()
		completed++
		n := completed
		progMu.Unlock()
		if onProgress != nil {
			onProgress(model, elapsed, n, total)
		}
	}

	queryOnce := func(model string) (string, time.Duration, error) {
		sem <- struct{}{}
		defer func() { <-sem }()
		start := time.Now()
		text, err := gw.ChatCompletion(ctx, model, "", query)
		return text, time.Since(start), err
	}

	for i, model := range activeList {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()

			text, elapsed, err := queryOnce(model)
			if err == nil {
				results[i] = types.Response{Round: types.RoundInitial, Model: model, Text: text, Ms: elapsed.Milliseconds()}
				reportProgress(model, elapsed)
				return
			}

			failedMu.Lock()
			failedModels = append(failedModels, model)
			failedMu.Unlock()
			primaryErr := err

			var backupModel string
			if i < len(backupList) {
				backupModel = backupList[i]
			}
			if backupModel == "" {
				results[i] = types.Response{Round: types.RoundInitial, Model: model, Text: fmt.Sprintf("ERROR: %v", primaryErr), Ms: 0, Error: true}
				reportProgress(model, 0)
				return
			}

			backupText, backupElapsed, backupErr := queryOnce(backupModel)
			if backupErr == nil {
				results[i] = types.Response{Round: types.RoundInitial, Model: backupModel, Text: backupText, Ms: backupElapsed.Milliseconds()}
				reportProgress(backupModel, backupElapsed)
				return
			}

			results[i] = types.Response{
				Round: types.RoundInitial,
				Model: model,
				Text:  fmt.Sprintf("ERROR: Primary failed (%v), Backup failed (%v)", primaryErr, backupErr),
				Ms:    0,
				Error: true,
			}
			reportProgress(model, 0)
		}(i, model)
	}

	wg.Wait()

	return InitialResult{Responses: results, FailedModels: failedModels, ConcurrencyLimit: limit}
}

// WriteInitial persists 03_initial.json and 03_initial_status.json.
func WriteInitial(runDir, runID string, result InitialResult) error {
	if err := store.Write(runDir, "03_initial.json", result.Responses); err != nil {
		return err
	}
	models := make([]string, len(result.Responses))
	for i, r := range result.Responses {
		models[i] = r.Model
	}
	status := types.StageStatus{
		Status: "COMPLETED",
		Round:  types.RoundInitial,
		Details: map[string]interface{}{
			"count":             len(result.Responses),
			"models":            models,
			"failed_models":     result.FailedModels,
			"concurrency_limit": result.ConcurrencyLimit,
		},
		Metadata: map[string]interface{}{
			"run_id":    runID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return store.Write(runDir, "03_initial_status.json", status)
}

// LiveMembership returns the set of models that produced a non-error R1
// response, in their R1 output order — this is R2's input set.
func LiveMembership(initial []types.Response) []string {
	live := make([]string, 0, len(initial))
	for _, r := range initial {
		if !r.Error {
			live = append(live, r.Model)
		}
	}
	return live
}

const metaInstruction = "Do not assume any response is true. " +
	"Review your peers' INITIAL drafts below. " +
	"Revise your answer accordingly. " +
	"List contradictions you resolved and what changed."

// BuildPeerContext renders the full, untruncated R1 drafts as the
// double-newline-separated peer context R2 reviews.
func BuildPeerContext(initial []types.Response) string {
	parts := make([]string, 0, len(initial))
	for _, r := range initial {
		if r.Error {
			parts = append(parts, fmt.Sprintf("- %s: ERROR", r.Model))
		} else {
			parts = append(parts, fmt.Sprintf("- %s: %s", r.Model, r.Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// MetaResult is what ExecuteMeta returns.
type MetaResult struct {
	Responses        []types.Response
	ConcurrencyLimit int
}

// ExecuteMeta runs R2: every live R1 model gets the original query plus
// the full peer context and is asked to revise. One response is emitted
// per live model, identity preserved by model id.
func ExecuteMeta(ctx context.Context, gw gateway.Gateway, liveModels []string, originalQuery, peerContext string, onProgress ProgressFunc) MetaResult {
	limit := ConcurrencyLimit(len(liveModels), 0)

	build := func(model string) (string, string) {
		system := "You are in the META revision round (R2)."
		user := fmt.Sprintf("%s\n\nORIGINAL QUERY:\n%s\n\nPEER DRAFTS (INITIAL ROUND):\n%s", metaInstruction, originalQuery, peerContext)
		return system, user
	}

	results := fanOut(ctx, gw, liveModels, build, types.RoundMeta, limit, onProgress)
	return MetaResult{Responses: results, ConcurrencyLimit: limit}
}

// WriteMeta persists 04_meta.json and 04_meta_status.json.
func WriteMeta(runDir, runID string, result MetaResult) error {
	if err := store.Write(runDir, "04_meta.json", result.Responses); err != nil {
		return err
	}
	models := make([]string, len(result.Responses))
	for i, r := range result.Responses {
		models[i] = r.Model
	}
	status := types.StageStatus{
		Status: "COMPLETED",
		Round:  types.RoundMeta,
		Details: map[string]interface{}{
			"count":             len(result.Responses),
			"models":            models,
			"concurrency_limit": result.ConcurrencyLimit,
		},
		Metadata: map[string]interface{}{
			"run_id":    runID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return store.Write(runDir, "04_meta_status.json", status)
}
