// Package synthesis implements the R3 neutral synthesis stage (C7): it
// picks one neutral model by preference, builds a dynamically truncated
// merge-only prompt from the META drafts, and invokes it once.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
	"github.com/fieldjoshua/UltrAI-JFF/internal/types"
)

// CalculateTimeout mirrors calculate_synthesis_timeout: a base derived
// from the concatenated META context length, scaled up for 4+ drafts, and
// clamped to [60s, 300s].
func CalculateTimeout(peerContext string, numMetaDrafts int) time.Duration {
	contextLen := len(peerContext)

	var lengthFactor float64
	switch {
	case contextLen < 1000:
		lengthFactor = 1.0
	case contextLen < 3000:
		lengthFactor = 1.5
	case contextLen < 5000:
		lengthFactor = 2.0
	default:
		lengthFactor = 3.0
	}

	if numMetaDrafts > 3 {
		lengthFactor *= 1.2
	}

	timeout := 60.0 * lengthFactor
	if timeout < 60 {
		timeout = 60
	}
	if timeout > 300 {
		timeout = 300
	}
	return time.Duration(timeout * float64(time.Second))
}

// MaxCharsPerDraft maps a preliminary timeout bucket to the per-draft
// truncation cap used to build the actual synthesis prompt.
func MaxCharsPerDraft(preliminaryTimeout time.Duration) int {
	switch {
	case preliminaryTimeout >= 180*time.Second:
		return 2000
	case preliminaryTimeout >= 120*time.Second:
		return 1200
	case preliminaryTimeout >= 90*time.Second:
		return 800
	default:
		return 500
	}
}

// buildPeerContext joins each META draft, labeled by model id, with a
// single newline. A negative maxChars leaves drafts untruncated; used to
// measure the real worst-case context length before the truncation bucket
// is known.
func buildPeerContext(meta []types.Response, maxChars int) string {
	parts := make([]string, 0, len(meta))
	for _, r := range meta {
		if r.Error {
			parts = append(parts, fmt.Sprintf("- %s: ERROR", r.Model))
			continue
		}
		text := r.Text
		if maxChars >= 0 && len(text) > maxChars {
			text = text[:maxChars]
		}
		parts = append(parts, fmt.Sprintf("- %s: %s", r.Model, text))
	}
	return strings.Join(parts, "\n")
}

const synthesisSystemMessage = "You are the ULTRAI neutral synthesis model (R3)."

func buildInstruction(originalQuery string) string {
	return fmt.Sprintf(
		"The user asked: %q\n\n"+
			"Multiple LLM models provided META responses to this query. "+
			"Your job is to synthesize these META drafts into one coherent answer "+
			"that best addresses the user's original query.\n\n"+
			"CRITICAL CONSTRAINTS:\n"+
			"- DO NOT introduce new information beyond what the META models provided\n"+
			"- DO NOT use your own knowledge - rely ONLY on the META drafts and the query\n"+
			"- DO NOT include data that evokes low confidence (omit claims where models "+
			"strongly disagree or express uncertainty)\n"+
			"- Your role is to MERGE and SYNTHESIZE, not to contribute new content\n\n"+
			"Review all META drafts below. Merge convergent points and resolve "+
			"contradictions. Cite which META claims were retained or omitted. "+
			"Generate one coherent synthesis with confidence notes and basic stats.",
		originalQuery,
	)
}

// Result is the outcome of one R3 invocation, ready to persist.
type Result struct {
	Artifact           types.SynthesisArtifact
	Timeout            time.Duration
	ContextLength      int
	MaxCharsPerDraft   int
	ConcurrencyFromMeta int
}

// Execute picks the neutral model from activeList, builds the
// merge-only prompt from meta, and makes the single R3 call.
func Execute(ctx context.Context, gw gateway.Gateway, activeList []string, meta []types.Response, originalQuery string, concurrencyFromMeta int) (Result, error) {
	neutral := cocktail.SelectNeutral(activeList)
	if neutral == "" {
		return Result{}, fmt.Errorf("unable to select neutral ULTRA model from active list")
	}

	untruncated := buildPeerContext(meta, -1)
	preliminary := CalculateTimeout(untruncated, len(meta))
	maxChars := MaxCharsPerDraft(preliminary)
	peerContext := buildPeerContext(meta, maxChars)
	timeout := CalculateTimeout(peerContext, len(meta))

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user := buildInstruction(originalQuery) + "\n\nMETA DRAFTS:\n" + peerContext

	start := time.Now()
	text, err := gw.ChatCompletion(callCtx, neutral, synthesisSystemMessage, user)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("synthesis call to %s: %w", neutral, err)
	}

	return Result{
		Artifact: types.SynthesisArtifact{
			Round:         types.RoundUltrai,
			Model:         neutral,
			NeutralChosen: neutral,
			Text:          text,
			Ms:            elapsed.Milliseconds(),
			Stats: types.SynthesisStats{
				ActiveCount: len(activeList),
				MetaCount:   len(meta),
			},
		},
		Timeout:             timeout,
		ContextLength:       len(peerContext),
		MaxCharsPerDraft:    maxChars,
		ConcurrencyFromMeta: concurrencyFromMeta,
	}, nil
}

// Write persists 05_ultrai.json and 05_ultrai_status.json.
func Write(runDir, runID string, result Result) error {
	if err := store.Write(runDir, "05_ultrai.json", result.Artifact); err != nil {
		return err
	}
	status := types.StageStatus{
		Status: "COMPLETED",
		Round:  types.RoundUltrai,
		Details: map[string]interface{}{
			"neutral":               true,
			"model":                 result.Artifact.Model,
			"timeout":               result.Timeout.Seconds(),
			"context_length":        result.ContextLength,
			"num_meta_drafts":       result.Artifact.Stats.MetaCount,
			"max_chars_per_draft":   result.MaxCharsPerDraft,
			"concurrency_from_meta": result.ConcurrencyFromMeta,
		},
		Metadata: map[string]interface{}{
			"run_id":    runID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return store.Write(runDir, "05_ultrai_status.json", status)
}
