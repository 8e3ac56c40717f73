// Package cocktail holds the compiled-in model rosters for each named
// cocktail, carried over verbatim from the original active_llms module, with
// an optional YAML override for operators who want to repoint models
// without a rebuild.
package cocktail

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Cocktail names every request must resolve to one of.
const (
	LUXE    = "LUXE"
	PREMIUM = "PREMIUM"
	SPEEDY  = "SPEEDY"
	BUDGET  = "BUDGET"
	DEPTH   = "DEPTH"
)

// Names lists every valid cocktail, in the order the API validates against.
var Names = []string{LUXE, PREMIUM, SPEEDY, BUDGET, DEPTH}

// Roster is the primary/fallback model triple for one cocktail.
type Roster struct {
	Primary  [3]string `yaml:"primary"`
	Fallback [3]string `yaml:"fallback"`
}

// PrimaryAttempts is how many times a primary model slot is tried before its
// fallback is activated.
const PrimaryAttempts = 2

// PrimaryTimeoutSeconds bounds a single primary-slot attempt.
const PrimaryTimeoutSeconds = 15

// Quorum is the minimum number of realized slots a run can proceed with.
const Quorum = 2

var defaultRosters = map[string]Roster{
	LUXE: {
		Primary:  [3]string{"openai/gpt-4o", "anthropic/claude-sonnet-4.5", "google/gemini-2.0-flash-exp:free"},
		Fallback: [3]string{"openai/chatgpt-4o-latest", "anthropic/claude-3.7-sonnet", "google/gemini-2.5-pro"},
	},
	PREMIUM: {
		Primary:  [3]string{"anthropic/claude-3.7-sonnet", "openai/gpt-4o", "google/gemini-2.5-pro"},
		Fallback: [3]string{"x-ai/grok-3", "openai/chatgpt-4o-latest", "meta-llama/llama-3.3-70b-instruct"},
	},
	SPEEDY: {
		Primary:  [3]string{"openai/gpt-4o-mini", "anthropic/claude-3-haiku", "x-ai/grok-3-mini"},
		Fallback: [3]string{"google/gemini-2.0-flash-exp:free", "qwen/qwen-2.5-72b-instruct", "meta-llama/llama-3.3-70b-instruct"},
	},
	BUDGET: {
		Primary:  [3]string{"openai/gpt-3.5-turbo", "google/gemini-2.0-flash-exp:free", "qwen/qwen-2.5-72b-instruct"},
		Fallback: [3]string{"meta-llama/llama-3.3-70b-instruct", "openai/gpt-4o-mini", "anthropic/claude-3-haiku"},
	},
	DEPTH: {
		Primary:  [3]string{"anthropic/claude-3.7-sonnet", "openai/gpt-4o", "meta-llama/llama-3.3-70b-instruct"},
		Fallback: [3]string{"openai/chatgpt-4o-latest", "anthropic/claude-sonnet-4.5", "google/gemini-2.0-flash-exp:free"},
	},
}

// PreferredUltra is the neutral-synthesis model preference order, carried
// over verbatim from the original PREFERRED_ULTRA list.
var PreferredUltra = []string{
	"anthropic/claude-3.7-sonnet",
	"openai/gpt-4o",
	"google/gemini-2.0-flash-thinking-exp:free",
	"meta-llama/llama-3.3-70b-instruct",
}

// Table is the resolved set of rosters that Lookup serves from.
type Table struct {
	rosters map[string]Roster
}

// Default returns a Table built from the compiled-in rosters.
func Default() *Table {
	cp := make(map[string]Roster, len(defaultRosters))
	for k, v := range defaultRosters {
		cp[k] = v
	}
	return &Table{rosters: cp}
}

// LoadOverride reads a YAML file of the shape:
//
//	PREMIUM:
//	  primary: [a, b, c]
//	  fallback: [d, e, f]
//
// and replaces any cocktail it names in t. Cocktails it doesn't mention
// keep their compiled-in roster.
func (t *Table) LoadOverride(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading cocktail override: %w", err)
	}
	var overrides map[string]Roster
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing cocktail override: %w", err)
	}
	for name, roster := range overrides {
		t.rosters[name] = roster
	}
	return nil
}

// Lookup returns the roster for name, or false if name isn't a known
// cocktail.
func (t *Table) Lookup(name string) (Roster, bool) {
	r, ok := t.rosters[name]
	return r, ok
}

// Valid reports whether name is one of the five known cocktails.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

// SelectNeutral walks PreferredUltra and returns the first model present in
// activeList; if none match, it falls back to activeList[0].
func SelectNeutral(activeList []string) string {
	present := make(map[string]bool, len(activeList))
	for _, m := range activeList {
		present[m] = true
	}
	for _, pref := range PreferredUltra {
		if present[pref] {
			return pref
		}
	}
	if len(activeList) > 0 {
		return activeList[0]
	}
	return ""
}
