// Package types holds the wire-shape records every stage reads or writes,
// kept separate from the stages themselves so store, runner, and api can all
// import them without cycles.
package types

// Round names the three synthesis rounds.
type Round string

const (
	RoundInitial Round = "INITIAL"
	RoundMeta    Round = "META"
	RoundUltrai  Round = "ULTRAI"
)

// Reason values record how an activation slot was filled.
const (
	ReasonPrimaryReady      = "PRIMARY_READY"
	ReasonReplacedFallback  = "REPLACED_FALLBACK"
	ReasonReplacedAlt       = "REPLACED_ALT"
	ReasonNotReadyNoReplace = "NOT_READY_NO_REPLACEMENT"
)

// Inputs is the first artifact written for a run, capturing exactly what
// the caller asked for.
type Inputs struct {
	Query    string   `json:"query"`
	Analysis string   `json:"analysis"`
	Cocktail string   `json:"cocktail"`
	Addons   []string `json:"addons"`
}

// ReadyArtifact is 00_ready.json.
type ReadyArtifact struct {
	RunID     string   `json:"run_id"`
	ReadyList []string `json:"readyList"`
	Timestamp string   `json:"timestamp"`
	Status    string   `json:"status"`
	LLMCount  int      `json:"llm_count"`
}

// ActivateArtifact is 02_activate.json.
type ActivateArtifact struct {
	ActiveList []string          `json:"activeList"`
	BackupList []string          `json:"backupList"`
	Quorum     int               `json:"quorum"`
	Cocktail   string            `json:"cocktail"`
	Reasons    map[string]string `json:"reasons"`
}

// Response is one model's output within a round.
type Response struct {
	Round Round  `json:"round"`
	Model string `json:"model"`
	Text  string `json:"text"`
	Ms    int64  `json:"ms"`
	Error bool   `json:"error,omitempty"`
}

// StageStatus is the status sibling document written alongside a round's
// response list.
type StageStatus struct {
	Status   string                 `json:"status"`
	Round    Round                  `json:"round"`
	Details  map[string]interface{} `json:"details"`
	Metadata map[string]interface{} `json:"metadata"`
}

// SynthesisStats is the {active_count, meta_count} pair embedded in
// 05_ultrai.json.
type SynthesisStats struct {
	ActiveCount int `json:"active_count"`
	MetaCount   int `json:"meta_count"`
}

// SynthesisArtifact is 05_ultrai.json.
type SynthesisArtifact struct {
	Round         Round          `json:"round"`
	Model         string         `json:"model"`
	NeutralChosen string         `json:"neutralChosen"`
	Text          string         `json:"text"`
	Ms            int64          `json:"ms"`
	Stats         SynthesisStats `json:"stats"`
}

// RoundStats is one entry of stats.json ({count, avg_ms} for R1/R2).
type RoundStats struct {
	Count int `json:"count"`
	AvgMs int `json:"avg_ms"`
}

// UltraiStats is the R3 entry of stats.json ({count, ms}).
type UltraiStats struct {
	Count int   `json:"count"`
	Ms    int64 `json:"ms"`
}

// StatsArtifact is stats.json.
type StatsArtifact struct {
	Initial RoundStats  `json:"INITIAL"`
	Meta    RoundStats  `json:"META"`
	Ultrai  UltraiStats `json:"ULTRAI"`
}
