package model

// EntryState is the per-entry mutable record. Owned exclusively by the
// orchestrator for the duration of a run; the transport and signer never
// touch it.
type EntryState struct {
	EntryID     string       `yaml:"entry_id" json:"entry_id"`
	Recipient   string       `yaml:"recipient" json:"recipient"`
	Status      Status       `yaml:"status" json:"status"`
	Attempts    int          `yaml:"attempts" json:"attempts"`
	LastOutcome *CallOutcome `yaml:"last_outcome,omitempty" json:"last_outcome,omitempty"`
	LastError   string       `yaml:"last_error,omitempty" json:"last_error,omitempty"`
	UpdatedAt   string       `yaml:"updated_at" json:"updated_at"`
}

// BatchSummary is the aggregate result of one run. Read-only after the
// orchestrator constructs it.
type BatchSummary struct {
	RunID        string       `yaml:"run_id" json:"run_id"`
	ManifestPath string       `yaml:"manifest_path" json:"manifest_path"`
	StartedAt    string       `yaml:"started_at" json:"started_at"`
	FinishedAt   string       `yaml:"finished_at" json:"finished_at"`
	Succeeded    int          `yaml:"succeeded" json:"succeeded"`
	Failed       int          `yaml:"failed" json:"failed"`
	Skipped      int          `yaml:"skipped" json:"skipped"`
	Aborted      bool         `yaml:"aborted" json:"aborted"`
	AbortReason  string       `yaml:"abort_reason,omitempty" json:"abort_reason,omitempty"`
	Entries      []EntryState `yaml:"entries" json:"entries"`
}
