package model

// RunMetrics is the counters snapshot written next to the ledger at the
// end of a run.
type RunMetrics struct {
	SchemaVersion int             `yaml:"schema_version"`
	FileType      string          `yaml:"file_type"`
	RunID         string          `yaml:"run_id"`
	Counters      MetricsCounters `yaml:"counters"`
	UpdatedAt     string          `yaml:"updated_at"`
}

type MetricsCounters struct {
	EntriesTotal     int `yaml:"entries_total"`
	EntriesSkipped   int `yaml:"entries_skipped"`
	CallsDispatched  int `yaml:"calls_dispatched"`
	EntriesSucceeded int `yaml:"entries_succeeded"`
	EntriesFailed    int `yaml:"entries_failed"`
	RetriesScheduled int `yaml:"retries_scheduled"`
	AuthAborts       int `yaml:"auth_aborts"`
}
