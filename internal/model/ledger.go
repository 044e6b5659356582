package model

// ProgressRecord is the durable per-entry record. Written only when an
// entry reaches a terminal state. Once a succeeded record exists for an
// entry_id, later runs must never re-attempt that entry.
type ProgressRecord struct {
	EntryID       string `yaml:"entry_id"`
	Status        Status `yaml:"status"`
	TokenID       string `yaml:"token_id,omitempty"`
	TxSignature   string `yaml:"tx_signature,omitempty"`
	FailureReason string `yaml:"failure_reason,omitempty"`
	Attempts      int    `yaml:"attempts"`
	UpdatedAt     string `yaml:"updated_at"`
}

// LedgerFile is the on-disk progress ledger format.
type LedgerFile struct {
	SchemaVersion int              `yaml:"schema_version"`
	FileType      string           `yaml:"file_type"`
	Records       []ProgressRecord `yaml:"records"`
}
