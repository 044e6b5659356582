// Package model defines the data structures for mintbatch's manifest,
// configuration, per-entry state, and the durable progress ledger.
package model

// ManifestFile is the on-disk manifest format.
type ManifestFile struct {
	SchemaVersion int             `yaml:"schema_version"`
	FileType      string          `yaml:"file_type"`
	Entries       []ManifestEntry `yaml:"entries"`
}

// ManifestEntry is one desired mint. Immutable once loaded.
type ManifestEntry struct {
	// ID is the stable idempotency key within the manifest. Optional in
	// the file; the loader derives entry_NNNN from the position when empty.
	ID        string       `yaml:"id,omitempty"`
	Recipient string       `yaml:"recipient"`
	Metadata  MetadataSpec `yaml:"metadata"`
	Content   ContentSpec  `yaml:"content,omitempty"`
}

// MetadataSpec is the subset of the remote ledger's metadata schema the
// engine validates. Shape beyond the required fields is owned remotely.
type MetadataSpec struct {
	Name                 string            `yaml:"name"`
	Symbol               string            `yaml:"symbol,omitempty"`
	Description          string            `yaml:"description,omitempty"`
	SellerFeeBasisPoints uint16            `yaml:"seller_fee_basis_points,omitempty"`
	Attributes           map[string]string `yaml:"attributes,omitempty"`
}

// ContentSpec points at the minted content. At most one of IPFSCID,
// AssetURL, and URI may be set; all empty means metadata-only.
type ContentSpec struct {
	IPFSCID  string `yaml:"ipfs_cid,omitempty"`
	AssetURL string `yaml:"asset_url,omitempty"`
	URI      string `yaml:"uri,omitempty"`
	File     string `yaml:"file,omitempty"`
	SHA2     string `yaml:"sha2,omitempty"`
	SHA2Auto bool   `yaml:"sha2_auto,omitempty"`
	MimeType string `yaml:"mime_type,omitempty"`
}

// HasSource reports whether any content location is set.
func (c ContentSpec) HasSource() bool {
	return c.IPFSCID != "" || c.AssetURL != "" || c.URI != "" || c.File != ""
}
