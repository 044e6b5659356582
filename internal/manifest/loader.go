// Package manifest loads the ordered list of desired mints from a YAML
// file and derives stable entry IDs for idempotent resumption.
package manifest

import (
	"fmt"
	"os"
	"regexp"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/nftops/mintbatch/internal/model"
)

const (
	// FileType identifies a manifest file; an empty value is accepted for
	// hand-written manifests.
	FileType = "mint_manifest"

	SchemaVersion = 1
)

// Explicit IDs must be filename- and log-safe.
var entryIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Load reads the manifest at path. Entry IDs are taken from the explicit
// id field when present and derived from the 1-based position otherwise
// (entry_0001, entry_0002, ...), so repeated loads of the same file yield
// the same IDs. Duplicate IDs are an error.
func Load(path string) ([]model.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var file model.ManifestFile
	if err := yamlv3.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if file.FileType != "" && file.FileType != FileType {
		return nil, fmt.Errorf("unexpected file_type %q (want %q)", file.FileType, FileType)
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("manifest has no entries")
	}

	seen := make(map[string]int, len(file.Entries))
	entries := make([]model.ManifestEntry, 0, len(file.Entries))
	for i, e := range file.Entries {
		if e.ID == "" {
			e.ID = fmt.Sprintf("entry_%04d", i+1)
		} else if !entryIDRegex.MatchString(e.ID) {
			return nil, fmt.Errorf("entry %d: invalid id %q", i+1, e.ID)
		}
		if prev, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("duplicate entry id %q (entries %d and %d)", e.ID, prev, i+1)
		}
		seen[e.ID] = i + 1
		entries = append(entries, e)
	}

	return entries, nil
}
