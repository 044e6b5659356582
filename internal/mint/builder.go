// Package mint builds canonical mint requests from manifest entries and
// validates them before anything touches the network.
package mint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"

	"github.com/nftops/mintbatch/internal/model"
)

// Remote metadata field limits enforced locally so a malformed entry
// fails before dispatch instead of burning an attempt.
const (
	maxNameLen   = 32
	maxSymbolLen = 10
	maxURILen    = 200

	defaultContentType = "application/octet-stream"
	maxSellerFeeBps    = 10000
)

// ValidationError is a local, non-retryable, entry-scoped failure. The
// orchestrator records it as terminal without contacting the remote
// service.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Builder converts manifest entries into mint requests for one operator
// identity. Pure transform; safe for concurrent use.
type Builder struct {
	authority string // minting-authority public key, base58
}

func NewBuilder(authority string) *Builder {
	return &Builder{authority: authority}
}

// Build validates entry and produces its canonical request. The returned
// error, when non-nil, is always a *ValidationError.
func (b *Builder) Build(entry model.ManifestEntry) (model.MintRequest, error) {
	req := model.MintRequest{
		EntryID:   entry.ID,
		Recipient: entry.Recipient,
		Authority: b.authority,

		Name:                 entry.Metadata.Name,
		Symbol:               entry.Metadata.Symbol,
		Description:          entry.Metadata.Description,
		SellerFeeBasisPoints: entry.Metadata.SellerFeeBasisPoints,
		Attributes:           entry.Metadata.Attributes,
	}

	if err := validateRecipient(entry.Recipient); err != nil {
		return model.MintRequest{}, err
	}
	if entry.Metadata.Name == "" {
		return model.MintRequest{}, invalid("metadata.name", "must not be empty")
	}
	if len(entry.Metadata.Name) > maxNameLen {
		return model.MintRequest{}, invalid("metadata.name", "longer than %d bytes", maxNameLen)
	}
	if len(entry.Metadata.Symbol) > maxSymbolLen {
		return model.MintRequest{}, invalid("metadata.symbol", "longer than %d bytes", maxSymbolLen)
	}
	if entry.Metadata.SellerFeeBasisPoints > maxSellerFeeBps {
		return model.MintRequest{}, invalid("metadata.seller_fee_basis_points", "exceeds %d", maxSellerFeeBps)
	}

	if err := resolveLocation(entry.Content, &req); err != nil {
		return model.MintRequest{}, err
	}
	if err := resolveContentHash(entry.Content, &req); err != nil {
		return model.MintRequest{}, err
	}
	resolveContentType(entry.Content, &req)

	return req, nil
}

func validateRecipient(recipient string) error {
	if recipient == "" {
		return invalid("recipient", "must not be empty")
	}
	raw, err := base58.Decode(recipient)
	if err != nil {
		return invalid("recipient", "not base58: %v", err)
	}
	if len(raw) != 32 {
		return invalid("recipient", "decodes to %d bytes, want 32", len(raw))
	}
	return nil
}

// resolveLocation picks the content source. At most one of ipfs_cid,
// asset_url, and uri may be set; all empty is a metadata-only mint.
func resolveLocation(c model.ContentSpec, req *model.MintRequest) error {
	set := 0
	for _, s := range []string{c.IPFSCID, c.AssetURL, c.URI} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return invalid("content", "ipfs_cid, asset_url, and uri are mutually exclusive")
	}

	switch {
	case c.IPFSCID != "":
		parsed, err := cid.Decode(c.IPFSCID)
		if err != nil {
			return invalid("content.ipfs_cid", "invalid CID: %v", err)
		}
		req.LocationType = model.LocationTypeIPFS
		req.Location = parsed.String()
		req.MetadataURI = "ipfs://" + parsed.String()
	case c.AssetURL != "":
		if err := validateURL(c.AssetURL); err != nil {
			return invalid("content.asset_url", "%v", err)
		}
		req.LocationType = model.LocationTypeAsset
		req.Location = c.AssetURL
		req.MetadataURI = c.AssetURL
	case c.URI != "":
		if err := validateURL(c.URI); err != nil {
			return invalid("content.uri", "%v", err)
		}
		// A bare URI carries no provenance, so a content hash is required.
		if c.SHA2 == "" && !c.SHA2Auto {
			return invalid("content.uri", "requires sha2 or sha2_auto")
		}
		req.LocationType = model.LocationTypeURI
		req.Location = c.URI
		req.MetadataURI = c.URI
	default:
		req.LocationType = model.LocationTypeNone
	}

	if len(req.MetadataURI) > maxURILen {
		return invalid("content", "resolved URI longer than %d bytes", maxURILen)
	}
	return nil
}

func resolveContentHash(c model.ContentSpec, req *model.MintRequest) error {
	if c.SHA2 != "" && c.SHA2Auto {
		return invalid("content.sha2_auto", "conflicts with explicit sha2")
	}

	if c.SHA2 != "" {
		raw, err := hex.DecodeString(c.SHA2)
		if err != nil {
			return invalid("content.sha2", "not hex: %v", err)
		}
		if len(raw) != sha256.Size {
			return invalid("content.sha2", "decodes to %d bytes, want %d", len(raw), sha256.Size)
		}
		req.ContentHash = raw
		return nil
	}

	if c.SHA2Auto {
		if c.File == "" {
			return invalid("content.sha2_auto", "requires content.file")
		}
		data, err := os.ReadFile(c.File)
		if err != nil {
			return invalid("content.file", "unreadable: %v", err)
		}
		sum := sha256.Sum256(data)
		req.ContentHash = sum[:]
	}

	return nil
}

func resolveContentType(c model.ContentSpec, req *model.MintRequest) {
	if c.MimeType != "" {
		req.ContentType = c.MimeType
		return
	}
	if c.File != "" {
		if t := mime.TypeByExtension(filepath.Ext(c.File)); t != "" {
			req.ContentType = t
			return
		}
	}
	req.ContentType = defaultContentType
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must be absolute")
	}
	return nil
}
