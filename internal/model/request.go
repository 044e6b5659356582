package model

// Location discriminators, matching the remote ledger's metadata schema.
const (
	LocationTypeIPFS  uint8 = 1
	LocationTypeAsset uint8 = 2
	LocationTypeURI   uint8 = 3
	LocationTypeNone  uint8 = 4
)

// MintRequest is the canonical payload for one mint attempt, derived from
// a ManifestEntry plus the operator context. Constructed once per entry by
// the builder and never mutated afterward.
type MintRequest struct {
	EntryID   string
	Recipient string
	Authority string // minting-authority public key, base58

	Name                 string
	Symbol               string
	Description          string
	SellerFeeBasisPoints uint16
	Attributes           map[string]string

	LocationType uint8
	Location     string
	MetadataURI  string
	ContentHash  []byte // SHA-256 of the content, optional
	ContentType  string
}
