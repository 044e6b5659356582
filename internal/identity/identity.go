// Package identity loads the operator's minting credential and signs
// outgoing requests with it.
package identity

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blocto/solana-go-sdk/types"
)

// ErrCorruptKey marks key material that cannot produce valid signatures.
// It is fatal: no request can proceed without a working identity.
var ErrCorruptKey = errors.New("corrupt or unusable key material")

// Signer holds the operator keypair. It has no per-request state and is
// safe to share across in-flight attempts.
type Signer struct {
	account types.Account
}

// Load reads a keypair file. Two formats are accepted: the standard
// keypair JSON array of byte values, and a raw base58-encoded secret key.
func Load(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}

	account, err := parseKeypair(data)
	if err != nil {
		return nil, err
	}

	// Probe the key before any dispatch: a corrupt secret key aborts the
	// run here instead of surfacing as spurious auth failures mid-batch.
	probe := []byte("mintbatch-key-probe")
	sig := ed25519.Sign(ed25519.PrivateKey(account.PrivateKey), probe)
	if !ed25519.Verify(ed25519.PublicKey(account.PublicKey.Bytes()), probe, sig) {
		return nil, fmt.Errorf("%w: signature self-check failed", ErrCorruptKey)
	}

	return &Signer{account: account}, nil
}

func parseKeypair(data []byte) (types.Account, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return types.Account{}, fmt.Errorf("%w: empty keypair file", ErrCorruptKey)
	}

	if strings.HasPrefix(trimmed, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(trimmed), &ints); err != nil {
			return types.Account{}, fmt.Errorf("%w: parse keypair json: %v", ErrCorruptKey, err)
		}
		if len(ints) != ed25519.PrivateKeySize {
			return types.Account{}, fmt.Errorf("%w: keypair length %d, want %d", ErrCorruptKey, len(ints), ed25519.PrivateKeySize)
		}
		raw := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return types.Account{}, fmt.Errorf("%w: byte value %d out of range", ErrCorruptKey, v)
			}
			raw[i] = byte(v)
		}
		account, err := types.AccountFromBytes(raw)
		if err != nil {
			return types.Account{}, fmt.Errorf("%w: %v", ErrCorruptKey, err)
		}
		return account, nil
	}

	account, err := types.AccountFromBase58(trimmed)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: %v", ErrCorruptKey, err)
	}
	return account, nil
}

// Account exposes the keypair for transaction assembly.
func (s *Signer) Account() types.Account {
	return s.account
}

// PublicKey returns the minting-authority address in base58.
func (s *Signer) PublicKey() string {
	return s.account.PublicKey.ToBase58()
}

// Sign produces a detached signature over msg.
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(s.account.PrivateKey), msg)
}
