package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

var runIDRegex = regexp.MustCompile(`^run_[0-9]{10}_[0-9a-f]{8}$`)

// GenerateRunID returns a unique identifier for one orchestrator run,
// used in log lines and the audit trail.
func GenerateRunID() (string, error) {
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return fmt.Sprintf("run_%010d_%s", time.Now().Unix(), hex.EncodeToString(randomBytes)), nil
}

func ValidateRunID(id string) bool {
	return runIDRegex.MatchString(id)
}
