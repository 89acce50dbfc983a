// Package idhash computes deterministic identifiers for append-only rows.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeScoreID computes a deterministic score id using SHA256.
// Formula: SHA256(score|token_address|timestamp_ns)
// Returns hex-encoded hash (64 characters).
func ComputeScoreID(tokenAddress string, ts time.Time) string {
	return hash(fmt.Sprintf("score|%s|%d", tokenAddress, ts.UnixNano()))
}

// ComputeAlertID computes a deterministic alert id.
// Formula: SHA256(alert|token_address|alert_type|timestamp_ns)
func ComputeAlertID(tokenAddress, alertType string, ts time.Time) string {
	return hash(fmt.Sprintf("alert|%s|%s|%d", tokenAddress, alertType, ts.UnixNano()))
}

func hash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
