// Package idhash derives deterministic identifiers for persisted runs.
package idhash

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(region|ref_ms|cur_ms|alpha|method|candidate_a|candidate_b)
// Returns the base58-encoded hash (43 or 44 characters).
func ComputeRunID(
	region string,
	refCollectedAt time.Time,
	curCollectedAt time.Time,
	alpha float64,
	method string,
	candidateA string,
	candidateB string,
) string {
	data := fmt.Sprintf("%s|%d|%d|%s|%s|%s|%s",
		region,
		refCollectedAt.UTC().UnixMilli(),
		curCollectedAt.UTC().UnixMilli(),
		strconv.FormatFloat(alpha, 'g', -1, 64),
		method,
		candidateA,
		candidateB,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}

// ValidRunID reports whether id decodes to a 32-byte digest.
func ValidRunID(id string) bool {
	raw, err := base58.Decode(id)
	return err == nil && len(raw) == sha256.Size
}
