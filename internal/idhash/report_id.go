package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeReportID computes a deterministic report_id using SHA256.
// Formula: SHA256(run_id|adapter_name|block_number|sequence)
// Returns hex-encoded hash (64 characters).
func ComputeReportID(
	runID string,
	adapterName string,
	blockNumber uint64,
	sequence int,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		runID,
		adapterName,
		blockNumber,
		sequence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
