package payroll

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Checksum hashes the canonical JSON form of the line with its own checksum
// field blanked. Two lines computed from identical inputs hash identically.
func Checksum(line *PayLine) (string, error) {
	cp := *line
	cp.Checksum = ""
	b, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the checksum and compares.
func Verify(line *PayLine) bool {
	sum, err := Checksum(line)
	return err == nil && sum == line.Checksum
}
