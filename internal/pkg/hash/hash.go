// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// ScoreKey generates a deterministic cache key for a metric score.
// Fields are NUL-separated so distinct inputs never collide.
func ScoreKey(metric, hypothesis, reference, source string) string {
	data := strings.Join([]string{metric, hypothesis, reference, source}, "\x00")
	return SHA256String(data)
}

// JobID generates a deterministic job ID from a request payload and
// submission timestamp.
func JobID(payload []byte, submittedAt string) string {
	data := append([]byte(submittedAt+":"), payload...)
	return SHA256Short(data, 16)
}
