package util

import "fmt"

// DefaultLogMaxLen is the default maximum length for truncated log output (1KB)
// Full request/response content is kept by the monitor's audit capture.
const DefaultLogMaxLen = 1024

// TruncateLog truncates long strings for verbose logging.
// This keeps operational log growth bounded while the request log retains
// the full payloads.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is a convenience wrapper for TruncateLog that accepts []byte
// and uses DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}
