package chain

import "strings"

// rangeTooLargeSubstrings are the error fragments common RPC providers
// (Alchemy, Infura, QuickNode) return when a getLogs window is too wide.
var rangeTooLargeSubstrings = []string{
	"query returned more than",
	"block range is too large",
	"range too large",
	"exceeds the range",
}

// IsRangeTooLarge classifies an RPC error as a provider range cap. This is
// surfaced rather than silently retried: the operator must lower
// max_block_range, since the current window is not retried as-is.
func IsRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range rangeTooLargeSubstrings {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
