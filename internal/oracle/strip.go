package oracle

import "strings"

// StripFences removes a surrounding markdown code fence from an oracle
// response, returning the raw source. Oracles are told not to use fences
// and wrap the code anyway often enough that this is load-bearing.
func StripFences(code string) string {
	lines := strings.Split(strings.TrimSpace(code), "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(lines[len(lines)-1], "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
