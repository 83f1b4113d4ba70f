// Package strings parses list-valued settings.
package strings

import (
	"strings"
)

// SplitList splits a comma-separated setting such as KAFKA_BROKERS. Entries
// are trimmed, blanks dropped, and repeats removed keeping first occurrence.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
