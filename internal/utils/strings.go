package utils

import "strings"

// ParseCSV returns the trimmed, non-empty entries of a comma-separated list,
// or nil when there are none. Used for symbol-limit lists and event-type filters.
func ParseCSV(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' })

	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
