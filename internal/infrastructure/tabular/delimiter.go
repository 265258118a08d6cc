// Package tabular extracts well-formed rows from delimited text whose
// encoding and delimiter are unknown up front.
package tabular

import "strings"

// delimiterCandidates is the fixed universe of field delimiters, in
// tie-breaking order. Comma is also the fallback when a first line
// contains no candidate at all.
var delimiterCandidates = []rune{',', '\t', ';', '|'}

// DetectDelimiter returns the candidate with the highest occurrence count
// in the first decoded line. Delimiter usage is file-global by
// convention, so one line is enough; counting the whole file would buy
// nothing but a second pass. Nonzero ties break by candidate order.
func DetectDelimiter(firstLine string) rune {
	best := delimiterCandidates[0]
	bestCount := 0
	for _, d := range delimiterCandidates {
		if n := strings.Count(firstLine, string(d)); n > bestCount {
			best = d
			bestCount = n
		}
	}
	return best
}

// KeepRow reports whether a parsed row carries data: at least one field
// must be non-empty after trimming whitespace. Sparse rows like
// ["", "x", ""] survive; fully blank lines do not.
func KeepRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return true
		}
	}
	return false
}
