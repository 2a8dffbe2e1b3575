package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Success writes a green check line
func Success(w io.Writer, noColor bool, format string, args ...interface{}) {
	newColor(noColor, color.FgGreen).Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Failure writes a red error line followed by any suggestions
func Failure(w io.Writer, noColor bool, err error, suggestions ...string) {
	newColor(noColor, color.FgRed, color.Bold).Fprintf(w, "Error: %v\n", err)
	if len(suggestions) > 0 {
		newColor(noColor, color.FgYellow).Fprintf(w, "  Did you mean: %s?\n", strings.Join(suggestions, ", "))
	}
}

// Suggest returns the candidates within maxDistance edits of target, closest
// first. Matching ignores case.
func Suggest(target string, candidates []string, maxDistance int) []string {
	type scored struct {
		name string
		dist int
	}

	var matches []scored
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if d := editDistance(lower, strings.ToLower(c)); d <= maxDistance {
			matches = append(matches, scored{c, d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

// editDistance is the Levenshtein distance between a and b
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
