// File path: internal/review/diff.go
package review

import (
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// addedLines walks a unified diff patch and returns the set of line numbers
// that exist as added lines in the new file. Context lines advance the
// new-file counter; removed lines do not.
func addedLines(patch string) map[int]bool {
	if strings.TrimSpace(patch) == "" {
		return nil
	}
	lines := make(map[int]bool)
	current := 0
	inHunk := false
	for _, line := range strings.Split(patch, "\n") {
		if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
			start, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			current = start - 1
			inHunk = true
			continue
		}
		if !inHunk {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// file headers, not hunk content
		case strings.HasPrefix(line, "+"):
			current++
			lines[current] = true
		case strings.HasPrefix(line, "-"):
			// removed from the old file; new-file counter unchanged
		default:
			current++
		}
	}
	return lines
}
