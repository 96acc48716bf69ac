package supervisor

import (
	"regexp"
	"strconv"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// maxLineBytes caps a single output line. Scanner lines beyond this are
// split, never buffered unboundedly.
const maxLineBytes = 256 * 1024

// percentPattern matches a completion figure like "42%" or "42.7 %".
var percentPattern = regexp.MustCompile(`(\d{1,3})(?:\.\d+)?\s*%`)

// ParsePercent extracts a completion percentage from a raw output line. It
// returns scantypes.PercentNone when the line carries no figure in [0,100].
// The last match wins, since tools that redraw progress append the current
// figure at the end of the line.
func ParsePercent(line string) int {
	matches := percentPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return scantypes.PercentNone
	}
	raw := matches[len(matches)-1][1]
	v, err := strconv.Atoi(raw)
	if err != nil || v > 100 {
		return scantypes.PercentNone
	}
	return v
}
