package memo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Control numbers look like "FMG 26-014": "{prefix} {YY}-{seq}", with the
// sequence zero-padded to 3 digits but free to grow beyond them. Sequences
// restart each two-digit year, per prefix.

// ControlYear returns the two-digit year component for t.
func ControlYear(t time.Time) string {
	return t.Format("06")
}

// FormatControlNo renders a control number from its parts.
func FormatControlNo(prefix, yy string, seq int) string {
	return fmt.Sprintf("%s %s-%03d", prefix, yy, seq)
}

// ControlPattern is the SQL LIKE pattern matching all control numbers for
// a prefix and year.
func ControlPattern(prefix, yy string) string {
	return prefix + " " + yy + "-%"
}

// ParseControlSeq extracts the sequence number from a control number: the
// digits after the final "-". Unparsable values report ok=false and are
// ignored when scanning for the next sequence.
func ParseControlSeq(controlNo string) (seq int, ok bool) {
	idx := strings.LastIndex(controlNo, "-")
	if idx < 0 {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimSpace(controlNo[idx+1:]))
	if err != nil {
		return 0, false
	}
	return seq, true
}

// NextControlSeq returns 1 + the highest sequence found among existing
// control numbers.
func NextControlSeq(existing []string) int {
	var last int
	for _, cn := range existing {
		if seq, ok := ParseControlSeq(cn); ok && seq > last {
			last = seq
		}
	}
	return last + 1
}
