package quotations

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const numberPrefix = "QT"

// FormatNumber renders a quotation number as QT-YYYYMM-NNNN for the given
// creation time and sequence.
func FormatNumber(at time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", numberPrefix, at.Format("200601"), seq)
}

// SequenceFromNumber extracts the per-month sequence from a quotation
// number. It returns 0 for numbers that do not match the expected shape.
func SequenceFromNumber(number string) int {
	parts := strings.SplitN(number, "-", 3)
	if len(parts) != 3 || parts[0] != numberPrefix {
		return 0
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}

// MonthBounds returns the half-open UTC interval covering at's calendar
// month, used to scope the sequence scan to quotations created that month.
func MonthBounds(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
