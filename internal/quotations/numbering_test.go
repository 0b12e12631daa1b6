package quotations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	at := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "QT-202603-0001", FormatNumber(at, 1))
	assert.Equal(t, "QT-202603-0042", FormatNumber(at, 42))
	assert.Equal(t, "QT-202612-12345", FormatNumber(time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC), 12345))
}

func TestSequenceFromNumber(t *testing.T) {
	assert.Equal(t, 1, SequenceFromNumber("QT-202603-0001"))
	assert.Equal(t, 999, SequenceFromNumber("QT-202603-0999"))
	assert.Equal(t, 0, SequenceFromNumber("INV-202603-0001"))
	assert.Equal(t, 0, SequenceFromNumber("QT-202603"))
	assert.Equal(t, 0, SequenceFromNumber("QT-202603-abcd"))
	assert.Equal(t, 0, SequenceFromNumber(""))
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(time.Date(2026, time.March, 10, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), end)

	// Local times are normalised to UTC before truncation.
	loc := time.FixedZone("MYT", 8*3600)
	start, end = MonthBounds(time.Date(2026, time.April, 1, 6, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestNewAccessToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewAccessToken()
		assert.Len(t, token, 40)
		assert.False(t, seen[token], "token repeated")
		seen[token] = true
	}
}
