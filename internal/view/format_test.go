package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimeHandlesPointers(t *testing.T) {
	ts := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "10 Mar 2026", formatTime(ts, "02 Jan 2006"))
	assert.Equal(t, "10 Mar 2026", formatTime(&ts, "02 Jan 2006"))
	assert.Equal(t, "", formatTime(nil, "02 Jan 2006"))
	assert.Equal(t, "", formatTime((*time.Time)(nil), "02 Jan 2006"))
	assert.Equal(t, "", formatTime(time.Time{}, "02 Jan 2006"))
}
