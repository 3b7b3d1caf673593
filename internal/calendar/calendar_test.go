package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIsOpen(t *testing.T) {
	s, err := NewSession("America/New_York", "09:30", "16:00")
	require.NoError(t, err)
	ny := s.Location()

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 13, 9, 29, 0, 0, ny), false},
		{"at open", time.Date(2024, 3, 13, 9, 30, 0, 0, ny), true},
		{"midday", time.Date(2024, 3, 13, 12, 0, 0, 0, ny), true},
		{"at close", time.Date(2024, 3, 13, 16, 0, 0, 0, ny), true},
		{"after close", time.Date(2024, 3, 13, 16, 1, 0, 0, ny), false},
		{"saturday", time.Date(2024, 3, 16, 12, 0, 0, 0, ny), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.IsOpen(tc.at))
		})
	}
}

func TestSessionNextOpenClose(t *testing.T) {
	s := USEquities()
	ny := s.Location()

	// Friday afternoon while open: next open is Monday, close is today.
	open, close := s.NextOpenClose(time.Date(2024, 3, 15, 11, 0, 0, 0, ny))
	assert.Equal(t, time.Date(2024, 3, 18, 9, 30, 0, 0, ny), open)
	assert.Equal(t, time.Date(2024, 3, 15, 16, 0, 0, 0, ny), close)

	// Saturday: both point at Monday.
	open, close = s.NextOpenClose(time.Date(2024, 3, 16, 10, 0, 0, 0, ny))
	assert.Equal(t, time.Date(2024, 3, 18, 9, 30, 0, 0, ny), open)
	assert.Equal(t, time.Date(2024, 3, 18, 16, 0, 0, 0, ny), close)
}

func TestNewSessionRejectsInvertedHours(t *testing.T) {
	_, err := NewSession("UTC", "16:00", "09:30")
	require.Error(t, err)
}

func TestForexWeek(t *testing.T) {
	var f Forex
	assert.False(t, f.IsOpen(time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)), "saturday")
	assert.False(t, f.IsOpen(time.Date(2024, 3, 17, 21, 59, 0, 0, time.UTC)), "sunday before open")
	assert.True(t, f.IsOpen(time.Date(2024, 3, 17, 22, 0, 0, 0, time.UTC)), "sunday open")
	assert.True(t, f.IsOpen(time.Date(2024, 3, 13, 3, 0, 0, 0, time.UTC)), "wednesday night")
	assert.False(t, f.IsOpen(time.Date(2024, 3, 15, 22, 0, 0, 0, time.UTC)), "friday close")

	open, close := f.NextOpenClose(time.Date(2024, 3, 13, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 17, 22, 0, 0, 0, time.UTC), open)
	assert.Equal(t, time.Date(2024, 3, 15, 22, 0, 0, 0, time.UTC), close)

	open, close = f.NextOpenClose(time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 17, 22, 0, 0, 0, time.UTC), open)
	assert.Equal(t, time.Date(2024, 3, 22, 22, 0, 0, 0, time.UTC), close)
}
