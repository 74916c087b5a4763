package market

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalendar(t *testing.T) *Calendar {
	t.Helper()
	c, err := NewCalendar()
	require.NoError(t, err)
	return c
}

func TestSession(t *testing.T) {
	c := newTestCalendar(t)
	ny := c.Location()

	tests := []struct {
		name string
		at   time.Time
		want SessionType
	}{
		{"saturday midday", time.Date(2024, 3, 9, 12, 0, 0, 0, ny), SessionClosed},
		{"monday early", time.Date(2024, 3, 11, 3, 59, 0, 0, ny), SessionClosed},
		{"premarket", time.Date(2024, 3, 11, 9, 29, 0, 0, ny), SessionPremarket},
		{"open bell", time.Date(2024, 3, 11, 9, 30, 0, 0, ny), SessionRegular},
		{"last minute", time.Date(2024, 3, 11, 15, 59, 0, 0, ny), SessionRegular},
		{"close bell", time.Date(2024, 3, 11, 16, 0, 0, 0, ny), SessionPostmarket},
		{"late evening", time.Date(2024, 3, 11, 20, 0, 0, 0, ny), SessionClosed},
		{"utc input", time.Date(2024, 3, 11, 14, 0, 0, 0, time.UTC), SessionRegular},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Session(tt.at))
			assert.Equal(t, tt.want == SessionRegular, c.IsOpen(tt.at))
		})
	}
}

func TestNextOpen(t *testing.T) {
	c := newTestCalendar(t)
	ny := c.Location()

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"before open", time.Date(2024, 3, 11, 8, 0, 0, 0, ny), time.Date(2024, 3, 11, 9, 30, 0, 0, ny)},
		{"after close", time.Date(2024, 3, 11, 17, 0, 0, 0, ny), time.Date(2024, 3, 12, 9, 30, 0, 0, ny)},
		{"friday evening", time.Date(2024, 3, 8, 18, 0, 0, 0, ny), time.Date(2024, 3, 11, 9, 30, 0, 0, ny)},
		{"sunday", time.Date(2024, 3, 10, 12, 0, 0, 0, ny), time.Date(2024, 3, 11, 9, 30, 0, 0, ny)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(c.NextOpen(tt.at)), "got %s", c.NextOpen(tt.at))
		})
	}

	open := time.Date(2024, 3, 11, 10, 0, 0, 0, ny)
	assert.Equal(t, time.Duration(0), c.UntilOpen(open))
	assert.Equal(t, 90*time.Minute, c.UntilOpen(time.Date(2024, 3, 11, 8, 0, 0, 0, ny)))
}
