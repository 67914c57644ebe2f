package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDailyTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"08:00", "0 8 * * *"},
		{"21:30", "30 21 * * *"},
		{"00:05", "5 0 * * *"},
		{"garbage", "0 8 * * *"},
		{"", "0 8 * * *"},
		{"25:00", "0 8 * * *"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDailyTime(tt.in), "input %q", tt.in)
	}
}

func TestEverySpec(t *testing.T) {
	assert.Equal(t, "@every 5m0s", everySpec(5*time.Minute))
	assert.Equal(t, "@every 1h0m0s", everySpec(time.Hour))
}
