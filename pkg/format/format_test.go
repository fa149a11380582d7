package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestByteRate(t *testing.T) {
	tests := []struct {
		in   float64
		want Scaled
	}{
		{0, Scaled{0, "B/s"}},
		{999, Scaled{999, "B/s"}},
		{1000, Scaled{1, "KB/s"}},
		{1500, Scaled{1.5, "KB/s"}},
		{2_500_000, Scaled{2.5, "MB/s"}},
		{3_000_000_000, Scaled{3, "GB/s"}},
		{-5, Scaled{0, "B/s"}},
	}
	for _, tt := range tests {
		got := ByteRate(tt.in)
		assert.Equal(t, tt.want.Unit, got.Unit, "input %v", tt.in)
		assert.InDelta(t, tt.want.Value, got.Value, 1e-9, "input %v", tt.in)
	}
}

func TestByteRateUnit_UsesSeriesMax(t *testing.T) {
	unit := ByteRateUnit([]float64{10, 2_000_000, 500})
	assert.Equal(t, "MB/s", unit)
	assert.InDelta(t, 0.00001, ScaleTo(10, unit), 1e-12)
	assert.Equal(t, "B/s", ByteRateUnit(nil))
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.5 MB", Bytes(1_500_000))
	assert.Equal(t, "1 GB", Bytes(1_000_000_000))
}

func TestElapsed(t *testing.T) {
	assert.Equal(t, "0d 0h 0m", Elapsed(0))
	assert.Equal(t, "0d 0h 1m", Elapsed(119))
	assert.Equal(t, "1d 1h 1m", Elapsed(86400+3600+60+59))
	assert.Equal(t, "12d 0h 0m", Elapsed(12*86400))
	assert.Equal(t, "0d 0h 0m", Elapsed(-30))
}

func TestRelative(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "0s ago"},
		{59 * time.Second, "59s ago"},
		{60 * time.Second, "1m ago"},
		{59 * time.Minute, "59m ago"},
		{time.Hour, "1h ago"},
		{23*time.Hour + 59*time.Minute, "23h ago"},
		{24 * time.Hour, "1d ago"},
		{-time.Minute, "0s ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Relative(now.Add(-tt.ago), now))
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.24, Round(1.236, 2))
	assert.Equal(t, 2.0, Round(1.5, 0))
	assert.Equal(t, -1.24, Round(-1.236, 2))
	assert.Equal(t, "21.57 °C", WithUnit(21.5678, "°C"))
	assert.Equal(t, "3", WithUnit(3, ""))
}
