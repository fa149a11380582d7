// Package format holds display helpers for chart axes, tooltips and
// diagnostics panels. All functions are pure. Negative inputs are clamped
// to zero rather than rejected.
package format

import (
	"fmt"
	"math"
	"time"
)

// Scaled is a value with the display unit it was scaled to.
type Scaled struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

func (s Scaled) String() string {
	return fmt.Sprintf("%s %s", trimFloat(Round(s.Value, 2)), s.Unit)
}

const (
	kilo = 1000
	mega = 1000 * kilo
	giga = 1000 * mega
)

func scaleDecimal(v float64, suffix string) Scaled {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	switch {
	case v >= giga:
		return Scaled{Value: v / giga, Unit: "GB" + suffix}
	case v >= mega:
		return Scaled{Value: v / mega, Unit: "MB" + suffix}
	case v >= kilo:
		return Scaled{Value: v / kilo, Unit: "KB" + suffix}
	}
	return Scaled{Value: v, Unit: "B" + suffix}
}

// ByteRate scales a bytes-per-second value to B/s, KB/s, MB/s or GB/s
// using decimal (1000) steps.
func ByteRate(bytesPerSec float64) Scaled {
	return scaleDecimal(bytesPerSec, "/s")
}

// ByteRateUnit picks one unit for a whole series from its maximum value,
// so every point on an axis shares the same unit.
func ByteRateUnit(values []float64) string {
	maxV := 0.0
	for _, v := range values {
		if v > maxV {
			maxV = v
		}
	}
	return ByteRate(maxV).Unit
}

// ScaleTo converts bytesPerSec into unit, as returned by ByteRateUnit.
func ScaleTo(bytesPerSec float64, unit string) float64 {
	switch unit {
	case "GB/s":
		return bytesPerSec / giga
	case "MB/s":
		return bytesPerSec / mega
	case "KB/s":
		return bytesPerSec / kilo
	}
	return bytesPerSec
}

// Bytes renders a byte count, e.g. "1.5 MB".
func Bytes(n int64) string {
	return scaleDecimal(float64(n), "").String()
}

// Elapsed renders seconds as "{d}d {h}h {m}m". Leftover seconds are dropped.
func Elapsed(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

// Relative renders how long before now t was, using the largest of
// s, m, h or d whose count is at least one. Future times render as "0s ago".
func Relative(t, now time.Time) string {
	diff := int64(now.Sub(t) / time.Second)
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < 60:
		return fmt.Sprintf("%ds ago", diff)
	case diff < 3600:
		return fmt.Sprintf("%dm ago", diff/60)
	case diff < 86400:
		return fmt.Sprintf("%dh ago", diff/3600)
	}
	return fmt.Sprintf("%dd ago", diff/86400)
}

// Round rounds v to places decimal places, half away from zero.
func Round(v float64, places int) float64 {
	if places < 0 {
		places = 0
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// WithUnit renders a value for an axis label, e.g. "21.5 °C".
func WithUnit(v float64, unit string) string {
	s := trimFloat(Round(v, 2))
	if unit == "" {
		return s
	}
	return s + " " + unit
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
