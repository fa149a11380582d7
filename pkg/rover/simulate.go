package rover

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/format"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// SensorModel describes how a simulated sensor drifts: a base value, a
// 24h sine swing and gaussian noise, clamped to [Min, Max].
type SensorModel struct {
	SensorID string
	Base     float64
	Swing    float64
	Noise    float64
	Min      float64
	Max      float64
}

// DefaultSensors mirrors the rover's on-board sensor set.
var DefaultSensors = []SensorModel{
	{SensorID: "temperature", Base: 22.0, Swing: 5.0, Noise: 0.5, Min: -40, Max: 85},
	{SensorID: "humidity", Base: 45.0, Swing: 15.0, Noise: 2.0, Min: 0, Max: 100},
	{SensorID: "methane", Base: 2.0, Swing: 1.0, Noise: 0.2, Min: 0, Max: math.Inf(1)},
	{SensorID: "light", Base: 800.0, Swing: 500.0, Noise: 50.0, Min: 0, Max: math.Inf(1)},
	{SensorID: "atmosphericPressure", Base: 1013.25, Swing: 5.0, Noise: 1.0, Min: 0, Max: math.Inf(1)},
}

const dayCycle = 24 * time.Hour

// Simulator produces plausible sensor readings and diagnostic reports.
// It implements Collector.
type Simulator struct {
	sensors []SensorModel
	start   time.Time
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator over sensors; nil uses DefaultSensors.
func NewSimulator(sensors []SensorModel, seed int64) *Simulator {
	if sensors == nil {
		sensors = DefaultSensors
	}
	return &Simulator{
		sensors: sensors,
		start:   time.Now(),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulator) gauss(sigma float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.NormFloat64() * sigma
}

func (s *Simulator) phase(at time.Time) float64 {
	elapsed := at.Sub(s.start).Seconds()
	return math.Sin(2 * math.Pi * elapsed / dayCycle.Seconds())
}

// Readings returns one reading per sensor at the given instant.
func (s *Simulator) Readings(at time.Time) []reading.Reading {
	periodic := s.phase(at)
	out := make([]reading.Reading, 0, len(s.sensors))
	for _, m := range s.sensors {
		v := m.Base + m.Swing*periodic + s.gauss(m.Noise*0.1)
		v = math.Max(m.Min, math.Min(m.Max, v))
		out = append(out, reading.Reading{
			SensorID:  m.SensorID,
			Value:     format.Round(v, 2),
			Timestamp: at,
		})
	}
	return out
}

// Collect returns a synthetic diagnostic report for the current instant.
func (s *Simulator) Collect(_ context.Context) (reading.Diagnostic, error) {
	at := s.now()
	periodic := s.phase(at)

	clamp := func(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }
	return reading.Diagnostic{
		Timestamp: at,
		Values: map[string]float64{
			reading.DiagCPUUsage:       format.Round(clamp(35+20*periodic+s.gauss(5), 0, 100), 2),
			reading.DiagCPUTemperature: format.Round(clamp(52+8*periodic+s.gauss(1), 0, 110), 2),
			reading.DiagMemoryUsage:    format.Round(clamp(48+s.gauss(3), 0, 100), 2),
			reading.DiagDiskUsage:      format.Round(clamp(61+at.Sub(s.start).Hours()*0.01, 0, 100), 2),
			reading.DiagNetworkUsage:   math.Round(math.Max(0, 250_000+200_000*periodic+s.gauss(50_000))),
			reading.DiagSystemUptime:   math.Floor(at.Sub(s.start).Seconds()),
		},
	}, nil
}
