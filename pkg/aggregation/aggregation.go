// Package aggregation buckets irregular sensor readings into fixed-width
// intervals of a time window and averages each bucket.
//
// Output is sparse: a bucket with no readings emits no point, because a
// zero-filled bucket cannot be told apart from a genuine zero reading.
// Every emitted point is stamped with its bucket start, not with the time
// of any contributing reading, so the x-axis spacing stays uniform.
package aggregation

import (
	"fmt"
	"sort"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/timerange"
)

// Point is one non-empty bucket.
type Point struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`

	Count int     `json:"-"`
	Min   float64 `json:"-"`
	Max   float64 `json:"-"`
}

// bucket accumulates readings for one index
type bucket struct {
	sum   float64
	count int
	min   float64
	max   float64
}

func (b *bucket) add(v float64) {
	if b.count == 0 || v < b.min {
		b.min = v
	}
	if b.count == 0 || v > b.max {
		b.max = v
	}
	b.sum += v
	b.count++
}

// BucketCount returns ceil(window / width).
func BucketCount(window timerange.TimeWindow, width time.Duration) int {
	span := window.Duration()
	if width <= 0 || span <= 0 {
		return 0
	}
	return int((span + width - 1) / width)
}

// Aggregate averages readings of sensorID (all sensors when empty) into
// buckets of width tiling window from its start.
//
// Readings outside [window.Start, window.End] are dropped. Buckets are
// half-open except the last, which also takes a reading stamped exactly
// window.End. Input order does not matter; output is ordered by index.
func Aggregate(readings []reading.Reading, sensorID string, window timerange.TimeWindow, width time.Duration) ([]Point, error) {
	if width <= 0 {
		return nil, fmt.Errorf("bucket width must be positive, got %s", width)
	}
	if window.End.Before(window.Start) {
		return nil, fmt.Errorf("window end before start")
	}

	n := BucketCount(window, width)
	if n == 0 || len(readings) == 0 {
		return []Point{}, nil
	}

	// Filter and sort a private copy; callers have passed mixed sensors
	// and unsorted rows before.
	in := make([]reading.Reading, 0, len(readings))
	for _, r := range readings {
		if sensorID != "" && r.SensorID != sensorID {
			continue
		}
		if !window.Contains(r.Timestamp) {
			continue
		}
		in = append(in, r)
	}
	sort.SliceStable(in, func(i, j int) bool {
		return in[i].Timestamp.Before(in[j].Timestamp)
	})

	buckets := make(map[int]*bucket)
	for _, r := range in {
		idx := int(r.Timestamp.Sub(window.Start) / width)
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}

		b, ok := buckets[idx]
		if !ok {
			b = &bucket{}
			buckets[idx] = b
		}
		b.add(r.Value)
	}

	indices := make([]int, 0, len(buckets))
	for idx := range buckets {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	points := make([]Point, 0, len(indices))
	for _, idx := range indices {
		b := buckets[idx]
		points = append(points, Point{
			Index:     idx,
			Timestamp: window.Start.Add(time.Duration(idx) * width),
			Value:     b.sum / float64(b.count),
			Count:     b.count,
			Min:       b.min,
			Max:       b.max,
		})
	}
	return points, nil
}

// Series resolves token at now and aggregates readings over the result.
func Series(readings []reading.Reading, sensorID, token string, now time.Time) ([]Point, timerange.Resolution, error) {
	res, err := timerange.Resolve(token, now)
	if err != nil {
		return nil, timerange.Resolution{}, err
	}
	points, err := Aggregate(readings, sensorID, res.Window, res.BucketWidth)
	if err != nil {
		return nil, res, err
	}
	return points, res, nil
}
