// Package stats keeps streaming summaries of observed values.
package stats

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// DefaultAccuracy is the relative accuracy of quantile estimates.
const DefaultAccuracy = 0.01

// Distribution maintains running statistics with quantiles estimated by
// DDSketch. It is safe for concurrent use.
type Distribution struct {
	mu sync.Mutex

	count int64
	sum   float64
	min   float64
	max   float64

	// nil if the sketch could not be created
	sketch *ddsketch.DDSketch
}

// NewDistribution creates an empty distribution. A non-positive accuracy
// selects DefaultAccuracy.
func NewDistribution(accuracy float64) *Distribution {
	if accuracy <= 0 || accuracy >= 1 {
		accuracy = DefaultAccuracy
	}

	d := &Distribution{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}

	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		d.sketch = sketch
	}

	return d
}

// Add adds a value.
func (d *Distribution) Add(value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.sum += value

	if value < d.min {
		d.min = value
	}
	if value > d.max {
		d.max = value
	}

	if d.sketch != nil {
		d.sketch.Add(value)
	}
}

// Summary is a point-in-time view of a distribution.
type Summary struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
}

// Summary returns the current statistics.
func (d *Distribution) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Summary{Count: d.count, Sum: d.sum}
	if d.count == 0 {
		return s
	}

	s.Min = d.min
	s.Max = d.max
	s.Avg = d.sum / float64(d.count)

	if d.sketch != nil && !d.sketch.IsEmpty() {
		s.P50, _ = d.sketch.GetValueAtQuantile(0.50)
		s.P90, _ = d.sketch.GetValueAtQuantile(0.90)
		s.P99, _ = d.sketch.GetValueAtQuantile(0.99)
	}
	return s
}
