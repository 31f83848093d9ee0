// Package backpressure watches how full the producer-to-writer queue is.
//
// Producers already block on a full channel; the controller only observes
// the fill ratio, reports level changes with hysteresis and keeps a summary
// for the run report.
package backpressure

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/tickstore/internal/logging"
)

// Level represents the current backpressure level.
type Level int

const (
	// LevelNormal - the writer keeps up with the producers.
	LevelNormal Level = iota

	// LevelWarning - the queue is filling up.
	LevelWarning

	// LevelCritical - the queue is nearly full and producers are blocking.
	LevelCritical
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Gauge reports a usage ratio between 0 and 1.
type Gauge interface {
	UsageRatio() float64
}

// ChannelGauge measures a buffered channel.
type ChannelGauge[T any] struct {
	ch chan T
}

// NewChannelGauge returns a gauge over ch.
func NewChannelGauge[T any](ch chan T) ChannelGauge[T] {
	return ChannelGauge[T]{ch: ch}
}

// UsageRatio returns len/cap, or 0 for an unbuffered channel.
func (g ChannelGauge[T]) UsageRatio() float64 {
	if cap(g.ch) == 0 {
		return 0
	}
	return float64(len(g.ch)) / float64(cap(g.ch))
}

// Config holds the thresholds.
type Config struct {
	// Warning threshold (0.0-1.0).
	Warning float64

	// Critical threshold (0.0-1.0).
	Critical float64

	// Hysteresis to prevent flapping (0.0-1.0).
	Hysteresis float64

	// Interval is the sampling period used by Run.
	Interval time.Duration
}

// Controller tracks the backpressure level of one gauge.
type Controller struct {
	mu sync.Mutex

	config Config
	gauge  Gauge

	level     atomic.Int32
	lastLevel Level

	stats Stats

	onLevelChange func(old, new Level)
}

// Stats holds backpressure statistics.
type Stats struct {
	Samples       int64
	LevelChanges  int64
	WarningCount  int64
	CriticalCount int64
	MaxUsage      float64
	sumUsage      float64
}

// New creates a controller over gauge.
func New(cfg Config, gauge Gauge) *Controller {
	return &Controller{
		config: cfg,
		gauge:  gauge,
	}
}

// SetOnLevelChange sets the callback for level changes.
func (c *Controller) SetOnLevelChange(fn func(old, new Level)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLevelChange = fn
}

// Check samples the gauge once and updates the level.
func (c *Controller) Check() Level {
	usage := c.gauge.UsageRatio()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Samples++
	c.stats.sumUsage += usage
	if usage > c.stats.MaxUsage {
		c.stats.MaxUsage = usage
	}

	newLevel := c.determineLevel(usage)
	if newLevel != c.lastLevel {
		c.setLevel(newLevel)
	}
	return newLevel
}

// determineLevel determines the backpressure level based on usage.
func (c *Controller) determineLevel(usage float64) Level {
	cfg := c.config

	// Going up (increasing pressure)
	if usage >= cfg.Critical {
		return LevelCritical
	}
	if usage >= cfg.Warning && c.lastLevel < LevelWarning {
		return LevelWarning
	}

	// Going down (decreasing pressure) - apply hysteresis
	switch c.lastLevel {
	case LevelCritical:
		if usage < cfg.Critical-cfg.Hysteresis {
			if usage < cfg.Warning-cfg.Hysteresis {
				return LevelNormal
			}
			return LevelWarning
		}
		return LevelCritical
	case LevelWarning:
		if usage < cfg.Warning-cfg.Hysteresis {
			return LevelNormal
		}
		return LevelWarning
	default:
		return LevelNormal
	}
}

// setLevel updates the current level and fires callback.
func (c *Controller) setLevel(newLevel Level) {
	oldLevel := c.lastLevel
	c.lastLevel = newLevel
	c.level.Store(int32(newLevel))
	c.stats.LevelChanges++

	switch newLevel {
	case LevelWarning:
		c.stats.WarningCount++
	case LevelCritical:
		c.stats.CriticalCount++
	}

	if c.onLevelChange != nil {
		c.onLevelChange(oldLevel, newLevel)
	}
}

// CurrentLevel returns the current backpressure level.
func (c *Controller) CurrentLevel() Level {
	return Level(c.level.Load())
}

// Run samples the gauge every interval until ctx is done, logging level
// changes.
func (c *Controller) Run(ctx context.Context) {
	interval := c.config.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	log := logging.Component("backpressure")
	c.SetOnLevelChange(func(old, new Level) {
		if new > old {
			log.Warn("queue filling up", "from", old, "to", new, "usage", c.gauge.UsageRatio())
		} else {
			log.Info("queue draining", "from", old, "to", new, "usage", c.gauge.UsageRatio())
		}
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check()
		}
	}
}

// Summary is the report view of the statistics.
type Summary struct {
	FinalLevel    Level   `json:"final_level"`
	Samples       int64   `json:"samples"`
	LevelChanges  int64   `json:"level_changes"`
	WarningCount  int64   `json:"warning_count"`
	CriticalCount int64   `json:"critical_count"`
	MaxUsage      float64 `json:"max_usage"`
	MeanUsage     float64 `json:"mean_usage"`
}

// Summary returns current statistics.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		FinalLevel:    c.CurrentLevel(),
		Samples:       c.stats.Samples,
		LevelChanges:  c.stats.LevelChanges,
		WarningCount:  c.stats.WarningCount,
		CriticalCount: c.stats.CriticalCount,
		MaxUsage:      c.stats.MaxUsage,
	}
	if c.stats.Samples > 0 {
		s.MeanUsage = c.stats.sumUsage / float64(c.stats.Samples)
	}
	return s
}
