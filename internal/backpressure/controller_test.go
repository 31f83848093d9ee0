package backpressure

import (
	"context"
	"testing"
	"time"

	tstest "github.com/xtxerr/tickstore/internal/testing"
)

type fixedGauge struct {
	usage float64
}

func (g *fixedGauge) UsageRatio() float64 { return g.usage }

func testConfig() Config {
	return Config{Warning: 0.50, Critical: 0.90, Hysteresis: 0.10, Interval: time.Millisecond}
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelNormal, "normal"},
		{LevelWarning, "warning"},
		{LevelCritical, "critical"},
		{Level(42), "unknown"},
	}

	for _, tt := range tests {
		if tt.level.String() != tt.expected {
			t.Errorf("level %d: expected %s, got %s", tt.level, tt.expected, tt.level.String())
		}
	}
}

func TestController_Check(t *testing.T) {
	g := &fixedGauge{}
	c := New(testConfig(), g)

	steps := []struct {
		usage float64
		want  Level
	}{
		{0.0, LevelNormal},
		{0.5, LevelWarning},
		{0.45, LevelWarning}, // within hysteresis
		{0.39, LevelNormal},
		{0.95, LevelCritical},
		{0.85, LevelCritical}, // within hysteresis
		{0.75, LevelWarning},
		{0.90, LevelCritical},
		{0.10, LevelNormal},
	}

	for i, s := range steps {
		g.usage = s.usage
		if got := c.Check(); got != s.want {
			t.Errorf("step %d usage %.2f: expected %s, got %s", i, s.usage, s.want, got)
		}
	}

	if c.CurrentLevel() != LevelNormal {
		t.Errorf("expected final level normal, got %s", c.CurrentLevel())
	}

	sum := c.Summary()
	if sum.Samples != int64(len(steps)) {
		t.Errorf("samples = %d", sum.Samples)
	}
	if sum.MaxUsage != 0.95 {
		t.Errorf("max usage = %v", sum.MaxUsage)
	}
	if sum.CriticalCount != 2 {
		t.Errorf("critical count = %d, want 2", sum.CriticalCount)
	}
}

func TestController_Callback(t *testing.T) {
	g := &fixedGauge{}
	c := New(testConfig(), g)

	var changes [][2]Level
	c.SetOnLevelChange(func(old, new Level) {
		changes = append(changes, [2]Level{old, new})
	})

	g.usage = 0.6
	c.Check()
	c.Check()
	g.usage = 0.0
	c.Check()

	if len(changes) != 2 {
		t.Fatalf("expected 2 level changes, got %v", changes)
	}
	if changes[0] != [2]Level{LevelNormal, LevelWarning} {
		t.Errorf("first change = %v", changes[0])
	}
}

func TestChannelGauge(t *testing.T) {
	ch := make(chan int, 4)
	g := NewChannelGauge(ch)

	if g.UsageRatio() != 0 {
		t.Errorf("empty channel usage = %v", g.UsageRatio())
	}
	ch <- 1
	ch <- 2
	ch <- 3
	if g.UsageRatio() != 0.75 {
		t.Errorf("usage = %v, want 0.75", g.UsageRatio())
	}

	if NewChannelGauge(make(chan int)).UsageRatio() != 0 {
		t.Error("unbuffered channel should report 0")
	}
}

func TestController_Run(t *testing.T) {
	ch := make(chan int, 2)
	ch <- 1
	ch <- 2
	c := New(testConfig(), NewChannelGauge(ch))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if err := tstest.Eventually(2*time.Second, time.Millisecond, func() bool {
		return c.CurrentLevel() == LevelCritical
	}); err != nil {
		t.Fatalf("controller never reached critical: %v", err)
	}

	cancel()
	<-done

	if c.Summary().Samples == 0 {
		t.Error("expected samples to be recorded")
	}
}
