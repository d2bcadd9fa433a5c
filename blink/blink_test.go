package blink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/evan-idocoding/rtblink/board"
	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// recOutput records the tick of every toggle and optionally burns CPU time inside Toggle.
type recOutput struct {
	k    *kernel.Kernel
	cost func(n int) time.Duration
	sys  kernel.Sys // set by bind, only used from the owning task

	mu    sync.Mutex
	ticks []kernel.Tick
}

func (o *recOutput) Toggle() {
	o.mu.Lock()
	n := len(o.ticks)
	o.ticks = append(o.ticks, o.k.Now())
	o.mu.Unlock()
	if o.cost != nil && o.sys != nil {
		_ = o.sys.Work(o.cost(n))
	}
}

func (o *recOutput) bind(fn kernel.Func) kernel.Func {
	return func(sys kernel.Sys) error {
		o.sys = sys
		return fn(sys)
	}
}

func (o *recOutput) snapshot() []kernel.Tick {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]kernel.Tick(nil), o.ticks...)
}

func runFor(t *testing.T, k *kernel.Kernel, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := k.RunFor(ctx, d); err != nil {
		t.Fatalf("RunFor err=%v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("RunFor did not finish: %v", ctx.Err())
	}
}

func TestBlinking_IntervalIsPeriodPlusCost(t *testing.T) {
	t.Parallel()

	const period = 100 * time.Millisecond
	for _, cost := range []time.Duration{0, 7 * time.Millisecond, 33 * time.Millisecond} {
		cost := cost
		t.Run(cost.String(), func(t *testing.T) {
			t.Parallel()

			k := kernel.New(kernel.WithVirtualTime())
			out := &recOutput{k: k, cost: func(int) time.Duration { return cost }}
			k.MustCreate(out.bind(Blinking(&Params{Output: out, Period: period})), "red", kernel.MinimalStackDepth, 1)

			runFor(t, k, 2*time.Second)

			ticks := out.snapshot()
			if len(ticks) < 10 {
				t.Fatalf("toggles=%d, want >= 10", len(ticks))
			}
			want := k.Ticks(period + cost)
			for i := 1; i < len(ticks); i++ {
				got := ticks[i] - ticks[i-1]
				if got < k.Ticks(period) {
					t.Fatalf("interval %d = %d ticks, shorter than the period", i, got)
				}
				if got != want {
					t.Fatalf("interval %d = %d ticks, want %d", i, got, want)
				}
			}
		})
	}
}

func TestBlinkingUntil_AverageIsExactPeriod(t *testing.T) {
	t.Parallel()

	const (
		period = 100 * time.Millisecond
		cycles = 150
	)
	k := kernel.New(kernel.WithVirtualTime())
	out := &recOutput{
		k: k,
		// Varies between 0 and half the period.
		cost: func(n int) time.Duration { return time.Duration((n*37)%51) * time.Millisecond },
	}
	k.MustCreate(out.bind(BlinkingUntil(&Params{Output: out, Period: period})), "yellow", kernel.MinimalStackDepth, 1)

	runFor(t, k, cycles*period)

	ticks := out.snapshot()
	if len(ticks) != cycles {
		t.Fatalf("toggles=%d, want %d", len(ticks), cycles)
	}
	p := k.Ticks(period)
	for i, tick := range ticks {
		if tick != kernel.Tick(i)*p {
			t.Fatalf("toggle %d at tick %d, want %d", i, tick, kernel.Tick(i)*p)
		}
	}
	if avg := (ticks[len(ticks)-1] - ticks[0]) / kernel.Tick(len(ticks)-1); avg != p {
		t.Fatalf("average interval=%d, want %d", avg, p)
	}
}

func TestBlinkingUntil_LateCycleCatchesUp(t *testing.T) {
	t.Parallel()

	k := kernel.New(kernel.WithVirtualTime())
	out := &recOutput{k: k, cost: func(n int) time.Duration {
		if n == 0 {
			return 250 * time.Millisecond
		}
		return 0
	}}
	k.MustCreate(out.bind(BlinkingUntil(&Params{Output: out, Period: 100 * time.Millisecond})), "yellow", kernel.MinimalStackDepth, 1)

	runFor(t, k, time.Second)

	got := out.snapshot()
	want := []kernel.Tick{0, 250, 250, 300, 400, 500, 600, 700, 800, 900}
	if len(got) != len(want) {
		t.Fatalf("ticks=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ticks=%v, want %v", got, want)
		}
	}
}

func TestBlinking_TwoPeriodsOverThreeSeconds(t *testing.T) {
	t.Parallel()

	k := kernel.New(kernel.WithVirtualTime())
	b := board.New()
	k.MustCreate(Blinking(&Params{Output: b.LedRed, Period: 500 * time.Millisecond}), "red", kernel.MinimalStackDepth, 2)
	k.MustCreate(Blinking(&Params{Output: b.LedGreen, Period: 750 * time.Millisecond}), "green", kernel.MinimalStackDepth, 1)

	runFor(t, k, 3*time.Second)

	if got := b.LedRed.Toggles(); got != 6 {
		t.Fatalf("red toggles=%d, want 6", got)
	}
	if got := b.LedGreen.Toggles(); got != 4 {
		t.Fatalf("green toggles=%d, want 4", got)
	}
}

func TestConstructors_PanicOnInvalidParams(t *testing.T) {
	t.Parallel()

	b := board.New()
	k := kernel.New()
	target := k.MustCreate(func(sys kernel.Sys) error { return nil }, "t", kernel.MinimalStackDepth, 1)

	cases := []struct {
		name string
		fn   func()
	}{
		{"blinking nil params", func() { Blinking(nil) }},
		{"blinking nil output", func() { Blinking(&Params{Period: time.Second}) }},
		{"blinking zero period", func() { Blinking(&Params{Output: b.LedRed}) }},
		{"until negative period", func() { BlinkingUntil(&Params{Output: b.LedRed, Period: -time.Second}) }},
		{"until nil output", func() { BlinkingUntil(&Params{Period: time.Second}) }},
		{"keyboard nil input", func() { Keyboard(&Params{Output: b.LedBlue, Period: time.Second}) }},
		{"keyboard no action", func() { Keyboard(&Params{Input: b.ButtonTest, Period: time.Second}) }},
		{"keyboard zero period", func() { Keyboard(&Params{Input: b.ButtonTest, Target: target}) }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			tc.fn()
		})
	}
}

func TestParseStatePolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    StatePolicy
		wantErr bool
	}{
		{"", QueryPerEdge, false},
		{"query-per-edge", QueryPerEdge, false},
		{" Snapshot-Once ", SnapshotOnce, false},
		{"always", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseStatePolicy(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseStatePolicy(%q) err=%v, wantErr=%v", tc.in, err, tc.wantErr)
		}
		if err == nil && got != tc.want {
			t.Fatalf("ParseStatePolicy(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
	if got := SnapshotOnce.String(); got != "snapshot-once" {
		t.Fatalf("String=%q", got)
	}
}
