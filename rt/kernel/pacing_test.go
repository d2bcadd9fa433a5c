package kernel

import (
	"context"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPacing_FollowsClock(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(time.Unix(1700000000, 0))
	k := New(WithClock(fc))
	var rec recorder
	k.MustCreate(func(sys Sys) error {
		for {
			rec.add("run", sys.Now())
			if err := sys.Delay(10 * time.Millisecond); err != nil {
				return err
			}
		}
	}, "paced", MinimalStackDepth, 1)

	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer func() { _ = k.Shutdown(context.Background()) }()

	runs := func() int {
		got, _ := rec.snapshot()
		return len(got)
	}
	waitFor(t, "first run", func() bool { return runs() == 1 && fc.HasWaiters() })

	fc.Step(10 * time.Millisecond)
	waitFor(t, "second run", func() bool { return runs() == 2 })

	fc.Step(10 * time.Millisecond)
	waitFor(t, "third run", func() bool { return runs() == 3 })

	_, ticks := rec.snapshot()
	if ticks[1] != 10 || ticks[2] != 20 {
		t.Fatalf("ticks=%v, want [0 10 20]", ticks)
	}
}

func TestPacing_ExternalResumeWakesIdleKernel(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(time.Unix(1700000000, 0))
	k := New(WithClock(fc))
	var rec recorder
	sleeper := k.MustCreate(func(sys Sys) error {
		rec.add("sleeper", sys.Now())
		return idle(sys)
	}, "sleeper", MinimalStackDepth, 1)
	sleeper.Suspend()
	k.MustCreate(func(sys Sys) error {
		return sys.Delay(time.Hour)
	}, "long", MinimalStackDepth, 1)

	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start err=%v", err)
	}
	defer func() { _ = k.Shutdown(context.Background()) }()

	waitFor(t, "kernel idle", func() bool {
		st, _ := k.Snapshot().Get("long")
		return st.State == StateBlocked && fc.HasWaiters()
	})
	if got, _ := rec.snapshot(); len(got) != 0 {
		t.Fatalf("sleeper ran while suspended: %v", got)
	}

	sleeper.Resume()
	waitFor(t, "sleeper run", func() bool {
		got, _ := rec.snapshot()
		return len(got) == 1
	})
}
