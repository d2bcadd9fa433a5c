package blink

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/evan-idocoding/rtblink/board"
	"github.com/evan-idocoding/rtblink/rt/kernel"
)

const stimulusPriority = 4

type event struct {
	at time.Duration
	do func()
}

// stimulus runs each event at its absolute time and then parks itself.
// Give it the highest priority so it acts before any task due at the same tick.
func stimulus(events []event) kernel.Func {
	return func(sys kernel.Sys) error {
		last := sys.Now()
		var prev time.Duration
		for _, ev := range events {
			if err := sys.DelayUntil(&last, ev.at-prev); err != nil {
				return err
			}
			prev = ev.at
			ev.do()
		}
		sys.Self().Suspend()
		return sys.Delay(0)
	}
}

func TestKeyboard_ControlAlternates(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	k := kernel.New(kernel.WithVirtualTime())
	b := board.New()
	red := k.MustCreate(Blinking(&Params{Output: b.LedRed, Period: 500 * time.Millisecond}), "red", kernel.MinimalStackDepth, 1)
	red.Suspend()
	k.MustCreate(Keyboard(&Params{
		Input:  b.ButtonPower,
		Period: 10 * time.Millisecond,
		Target: red,
		Logger: zap.New(core),
	}), "keyboard", kernel.MinimalStackDepth, 3)

	const clicks = 24
	var observed []kernel.State
	var events []event
	for i := 0; i < clicks; i++ {
		events = append(events, event{
			at: time.Duration(50+100*i) * time.Millisecond,
			do: func() {
				observed = append(observed, red.State())
				b.ButtonPower.Click()
			},
		})
	}
	k.MustCreate(stimulus(events), "stimulus", kernel.MinimalStackDepth, stimulusPriority)

	runFor(t, k, 2500*time.Millisecond)

	if len(observed) != clicks {
		t.Fatalf("observed %d states, want %d", len(observed), clicks)
	}
	for i, st := range observed {
		suspended := st == kernel.StateSuspended
		if wantSuspended := i%2 == 0; suspended != wantSuspended {
			t.Fatalf("before click %d: state=%v, want suspended=%v (all: %v)", i, st, wantSuspended, observed)
		}
	}
	if got := red.State(); got != kernel.StateSuspended {
		t.Fatalf("final state=%v, want suspended", got)
	}
	st := red.Status()
	if st.Resumes != clicks/2 {
		t.Fatalf("resumes=%d, want %d", st.Resumes, clicks/2)
	}
	// One extra suspend from before Start.
	if st.Suspends != clicks/2+1 {
		t.Fatalf("suspends=%d, want %d", st.Suspends, clicks/2+1)
	}
	if b.LedRed.Toggles() == 0 {
		t.Fatalf("red never ran while resumed")
	}
	if got := logs.FilterMessage("target resumed").Len(); got != clicks/2 {
		t.Fatalf("resumed log entries=%d, want %d", got, clicks/2)
	}
	if got := logs.FilterMessage("target suspended").Len(); got != clicks/2 {
		t.Fatalf("suspended log entries=%d, want %d", got, clicks/2)
	}
}

func TestKeyboard_NoEdgeNoChange(t *testing.T) {
	t.Parallel()

	for _, startSuspended := range []bool{false, true} {
		startSuspended := startSuspended
		name := "live"
		if startSuspended {
			name = "suspended"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			k := kernel.New(kernel.WithVirtualTime())
			b := board.New()
			red := k.MustCreate(Blinking(&Params{Output: b.LedRed, Period: 500 * time.Millisecond}), "red", kernel.MinimalStackDepth, 1)
			if startSuspended {
				red.Suspend()
			}
			kb := k.MustCreate(Keyboard(&Params{Input: b.ButtonPower, Period: 10 * time.Millisecond, Target: red}), "keyboard", kernel.MinimalStackDepth, 3)

			runFor(t, k, 5*time.Second)

			if polls := kb.Status().Switches; polls < 400 {
				t.Fatalf("keyboard polled %d times, want >= 400", polls)
			}
			st := red.Status()
			if st.Resumes != 0 {
				t.Fatalf("resumes=%d, want 0", st.Resumes)
			}
			if startSuspended {
				if st.State != kernel.StateSuspended || b.LedRed.Toggles() != 0 {
					t.Fatalf("state=%v toggles=%d, want suspended and 0", st.State, b.LedRed.Toggles())
				}
				return
			}
			if st.Suspends != 0 || st.State == kernel.StateSuspended {
				t.Fatalf("state=%v suspends=%d, want live and 0", st.State, st.Suspends)
			}
			if got := b.LedRed.Toggles(); got != 10 {
				t.Fatalf("red toggles=%d, want 10", got)
			}
		})
	}
}

func TestKeyboard_TogglePerEdge(t *testing.T) {
	t.Parallel()

	k := kernel.New(kernel.WithVirtualTime())
	b := board.New()
	out := &recOutput{k: k}
	btn := b.ButtonTest
	k.MustCreate(Keyboard(&Params{Output: out, Input: btn, Period: 10 * time.Millisecond}), "blue", kernel.MinimalStackDepth, 3)

	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	k.MustCreate(stimulus([]event{
		{ms(30), btn.Click},
		{ms(70), btn.Click},
		{ms(130), btn.Click},
		// Two clicks within one poll period: both are reported, one per poll.
		{ms(200), btn.Click},
		{ms(200), btn.Click},
		// Held for ten polls: reported once.
		{ms(300), btn.Press},
		{ms(400), btn.Release},
	}), "stimulus", kernel.MinimalStackDepth, stimulusPriority)

	runFor(t, k, 600*time.Millisecond)

	got := out.snapshot()
	want := []kernel.Tick{30, 70, 130, 200, 210, 300}
	if len(got) != len(want) {
		t.Fatalf("toggle ticks=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("toggle ticks=%v, want %v", got, want)
		}
	}
	if got := btn.Presses(); got != 6 {
		t.Fatalf("presses=%d, want 6", got)
	}
}

func TestKeyboard_StatePolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		policy        StatePolicy
		wantSuspends  uint64
		wantResumes   uint64
		wantSuspended bool
	}{
		// Re-reads the target on every click: suspend, resume, suspend, resume.
		{QueryPerEdge, 2, 2, false},
		// Keeps the state seen before the target ever ran: every click suspends.
		{SnapshotOnce, 1, 0, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.policy.String(), func(t *testing.T) {
			t.Parallel()

			k := kernel.New(kernel.WithVirtualTime())
			b := board.New()
			red := k.MustCreate(Blinking(&Params{Output: b.LedRed, Period: 500 * time.Millisecond}), "red", kernel.MinimalStackDepth, 1)
			k.MustCreate(Keyboard(&Params{
				Input:       b.ButtonPower,
				Period:      10 * time.Millisecond,
				Target:      red,
				StatePolicy: tc.policy,
			}), "keyboard", kernel.MinimalStackDepth, 3)
			var events []event
			for i := 0; i < 4; i++ {
				events = append(events, event{at: time.Duration(50+100*i) * time.Millisecond, do: b.ButtonPower.Click})
			}
			k.MustCreate(stimulus(events), "stimulus", kernel.MinimalStackDepth, stimulusPriority)

			runFor(t, k, time.Second)

			st := red.Status()
			if st.Suspends != tc.wantSuspends || st.Resumes != tc.wantResumes {
				t.Fatalf("suspends=%d resumes=%d, want %d/%d", st.Suspends, st.Resumes, tc.wantSuspends, tc.wantResumes)
			}
			if suspended := st.State == kernel.StateSuspended; suspended != tc.wantSuspended {
				t.Fatalf("state=%v, want suspended=%v", st.State, tc.wantSuspended)
			}
		})
	}
}
