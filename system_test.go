package rtblink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/evan-idocoding/rtblink/board"
	"github.com/evan-idocoding/rtblink/config"
	"github.com/evan-idocoding/rtblink/rt/kernel"
)

func virtualConfig() *config.Config {
	cfg := config.Default()
	cfg.Kernel.Virtual = true
	return cfg
}

func httpGetBody(t *testing.T, url string) (code int, body string) {
	t.Helper()
	c := &http.Client{Timeout: 2 * time.Second}
	resp, err := c.Get(url)
	if err != nil {
		t.Fatalf("GET %q err=%v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestNewSystem_DefaultTable(t *testing.T) {
	t.Parallel()

	s, err := NewSystem(SystemSpec{Config: virtualConfig()})
	if err != nil {
		t.Fatalf("NewSystem err=%v", err)
	}
	if s.OpsServer != nil {
		t.Fatalf("ops server built while disabled")
	}

	want := []struct {
		name string
		prio kernel.Priority
	}{
		{"red", 2}, {"green", 1}, {"yellow", 3}, {"blue", 4}, {"keyboard", 4},
	}
	tasks := s.Tasks()
	if len(tasks) != len(want) {
		t.Fatalf("tasks=%d, want %d", len(tasks), len(want))
	}
	for i, w := range want {
		if tasks[i].Name != w.name || tasks[i].Priority != w.prio {
			t.Fatalf("tasks[%d]=%+v, want %s at %d", i, tasks[i], w.name, w.prio)
		}
		h, ok := s.Kernel.Lookup(w.name)
		if !ok || h.Priority() != w.prio || h.State() != kernel.StateNotStarted {
			t.Fatalf("kernel task %q missing or wrong: ok=%v", w.name, ok)
		}
	}
	if tasks[4].Target != "red" || tasks[4].StackDepth != kernel.MinimalStackDepth {
		t.Fatalf("keyboard row=%+v", tasks[4])
	}
}

func TestSystem_RunForBlinkCounts(t *testing.T) {
	t.Parallel()

	s, err := NewSystem(SystemSpec{Config: virtualConfig()})
	if err != nil {
		t.Fatalf("NewSystem err=%v", err)
	}
	if err := s.RunFor(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("RunFor err=%v", err)
	}

	for pin, want := range map[string]uint64{
		board.PinLedRed:    6,
		board.PinLedGreen:  4,
		board.PinLedYellow: 12,
		board.PinLedBlue:   0,
	} {
		out, _ := s.Board.Output(pin)
		if got := out.Toggles(); got != want {
			t.Fatalf("%s toggles=%d, want %d", pin, got, want)
		}
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait err=%v", err)
	}
	if err := s.RunFor(context.Background(), time.Second); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second RunFor err=%v, want ErrAlreadyStarted", err)
	}
}

func TestSystem_ButtonsDriveTasks(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	b := board.New()
	// Latched before start: both keyboard tasks see an edge on their first poll.
	b.ButtonPower.Click()
	b.ButtonTest.Click()

	s, err := NewSystem(SystemSpec{Config: virtualConfig(), Board: b, Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("NewSystem err=%v", err)
	}
	if err := s.RunFor(context.Background(), 3*time.Second); err != nil {
		t.Fatalf("RunFor err=%v", err)
	}

	if got := b.LedRed.Toggles(); got != 0 {
		t.Fatalf("red toggles=%d, want 0 (suspended before its first run)", got)
	}
	if got := b.LedBlue.Toggles(); got != 1 || !b.LedBlue.Level() {
		t.Fatalf("blue toggles=%d level=%v, want one toggle to on", got, b.LedBlue.Level())
	}
	if got := b.LedGreen.Toggles(); got != 4 {
		t.Fatalf("green toggles=%d, want 4", got)
	}
	st, _ := s.Kernel.Snapshot().Get("red")
	if st.State != kernel.StateSuspended || st.Suspends != 1 {
		t.Fatalf("red status=%+v", st)
	}
	if n := logs.FilterMessage("target suspended").Len(); n != 1 {
		t.Fatalf("target suspended logs=%d, want 1", n)
	}
	if n := logs.FilterMessage("system stopped").Len(); n != 1 {
		t.Fatalf("system stopped logs=%d, want 1", n)
	}
}

func TestNewSystem_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(c *config.Config)
		want   error
	}{
		{
			name: "unknown target",
			mutate: func(c *config.Config) {
				c.Tasks[4].Target = "purple"
			},
			want: ErrUnknownTarget,
		},
		{
			name: "unknown output pin",
			mutate: func(c *config.Config) {
				c.Tasks[0].Output = "led_purple"
			},
			want: ErrUnknownPin,
		},
		{
			name: "unknown input pin",
			mutate: func(c *config.Config) {
				c.Tasks[3].Input = "button_reset"
			},
			want: ErrUnknownPin,
		},
		{
			name: "heap exhausted",
			mutate: func(c *config.Config) {
				c.Kernel.HeapWords = 4 * kernel.MinimalStackDepth
			},
			want: kernel.ErrNoMemory,
		},
		{
			name: "invalid config",
			mutate: func(c *config.Config) {
				c.Tasks[1].PeriodMS = 0
			},
			want: config.ErrInvalid,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := virtualConfig()
			tc.mutate(cfg)
			if _, err := NewSystem(SystemSpec{Config: cfg}); !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestSystem_RunServesOpsUntilCancelled(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Ops.Enable = true
	cfg.Ops.Listen = "127.0.0.1:0"
	lv := zap.NewAtomicLevelAt(zap.InfoLevel)
	s, err := NewSystem(SystemSpec{
		Config:   cfg,
		LogLevel: &lv,
		Signals:  SignalSpec{Disable: true},
	})
	if err != nil {
		t.Fatalf("NewSystem err=%v", err)
	}
	if err := s.Wait(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Wait before start err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		addr = s.OpsAddr()
		time.Sleep(5 * time.Millisecond)
	}
	if addr == "" {
		t.Fatalf("ops server did not bind")
	}

	if code, body := httpGetBody(t, "http://"+addr+"/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Fatalf("healthz code=%d body=%q", code, body)
	}
	if code, body := httpGetBody(t, "http://"+addr+"/tasks"); code != http.StatusOK ||
		!strings.Contains(body, "task\tkeyboard\tpriority\t4\n") {
		t.Fatalf("tasks code=%d body=%q", code, body)
	}
	if code, body := httpGetBody(t, "http://"+addr+"/loglevel"); code != http.StatusOK || body != "log\tlevel\tinfo\n" {
		t.Fatalf("loglevel code=%d body=%q", code, body)
	}

	cancel()
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run err=%v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if err := s.HaltErr(); err != nil {
		t.Fatalf("HaltErr=%v after requested stop", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown err=%v", err)
	}
}

func TestSystem_ShutdownBeforeStart(t *testing.T) {
	t.Parallel()

	s, err := NewSystem(SystemSpec{Config: virtualConfig()})
	if err != nil {
		t.Fatalf("NewSystem err=%v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown err=%v", err)
	}
}
