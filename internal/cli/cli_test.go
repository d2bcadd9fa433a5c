package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// execute runs the CLI with args and returns stdout. Logs go to a temp file so stderr
// stays clean.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "rtblink.yaml")
	logPath := filepath.Join(t.TempDir(), "rtblink.log")
	cfg := "log:\n  level: error\n  outputs: [" + logPath + "]\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestConfigPrint(t *testing.T) {
	out, err := execute(t, "config", "print")
	if err != nil {
		t.Fatalf("config print: %v", err)
	}
	for _, want := range []string{"tick_rate_hz: 1000", "name: keyboard", "target: red", "level: error"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTasks(t *testing.T) {
	out, err := execute(t, "tasks")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("lines=%d, want header + 5:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Fatalf("header=%q", lines[0])
	}
	fields := strings.Fields(lines[5])
	// keyboard keyboard 4 250ms 128 - button_power red query-per-edge
	if len(fields) != 9 || fields[0] != "keyboard" || fields[2] != "4" || fields[7] != "red" || fields[8] != "query-per-edge" {
		t.Fatalf("keyboard row=%q", lines[5])
	}
	if fields := strings.Fields(lines[2]); fields[0] != "green" || fields[2] != "1" || fields[3] != "750ms" {
		t.Fatalf("green row=%q", lines[2])
	}
}

func TestRunFor_Virtual(t *testing.T) {
	out, err := execute(t, "run", "--virtual", "--for", "3s")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{
		"after 3s (3000 ticks):",
		"led_red    toggles=6",
		"led_green  toggles=4",
		"led_yellow toggles=12",
		"led_blue   toggles=0 off",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := execute(t, "run", "--virtual"); err == nil || !strings.Contains(err.Error(), "--for") {
		t.Fatalf("unbounded virtual run err=%v", err)
	}
	if _, err := execute(t, "--log-level", "loud", "tasks"); err == nil {
		t.Fatalf("bad log level err=nil")
	}
	if _, err := execute(t, "tasks", "extra"); err == nil {
		t.Fatalf("extra arg err=nil")
	}
}
