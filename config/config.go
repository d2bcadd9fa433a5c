// Package config loads the rtblink configuration: kernel settings, logging, the ops
// listener and the task table.
//
// The defaults reproduce the demo board: three blinkers, a button that toggles
// the blue LED, and a button that suspends/resumes the red blinker.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/evan-idocoding/rtblink/blink"
	"github.com/evan-idocoding/rtblink/board"
	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// ErrInvalid is returned (wrapped) by Validate and Load.
var ErrInvalid = errors.New("config: invalid")

// Task kinds.
const (
	KindBlink      = "blink"       // free-running blinker
	KindBlinkUntil = "blink-until" // deadline-corrected blinker
	KindKeyboard   = "keyboard"    // button-driven control task
)

// Config is the root configuration.
type Config struct {
	Kernel KernelConfig `mapstructure:"kernel" yaml:"kernel"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Ops    OpsConfig    `mapstructure:"ops" yaml:"ops"`
	Tasks  []TaskConfig `mapstructure:"tasks" yaml:"tasks"`
}

// KernelConfig configures the scheduler.
type KernelConfig struct {
	TickRateHz    uint32 `mapstructure:"tick_rate_hz" yaml:"tick_rate_hz"`
	MaxPriorities int    `mapstructure:"max_priorities" yaml:"max_priorities"`
	// HeapWords is the total stack budget in words. 0 means unlimited.
	HeapWords int `mapstructure:"heap_words" yaml:"heap_words"`
	// Virtual runs on virtual time: no wall-clock pacing.
	Virtual bool `mapstructure:"virtual" yaml:"virtual"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs" yaml:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable" yaml:"enable"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// OpsConfig configures the operator HTTP endpoint.
type OpsConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Listen string `mapstructure:"listen" yaml:"listen"`
	// Tokens, when non-empty, are required (X-Ops-Token) on every state-changing request.
	Tokens []string `mapstructure:"tokens" yaml:"tokens,omitempty"`
	// ControlTasks limits which tasks can be suspended/resumed over HTTP. Empty allows all.
	ControlTasks []string `mapstructure:"control_tasks" yaml:"control_tasks,omitempty"`
}

// TaskConfig is one row of the task table.
type TaskConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Output and Input are board pin names.
	Output string `mapstructure:"output" yaml:"output,omitempty"`
	Input  string `mapstructure:"input" yaml:"input,omitempty"`
	// Target names the task a keyboard task suspends and resumes.
	Target   string `mapstructure:"target" yaml:"target,omitempty"`
	PeriodMS int    `mapstructure:"period_ms" yaml:"period_ms"`
	// Priority overrides the automatic assignment when set.
	Priority    *int   `mapstructure:"priority" yaml:"priority,omitempty"`
	StackDepth  int    `mapstructure:"stack_depth" yaml:"stack_depth,omitempty"`
	StatePolicy string `mapstructure:"state_policy" yaml:"state_policy,omitempty"`
}

// Period returns PeriodMS as a duration.
func (t TaskConfig) Period() time.Duration { return time.Duration(t.PeriodMS) * time.Millisecond }

// Stack returns the configured stack depth, or kernel.MinimalStackDepth when unset.
func (t TaskConfig) Stack() int {
	if t.StackDepth == 0 {
		return kernel.MinimalStackDepth
	}
	return t.StackDepth
}

// DefaultTasks returns the demo board task table.
func DefaultTasks() []TaskConfig {
	return []TaskConfig{
		{Name: "red", Kind: KindBlink, Output: board.PinLedRed, PeriodMS: 500},
		{Name: "green", Kind: KindBlink, Output: board.PinLedGreen, PeriodMS: 750},
		{Name: "yellow", Kind: KindBlinkUntil, Output: board.PinLedYellow, PeriodMS: 250},
		{Name: "blue", Kind: KindKeyboard, Output: board.PinLedBlue, Input: board.PinButtonTest, PeriodMS: 250},
		{Name: "keyboard", Kind: KindKeyboard, Input: board.PinButtonPower, Target: "red", PeriodMS: 250},
	}
}

// Default returns a Config populated with the defaults.
func Default() *Config {
	return &Config{
		Kernel: KernelConfig{
			TickRateHz:    1000,
			MaxPriorities: 5,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				Filename:   "logs/rtblink.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Ops: OpsConfig{
			Listen: "127.0.0.1:8089",
		},
		Tasks: DefaultTasks(),
	}
}

// Load reads configuration from path (if non-empty), otherwise from RTBLINK_CONFIG or
// an rtblink.yaml in the working directory, ./configs or ~/.rtblink. A missing file is
// not an error. Environment variables use the prefix RTBLINK with `.` and `-` replaced by
// `_`, e.g. RTBLINK_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RTBLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Env-only overrides need every key to be known.
	v.SetDefault("kernel.tick_rate_hz", cfg.Kernel.TickRateHz)
	v.SetDefault("kernel.max_priorities", cfg.Kernel.MaxPriorities)
	v.SetDefault("kernel.heap_words", cfg.Kernel.HeapWords)
	v.SetDefault("kernel.virtual", cfg.Kernel.Virtual)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("ops.enable", cfg.Ops.Enable)
	v.SetDefault("ops.listen", cfg.Ops.Listen)
	v.SetDefault("ops.tokens", cfg.Ops.Tokens)
	v.SetDefault("ops.control_tasks", cfg.Ops.ControlTasks)
	v.SetDefault("tasks", cfg.Tasks)

	if path == "" {
		path = os.Getenv("RTBLINK_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rtblink")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rtblink"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	// Decode into an empty Config: every key has a viper default, and decoding over the
	// populated defaults would merge a YAML task list into the default rows element-wise.
	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks the configuration and fills in empty optional fields.
//
// Pin names and control targets are resolved later, against the board and the kernel.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if c.Kernel.TickRateHz == 0 {
		return fmt.Errorf("%w: kernel.tick_rate_hz must be > 0", ErrInvalid)
	}
	if c.Kernel.MaxPriorities < 2 || c.Kernel.MaxPriorities > 256 {
		return fmt.Errorf("%w: kernel.max_priorities %d (must be in [2, 256])", ErrInvalid, c.Kernel.MaxPriorities)
	}
	if c.Kernel.HeapWords < 0 {
		return fmt.Errorf("%w: kernel.heap_words %d (must be >= 0)", ErrInvalid, c.Kernel.HeapWords)
	}
	if c.Ops.Enable && strings.TrimSpace(c.Ops.Listen) == "" {
		return fmt.Errorf("%w: ops.listen is required when ops is enabled", ErrInvalid)
	}

	if len(c.Tasks) == 0 {
		return fmt.Errorf("%w: no tasks", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Tasks))
	for i := range c.Tasks {
		t := &c.Tasks[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
		if err := c.validateTask(t); err != nil {
			return fmt.Errorf("%w: tasks[%d] %q: %v", ErrInvalid, i, t.Name, err)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: tasks[%d]: duplicate name %q", ErrInvalid, i, t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	// Keyboard tasks take the top level and every blinker period needs its own level
	// below it, with 0 left for idle.
	if n := len(autoBlinkPeriods(c.Tasks)); n > 0 && c.Kernel.MaxPriorities < n+2 {
		return fmt.Errorf("%w: kernel.max_priorities %d too small for %d distinct blink periods (need >= %d)",
			ErrInvalid, c.Kernel.MaxPriorities, n, n+2)
	}
	return nil
}

func (c *Config) validateTask(t *TaskConfig) error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if len(t.Name) > kernel.MaxNameLen {
		return fmt.Errorf("name longer than %d bytes", kernel.MaxNameLen)
	}
	if t.PeriodMS <= 0 {
		return fmt.Errorf("period_ms must be > 0, got %d", t.PeriodMS)
	}
	if t.StackDepth != 0 && t.StackDepth < kernel.MinimalStackDepth {
		return fmt.Errorf("stack_depth %d below minimum %d", t.StackDepth, kernel.MinimalStackDepth)
	}
	if t.Priority != nil && (*t.Priority < 0 || *t.Priority >= c.Kernel.MaxPriorities) {
		return fmt.Errorf("priority %d out of range [0, %d]", *t.Priority, c.Kernel.MaxPriorities-1)
	}
	switch t.Kind {
	case KindBlink, KindBlinkUntil:
		if t.Output == "" {
			return errors.New("blink tasks require an output")
		}
		if t.Input != "" || t.Target != "" {
			return errors.New("blink tasks take no input or target")
		}
	case KindKeyboard:
		if t.Input == "" {
			return errors.New("keyboard tasks require an input")
		}
		if t.Target == "" && t.Output == "" {
			return errors.New("keyboard tasks require a target or an output")
		}
		if t.Target != "" && t.Output != "" {
			return errors.New("keyboard tasks take a target or an output, not both")
		}
		if t.Target == t.Name {
			return errors.New("keyboard task cannot target itself")
		}
	default:
		return fmt.Errorf("unknown kind %q (want %s, %s or %s)", t.Kind, KindBlink, KindBlinkUntil, KindKeyboard)
	}
	if _, err := blink.ParseStatePolicy(t.StatePolicy); err != nil {
		return err
	}
	return nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
