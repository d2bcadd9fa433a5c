package ops

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logLevelConfig struct {
	format Format
}

// LogLevelOption configures LogLevelGetHandler / LogLevelSetHandler.
type LogLevelOption func(*logLevelConfig)

// WithLogLevelDefaultFormat sets the default response format for log level handlers.
//
// This default can be overridden per request by URL query (?format=json|text).
// Default is FormatText.
func WithLogLevelDefaultFormat(f Format) LogLevelOption {
	return func(c *logLevelConfig) { c.format = f }
}

func applyLogLevelOptions(opts []LogLevelOption) logLevelConfig {
	cfg := logLevelConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.format = normalizeFormat(cfg.format)
	return cfg
}

// LogLevelGetHandler returns a handler that outputs the current level of lv.
//
// GET/HEAD only. Text output: log\tlevel\t<level>
func LogLevelGetHandler(lv zap.AtomicLevel, opts ...LogLevelOption) http.Handler {
	cfg := applyLogLevelOptions(opts)
	return only(cfg.format, http.MethodGet, http.MethodHead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := logLevelResponse{OK: true, Level: lv.Level().String()}
		reply{code: http.StatusOK, body: resp, lines: func(lw *lineWriter) {
			lw.line("log", "level", resp.Level)
		}}.write(w, r, formatFromRequest(r, cfg.format))
	}))
}

// LogLevelSetHandler returns a handler that sets the level of lv.
//
// POST only, with ?level=debug|info|warn|error (case-insensitive; "warning" and "err"
// are accepted).
func LogLevelSetHandler(lv zap.AtomicLevel, opts ...LogLevelOption) http.Handler {
	cfg := applyLogLevelOptions(opts)
	return only(cfg.format, http.MethodPost)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		level, ok := parseLevel(r.URL.Query().Get("level"))
		if !ok {
			const msg = "invalid level (want one of: debug, info, warn, error)"
			failure(http.StatusBadRequest, logLevelResponse{Error: msg}, msg).write(w, r, format)
			return
		}

		old := lv.Level()
		lv.SetLevel(level)
		resp := logLevelResponse{OK: true, Old: old.String(), Level: level.String()}
		reply{code: http.StatusOK, body: resp, lines: func(lw *lineWriter) {
			lw.line("log", "old_level", resp.Old)
			lw.line("log", "level", resp.Level)
		}}.write(w, r, format)
	}))
}

type logLevelResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Old   string `json:"old_level,omitempty"`
	Level string `json:"level,omitempty"`
}

func parseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zap.DebugLevel, true
	case "info":
		return zap.InfoLevel, true
	case "warn", "warning":
		return zap.WarnLevel, true
	case "error", "err":
		return zap.ErrorLevel, true
	default:
		return zap.InfoLevel, false
	}
}
