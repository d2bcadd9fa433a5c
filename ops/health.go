package ops

import (
	"net/http"
)

type healthConfig struct {
	format Format
}

// HealthOption configures HealthzHandler.
type HealthOption func(*healthConfig)

// WithHealthDefaultFormat sets the default response format for the health handler.
//
// This default can be overridden per request by URL query (?format=json|text).
// Default is FormatText.
func WithHealthDefaultFormat(f Format) HealthOption {
	return func(c *healthConfig) { c.format = f }
}

// HealthzHandler returns a liveness handler.
//
// It always responds 200 OK for GET/HEAD. It does not look at the kernel: a halted
// kernel still leaves the process alive and serving.
func HealthzHandler(opts ...HealthOption) http.Handler {
	cfg := healthConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.format = normalizeFormat(cfg.format)
	return only(cfg.format, http.MethodGet, http.MethodHead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reply{
			code:  http.StatusOK,
			body:  healthResponse{OK: true},
			lines: func(lw *lineWriter) { lw.line("ok") },
		}.write(w, r, formatFromRequest(r, cfg.format))
	}))
}

type healthResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
