package ops

import (
	"net/http"
	"strconv"

	"github.com/evan-idocoding/rtblink/board"
)

type boardOpsConfig struct {
	format Format
}

// BoardOption configures board ops handlers.
type BoardOption func(*boardOpsConfig)

// WithBoardDefaultFormat sets the default response format for board handlers.
//
// This default can be overridden per request by URL query (?format=json|text).
// Default is FormatText.
func WithBoardDefaultFormat(f Format) BoardOption {
	return func(c *boardOpsConfig) { c.format = f }
}

func applyBoardOptions(opts []BoardOption) boardOpsConfig {
	cfg := boardOpsConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.format = normalizeFormat(cfg.format)
	return cfg
}

// LedsHandler returns a handler that outputs every output's level and toggle count.
//
// GET/HEAD only. Text output: led\t<name>\t{level,toggles}\t<value>
func LedsHandler(b *board.Board, opts ...BoardOption) http.Handler {
	if b == nil {
		panic("ops: nil board.Board")
	}
	cfg := applyBoardOptions(opts)
	return only(cfg.format, http.MethodGet, http.MethodHead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ledsResponse{OK: true}
		for _, o := range b.Outputs() {
			resp.Leds = append(resp.Leds, ledSnapshot{Name: o.Name(), On: o.Level(), Toggles: o.Toggles()})
		}
		reply{code: http.StatusOK, body: resp, lines: func(lw *lineWriter) {
			for _, l := range resp.Leds {
				level := "off"
				if l.On {
					level = "on"
				}
				lw.line("led", l.Name, "level", level)
				lw.line("led", l.Name, "toggles", strconv.FormatUint(l.Toggles, 10))
			}
		}}.write(w, r, formatFromRequest(r, cfg.format))
	}))
}

// ButtonPressHandler returns a handler that simulates one physical press and release of
// an input.
//
// POST only. The name comes from the {name} route parameter or the ?name= query.
func ButtonPressHandler(b *board.Board, opts ...BoardOption) http.Handler {
	if b == nil {
		panic("ops: nil board.Board")
	}
	cfg := applyBoardOptions(opts)
	return only(cfg.format, http.MethodPost)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		fail := func(code int, name, msg string) {
			failure(code, buttonPressResponse{Name: name, Error: msg}, msg).write(w, r, format)
		}
		name := nameFromRequest(r)
		if name == "" {
			fail(http.StatusBadRequest, "", "missing name")
			return
		}
		in, ok := b.Input(name)
		if !ok {
			fail(http.StatusNotFound, name, "input not found")
			return
		}
		in.Click()
		resp := buttonPressResponse{OK: true, Name: name, Presses: in.Presses()}
		reply{code: http.StatusOK, body: resp, lines: func(lw *lineWriter) {
			lw.line("button_press", name, "presses", strconv.FormatUint(resp.Presses, 10))
		}}.write(w, r, format)
	}))
}

type ledSnapshot struct {
	Name    string `json:"name"`
	On      bool   `json:"on"`
	Toggles uint64 `json:"toggles"`
}

type ledsResponse struct {
	OK    bool          `json:"ok"`
	Error string        `json:"error,omitempty"`
	Leds  []ledSnapshot `json:"leds,omitempty"`
}

type buttonPressResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Name    string `json:"name,omitempty"`
	Presses uint64 `json:"presses,omitempty"`
}
