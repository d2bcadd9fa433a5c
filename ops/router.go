package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/evan-idocoding/rtblink/board"
	"github.com/evan-idocoding/rtblink/rt/kernel"
)

// RouterConfig lists what NewRouter exposes. Kernel and Board are required.
type RouterConfig struct {
	Kernel *kernel.Kernel
	Board  *board.Board

	// LogLevel enables GET/POST /loglevel when set.
	LogLevel *zap.AtomicLevel
	// Logger logs one line per request at debug level. Nil disables request logging.
	Logger *zap.Logger
	// ControlNames restricts which tasks can be suspended/resumed. Empty allows all.
	ControlNames []string
	// Tokens, when non-empty, guard every POST route with TokenGuard.
	Tokens []string
}

// NewRouter mounts the ops handlers. GET routes also answer HEAD.
//
//	GET  /healthz
//	GET  /tasks
//	POST /tasks/{name}/suspend
//	POST /tasks/{name}/resume
//	GET  /leds
//	POST /buttons/{name}/press
//	GET  /loglevel, POST /loglevel?level=...
func NewRouter(c RouterConfig) http.Handler {
	if c.Kernel == nil || c.Board == nil {
		panic("ops: NewRouter requires Kernel and Board")
	}
	var controlOpts []TaskOption
	if len(c.ControlNames) > 0 {
		controlOpts = append(controlOpts, WithTaskAllowNames(c.ControlNames...))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	if c.Logger != nil {
		r.Use(requestLogger(c.Logger))
	}

	guard := TokenGuard(c.Tokens, func(r *http.Request, reason DenyReason) {
		if c.Logger != nil {
			c.Logger.Warn("ops request denied",
				zap.String("path", r.URL.Path),
				zap.String("reason", string(reason)),
				zap.String("remote", r.RemoteAddr),
			)
		}
	})

	r.Method(http.MethodGet, "/healthz", HealthzHandler())
	r.Method(http.MethodGet, "/tasks", TasksSnapshotHandler(c.Kernel))
	r.Method(http.MethodGet, "/leds", LedsHandler(c.Board))
	if c.LogLevel != nil {
		r.Method(http.MethodGet, "/loglevel", LogLevelGetHandler(*c.LogLevel))
	}
	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Method(http.MethodPost, "/tasks/{name}/suspend", TaskSuspendHandler(c.Kernel, controlOpts...))
		r.Method(http.MethodPost, "/tasks/{name}/resume", TaskResumeHandler(c.Kernel, controlOpts...))
		r.Method(http.MethodPost, "/buttons/{name}/press", ButtonPressHandler(c.Board))
		if c.LogLevel != nil {
			r.Method(http.MethodPost, "/loglevel", LogLevelSetHandler(*c.LogLevel))
		}
	})
	return r
}

func requestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			l.Debug("ops request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
