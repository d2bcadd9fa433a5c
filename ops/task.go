package ops

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evan-idocoding/rtblink/rt/kernel"
)

type taskOpsConfig struct {
	format Format

	guards []func(name string) bool
	guard  func(name string) bool
}

// TaskOption configures task ops handlers.
type TaskOption func(*taskOpsConfig)

// WithTaskDefaultFormat sets the default response format for task handlers.
//
// This default can be overridden per request by URL query (?format=json|text).
// Default is FormatText.
func WithTaskDefaultFormat(f Format) TaskOption {
	return func(c *taskOpsConfig) { c.format = f }
}

// WithTaskNameGuard appends a name guard.
//
// All guards are combined with AND. Guards apply to both read and write handlers.
func WithTaskNameGuard(fn func(name string) bool) TaskOption {
	return func(c *taskOpsConfig) {
		if fn != nil {
			c.guards = append(c.guards, fn)
		}
	}
}

// WithTaskAllowNames restricts task names to the provided set.
//
// If no non-empty name is provided, this option denies all names.
func WithTaskAllowNames(names ...string) TaskOption {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return WithTaskNameGuard(func(name string) bool {
		_, ok := set[name]
		return ok
	})
}

func applyTaskOptions(opts []TaskOption) taskOpsConfig {
	cfg := taskOpsConfig{format: FormatText}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.format = normalizeFormat(cfg.format)
	if len(cfg.guards) > 0 {
		guards := cfg.guards
		cfg.guard = func(name string) bool {
			for _, g := range guards {
				if !g(name) {
					return false
				}
			}
			return true
		}
	}
	return cfg
}

// TasksSnapshotHandler returns a handler that outputs a kernel snapshot.
//
// GET/HEAD only. Text output:
//
//	kernel\tnow\ttick\t<tick>
//	task\t<name>\t<field>\t<value>
func TasksSnapshotHandler(k *kernel.Kernel, opts ...TaskOption) http.Handler {
	if k == nil {
		panic("ops: nil kernel.Kernel")
	}
	cfg := applyTaskOptions(opts)
	return only(cfg.format, http.MethodGet, http.MethodHead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := toTasksSnapshotResponse(k.Snapshot(), cfg.guard)
		reply{code: http.StatusOK, body: resp, lines: func(lw *lineWriter) {
			renderTasksSnapshotText(lw, resp)
		}}.write(w, r, formatFromRequest(r, cfg.format))
	}))
}

// TaskSuspendHandler returns a handler that suspends a task by name.
//
// POST only. The name comes from the {name} route parameter or the ?name= query.
// Suspending a suspended task is a no-op and still succeeds.
func TaskSuspendHandler(k *kernel.Kernel, opts ...TaskOption) http.Handler {
	return taskControlHandler(k, "task_suspend", kernel.Handle.Suspend, opts)
}

// TaskResumeHandler returns a handler that resumes a task by name.
//
// POST only. Resuming a task that is not suspended is a no-op and still succeeds.
func TaskResumeHandler(k *kernel.Kernel, opts ...TaskOption) http.Handler {
	return taskControlHandler(k, "task_resume", kernel.Handle.Resume, opts)
}

func taskControlHandler(k *kernel.Kernel, kind string, action func(kernel.Handle), opts []TaskOption) http.Handler {
	if k == nil {
		panic("ops: nil kernel.Kernel")
	}
	cfg := applyTaskOptions(opts)
	return only(cfg.format, http.MethodPost)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		format := formatFromRequest(r, cfg.format)
		fail := func(code int, name, msg string) {
			failure(code, taskControlResponse{Name: name, Error: msg}, msg).write(w, r, format)
		}
		name := nameFromRequest(r)
		if name == "" {
			fail(http.StatusBadRequest, "", "missing name")
			return
		}
		if cfg.guard != nil && !cfg.guard(name) {
			fail(http.StatusForbidden, name, "name not allowed")
			return
		}
		h, ok := k.Lookup(name)
		if !ok {
			fail(http.StatusNotFound, name, "task not found")
			return
		}
		if h.State() == kernel.StateDeleted {
			fail(http.StatusConflict, name, "task deleted")
			return
		}

		action(h)
		st := h.State()
		resp := taskControlResponse{OK: true, Name: name, State: st.String()}
		reply{code: http.StatusOK, body: resp, lines: func(lw *lineWriter) {
			lw.line(kind, name, "state", resp.State)
		}}.write(w, r, format)
	}))
}

// nameFromRequest reads the {name} route parameter, falling back to ?name=.
func nameFromRequest(r *http.Request) string {
	if name := chi.URLParam(r, "name"); name != "" {
		return strings.TrimSpace(name)
	}
	if r.URL == nil {
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("name"))
}

type taskStatusSnapshot struct {
	Name       string `json:"name"`
	Priority   int    `json:"priority"`
	State      string `json:"state"`
	StackDepth int    `json:"stack_depth"`
	Switches   uint64 `json:"switches"`
	Suspends   uint64 `json:"suspends"`
	Resumes    uint64 `json:"resumes"`
	LastRun    uint64 `json:"last_run_tick"`
	WakeAt     uint64 `json:"wake_at_tick,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

type tasksSnapshotResponse struct {
	OK    bool                 `json:"ok"`
	Error string               `json:"error,omitempty"`
	Now   uint64               `json:"now_tick"`
	Tasks []taskStatusSnapshot `json:"tasks,omitempty"`
}

func toTasksSnapshotResponse(s kernel.Snapshot, guard func(name string) bool) tasksSnapshotResponse {
	out := tasksSnapshotResponse{OK: true, Now: uint64(s.Now)}
	for _, st := range s.Tasks {
		if st.Name == "" || (guard != nil && !guard(st.Name)) {
			continue
		}
		out.Tasks = append(out.Tasks, taskStatusSnapshot{
			Name:       st.Name,
			Priority:   int(st.Priority),
			State:      st.State.String(),
			StackDepth: st.StackDepth,
			Switches:   st.Switches,
			Suspends:   st.Suspends,
			Resumes:    st.Resumes,
			LastRun:    uint64(st.LastRun),
			WakeAt:     uint64(st.WakeAt),
			LastError:  st.LastError,
		})
	}
	return out
}

func renderTasksSnapshotText(lw *lineWriter, resp tasksSnapshotResponse) {
	lw.line("kernel", "now", "tick", strconv.FormatUint(resp.Now, 10))
	for _, st := range resp.Tasks {
		n := st.Name
		lw.line("task", n, "state", st.State)
		lw.line("task", n, "priority", strconv.Itoa(st.Priority))
		lw.line("task", n, "stack_depth", strconv.Itoa(st.StackDepth))
		lw.line("task", n, "switches", strconv.FormatUint(st.Switches, 10))
		lw.line("task", n, "suspends", strconv.FormatUint(st.Suspends, 10))
		lw.line("task", n, "resumes", strconv.FormatUint(st.Resumes, 10))
		lw.line("task", n, "last_run_tick", strconv.FormatUint(st.LastRun, 10))
		if st.WakeAt != 0 {
			lw.line("task", n, "wake_at_tick", strconv.FormatUint(st.WakeAt, 10))
		}
		if st.LastError != "" {
			lw.line("task", n, "last_error", st.LastError)
		}
	}
}

type taskControlResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Name  string `json:"name,omitempty"`
	State string `json:"state,omitempty"`
}
