package ops

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode"
)

// Format controls the response rendering format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func normalizeFormat(f Format) Format {
	if f != FormatJSON {
		return FormatText
	}
	return f
}

// formatFromRequest honors ?format=json|text and falls back to def.
func formatFromRequest(r *http.Request, def Format) Format {
	if r == nil || r.URL == nil {
		return def
	}
	switch r.URL.Query().Get("format") {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	}
	return def
}

// reply is one handler response in both renderings. JSON encodes body; text runs lines,
// or prints err alone on failures.
type reply struct {
	code  int
	body  any
	err   string
	lines func(lw *lineWriter)
}

func failure(code int, body any, msg string) reply {
	return reply{code: code, body: body, err: msg}
}

func (rp reply) write(w http.ResponseWriter, r *http.Request, f Format) {
	var out []byte
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	if f == FormatJSON {
		h.Set("Content-Type", "application/json; charset=utf-8")
		b, err := json.Marshal(rp.body)
		if err != nil {
			rp.code, b = http.StatusInternalServerError, []byte(`{"ok":false,"error":"encode response"}`)
		}
		out = append(b, '\n')
	} else {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		var lw lineWriter
		switch {
		case rp.err != "":
			lw.line(rp.err)
		case rp.lines != nil:
			rp.lines(&lw)
		}
		out = []byte(lw.b.String())
	}
	w.WriteHeader(rp.code)
	if r.Method != http.MethodHead {
		_, _ = w.Write(out)
	}
}

// only rejects requests whose method is not listed with 405 and an Allow header.
func only(def Format, methods ...string) func(http.Handler) http.Handler {
	allow := strings.Join(methods, ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, m := range methods {
				if r.Method == m {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Allow", allow)
			failure(http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"}, "method not allowed").
				write(w, r, formatFromRequest(r, def))
		})
	}
}

// lineWriter builds greppable text output, one tab-separated record per line.
type lineWriter struct {
	b strings.Builder
}

func (lw *lineWriter) line(fields ...string) {
	for i, f := range fields {
		if i > 0 {
			lw.b.WriteByte('\t')
		}
		lw.b.WriteString(textField(f))
	}
	lw.b.WriteByte('\n')
}

// textField keeps a field on one line and free of tabs by Go-quoting it (without the
// surrounding quotes) when it holds a backslash, a quote or anything non-printable.
func textField(s string) string {
	if strings.IndexFunc(s, func(r rune) bool { return r == '\\' || r == '"' || !unicode.IsPrint(r) }) < 0 {
		return s
	}
	q := strconv.Quote(s)
	return q[1 : len(q)-1]
}
