package ops

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenHeader carries the ops token on state-changing requests.
const TokenHeader = "X-Ops-Token"

// DenyReason describes why TokenGuard rejected a request.
type DenyReason string

const (
	DenyReasonTokenMissing    DenyReason = "token-missing"
	DenyReasonTokenAmbiguous  DenyReason = "token-ambiguous"
	DenyReasonTokenEmpty      DenyReason = "token-empty"
	DenyReasonTokenNotAllowed DenyReason = "token-not-allowed"
)

// TokenGuard returns a middleware that requires one TokenHeader value matching one of
// tokens. Blank tokens are ignored; with no usable token the middleware is a no-op.
//
// onDeny, if non-nil, is called for every rejected request. It must not block.
func TokenGuard(tokens []string, onDeny func(r *http.Request, reason DenyReason)) func(http.Handler) http.Handler {
	var set []string
	for _, raw := range tokens {
		if t := strings.TrimSpace(raw); t != "" {
			set = append(set, t)
		}
	}
	return func(next http.Handler) http.Handler {
		if len(set) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason, ok := tokenOK(r, set); !ok {
				if onDeny != nil {
					onDeny(r, reason)
				}
				failure(http.StatusUnauthorized, errorResponse{Error: "unauthorized"}, "unauthorized").
					write(w, r, formatFromRequest(r, FormatText))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func tokenOK(r *http.Request, set []string) (DenyReason, bool) {
	vs := r.Header.Values(TokenHeader)
	switch {
	case len(vs) == 0:
		return DenyReasonTokenMissing, false
	case len(vs) > 1:
		return DenyReasonTokenAmbiguous, false
	}
	token := strings.TrimSpace(vs[0])
	if token == "" {
		return DenyReasonTokenEmpty, false
	}
	// Constant-time scan: no early return on match.
	var ok bool
	for _, t := range set {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			ok = true
		}
	}
	if !ok {
		return DenyReasonTokenNotAllowed, false
	}
	return "", true
}
