package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/sells-group/advisor-reports/internal/model"
)

// Identity headers set by the upstream auth proxy.
const (
	headerCallerID      = "X-Caller-ID"
	headerCallerRole    = "X-Caller-Role"
	headerCallerAdvisor = "X-Caller-Advisor"
)

type callerKey struct{}

// CallerFrom returns the request's caller, if resolved.
func CallerFrom(ctx context.Context) (model.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(model.Caller)
	return c, ok
}

func callerFromHeaders(r *http.Request) (model.Caller, bool) {
	c := model.Caller{
		ID:        r.Header.Get(headerCallerID),
		Role:      model.Role(r.Header.Get(headerCallerRole)),
		AdvisorID: r.Header.Get(headerCallerAdvisor),
	}
	switch c.Role {
	case model.RoleAdmin, model.RoleManager:
	case model.RoleAdvisor:
		if c.AdvisorID == "" {
			return c, false
		}
	default:
		return c, false
	}
	return c, c.ID != ""
}

func requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := callerFromHeaders(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "caller identity required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))
	})
}

func requireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, _ := CallerFrom(r.Context())
			if !slices.Contains(roles, c.Role) {
				writeMessage(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// canRead reports whether c may see advisorID's data.
func canRead(c model.Caller, advisorID string) bool {
	return c.Role != model.RoleAdvisor || c.AdvisorID == advisorID
}
