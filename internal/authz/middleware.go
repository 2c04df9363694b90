package authz

import (
	"log/slog"
	"net/http"

	"github.com/caretide/authz/internal/shared"
)

// Middleware wires permission checks for HTTP handlers. The admin surface
// of this service is itself authorized through the engine, against the
// "authz" grain.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current subject holds at least one of the given
// canonical permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, hasAnyPermission)
}

// RequireAll ensures the current subject holds every given canonical
// permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, hasAllPermissions)
}

func (m Middleware) require(perms []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			sub := shared.SubjectFromContext(r.Context())
			if sub == nil || sub.SubjectID == "" {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := m.Service.ResolvePermissionsForUser(r.Context(),
				UserKey(sub.SubjectID, sub.IdentityProvider), sub.Groups, "", "")
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz middleware resolve", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if check(granted, perms) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

func hasAnyPermission(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	for _, p := range required {
		if _, ok := set[p]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	for _, p := range required {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}
