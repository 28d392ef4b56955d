package api

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"kestrel-dcr/core/rbac"
)

// Identity headers asserted by the upstream gateway. The service never
// resolves users itself.
const (
	actorHeader = "X-Actor"
	roleHeader  = "X-Actor-Role"
)

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if s.logger != nil {
					s.logger.Errorf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, string(debug.Stack()))
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if s.logger != nil {
			s.logger.Printf("REQ %s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if s.logger != nil {
			actor := "-"
			if a, ok := rbac.FromContext(r.Context()); ok {
				actor = a.Name
			}
			s.logger.Printf("RESP %s %s actor=%s status=%d dur=%s bytes=%d", r.Method, r.URL.Path, actor, rec.status, time.Since(start), rec.size)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// withActor extracts the gateway-asserted identity and effective role into
// the request context. Requests without an actor are rejected before any
// permission check runs.
func (s *Server) withActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := strings.TrimSpace(r.Header.Get(actorHeader))
		role := strings.ToLower(strings.TrimSpace(r.Header.Get(roleHeader)))
		if actor == "" {
			if s.logger != nil {
				s.logger.Printf("AUTH fail (missing actor) %s %s", r.Method, r.URL.Path)
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := rbac.WithActor(r.Context(), rbac.Actor{Name: actor, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (s *Server) requirePermission(perm string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			a, ok := rbac.FromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !s.policy.Allowed(a.Role, perm) {
				if s.logger != nil {
					s.logger.Printf("PERM fail %s %s actor=%s role=%s need=%s", r.Method, r.URL.Path, a.Name, a.Role, perm)
				}
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

// actorPerm chains actor extraction and a permission check; the Guards
// value handed to route registration.
func (s *Server) actorPerm(perm string, next http.HandlerFunc) http.HandlerFunc {
	return s.withActor(s.requirePermission(perm)(next))
}
