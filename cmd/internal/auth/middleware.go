package auth

import (
	"errors"
	"log/slog"
	"net/http"
)

// Middleware resolves the caller's bearer token (when present) and injects
// the SessionContext into the request context. Unknown or dead credentials
// degrade to anonymous and handlers decide whether the route needs a
// session; a failing identity store is not an authentication verdict and
// answers 500 here, so clients are never told to re-login when no login
// could succeed.
func Middleware(resolver *Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tok := BearerToken(req)
			if tok == "" {
				next.ServeHTTP(w, req)
				return
			}

			sc, err := resolver.Resolve(req.Context(), tok)
			switch {
			case err == nil:
				next.ServeHTTP(w, req.WithContext(WithSession(req.Context(), sc)))
			case errors.Is(err, ErrAuthRequired):
				next.ServeHTTP(w, req)
			default:
				if log != nil {
					log.Error("auth.resolve.failed", "err", err)
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"code":"internal","message":"internal error"}}`))
			}
		})
	}
}
