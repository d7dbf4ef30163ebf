package server

import (
	"context"
	"net/http"
)

type ctxKey int

const (
	ctxKeyPlayer ctxKey = iota
	ctxKeyAdmin
)

func playerAuthMiddleware(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			playerID, err := playerIDFromRequest(r, tokens)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or missing session token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPlayer, playerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// optionalPlayerMiddleware attaches the player when a valid token is
// present and lets anonymous requests through.
func optionalPlayerMiddleware(tokens *TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if playerID, err := playerIDFromRequest(r, tokens); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), ctxKeyPlayer, playerID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func adminAuthMiddleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := adminFromRequest(r, store)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyAdmin, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func playerFrom(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(ctxKeyPlayer).(string)
	return id, ok && id != ""
}

func adminFrom(r *http.Request) adminSession {
	return r.Context().Value(ctxKeyAdmin).(adminSession)
}
