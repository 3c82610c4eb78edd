// Package auth implements the authorization gate in front of the WOPI
// engine and the OIDC login flow that mints local access tokens.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/waffleoffice/wopihost/internal/token"
)

type ctxKey struct{}

// Session is what the gate attaches to the request context: the verified
// identity plus the raw bearer token, which the engine needs when minting
// follow-up URLs for the client.
type Session struct {
	Identity *token.Identity
	Token    string
}

// FromContext returns the session attached by the gate, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// Gate resolves bearer tokens to authenticated sessions before any engine
// operation runs.
type Gate struct {
	verifier token.Verifier
	log      *zap.Logger
}

// NewGate creates a Gate over the given verifier (normally a token.Chain).
func NewGate(verifier token.Verifier, log *zap.Logger) *Gate {
	return &Gate{verifier: verifier, log: log}
}

// RequireToken rejects requests without a valid bearer token with a JSON 401.
// The token is taken from the access_token query parameter or the
// Authorization header.
func (g *Gate) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Missing access token")
			return
		}
		id, err := g.verifier.Verify(raw)
		if err != nil {
			g.log.Warn("access token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Invalid or expired access token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, &Session{Identity: id, Token: raw})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireLogin protects browser pages: an invalid or missing session cookie
// redirects to the login flow instead of returning machine-readable 401s.
func (g *Gate) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || c.Value == "" {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		id, err := g.verifier.Verify(c.Value)
		if err != nil {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, &Session{Identity: id, Token: c.Value})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the access_token query parameter or
// an Authorization: Bearer header, in that order.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
