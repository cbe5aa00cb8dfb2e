package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth gates the admin surface behind a bearer token. The token is compared
// in constant time. An empty token opens the surface only when the debug flag
// is set; otherwise every request is rejected.
type Auth struct {
	token string
	debug bool
}

// NewAuth creates an authenticator for the given operator token.
func NewAuth(token string, debug bool) *Auth {
	return &Auth{token: token, debug: debug}
}

// Authorize reports whether the request carries a valid bearer token. The
// token is read from the Authorization header or, for WebSocket upgrades that
// cannot set headers, from the "token" query parameter.
func (a *Auth) Authorize(r *http.Request) bool {
	if a.token == "" {
		return a.debug
	}
	got := bearerToken(r)
	if got == "" {
		got = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) == 1
}

// Middleware rejects unauthenticated requests with 401 and a
// WWW-Authenticate challenge.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authorize(r) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
