package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"swanid/internal/auth"
)

func (s *Server) authRequired() bool {
	return s.apiToken != "" || s.apiTokenHash != ""
}

// withAuth requires a bearer token on every route except health and metrics
// when a token or token hash is configured.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authRequired() || isOpenPath(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="swanid"`)
			s.writeErrorReq(w, r, http.StatusUnauthorized, makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, fmt.Errorf("missing bearer token")))
			return
		}
		if !s.tokenMatches(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="swanid", error="invalid_token"`)
			s.writeErrorReq(w, r, http.StatusUnauthorized, makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, fmt.Errorf("invalid bearer token")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenMatches(token string) bool {
	if s.apiToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.apiToken)) == 1 {
		return true
	}
	if s.apiTokenHash != "" && auth.VerifyToken(s.apiTokenHash, token) {
		return true
	}
	return false
}

func isOpenPath(r *http.Request) bool {
	return r.Method == http.MethodOptions || isProbePath(r.URL.Path)
}

// isProbePath reports the health and scrape endpoints.
func isProbePath(path string) bool {
	return path == "/health" || path == "/metrics"
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
