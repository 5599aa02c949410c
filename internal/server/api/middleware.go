package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/server/auth"
)

type ctxKey string

const (
	accountIDKey ctxKey = "accountID"
	identityKey  ctxKey = "identity"
)

func (s *Server) withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// withSession verifies an optional bearer token. No header means an
// anonymous caller; a bad token is rejected outright.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || strings.HasPrefix(r.URL.Path, "/internal/") {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
			return
		}
		accountID, err := auth.AccountIDFromToken(strings.TrimSpace(token), s.jwtSecret)
		if err != nil {
			status, code := statusFor(err)
			writeError(w, status, code, "invalid session")
			return
		}

		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withIdentity binds an identity store over the request's cookie or
// header. Handlers decide whether to mint an identity or only peek.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := identity.NewStore(newRequestMedium(w, r), fingerprintFromRequest(r), s.logger)
		ctx := context.WithValue(r.Context(), identityKey, store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withProxyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(common.ProxyTokenHeaderName)
		if s.proxyToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.proxyToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid proxy token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accountIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(accountIDKey).(string)
	return v
}

func identityStoreFrom(ctx context.Context) *identity.Store {
	v, _ := ctx.Value(identityKey).(*identity.Store)
	return v
}
