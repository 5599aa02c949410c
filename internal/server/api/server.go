// Package api exposes letters, identities and the sign-in merge as JSON
// over HTTP, plus the internal proxy endpoints peer servers use as their
// second storage tier.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/auth"
	"github.com/dmitrijs2005/songletters/internal/server/services"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
	"github.com/dmitrijs2005/songletters/internal/server/visibility"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

const shutdownTimeout = 5 * time.Second

type Deps struct {
	Letters *services.LetterService
	Gateway *visibility.Gateway
	Bridge  *auth.Bridge
	// Primary backs the proxy endpoints. Nil answers them with 503.
	Primary    storage.RemoteTier
	ProxyToken string
	SecretKey  string
}

type Server struct {
	address    string
	letters    *services.LetterService
	gateway    *visibility.Gateway
	bridge     *auth.Bridge
	primary    storage.RemoteTier
	proxyToken string
	jwtSecret  []byte
	logger     logging.Logger
}

func NewServer(address string, d Deps, l logging.Logger) *Server {
	return &Server{
		address:    address,
		letters:    d.Letters,
		gateway:    d.Gateway,
		bridge:     d.Bridge,
		primary:    d.Primary,
		proxyToken: d.ProxyToken,
		jwtSecret:  []byte(d.SecretKey),
		logger:     l.With("module", "http_server"),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /letters", s.withIdentity(http.HandlerFunc(s.handleCreateLetter)))
	mux.Handle("GET /letters/mine", s.withIdentity(http.HandlerFunc(s.handleMine)))
	mux.HandleFunc("GET /letters/{linkId}", s.handleGetLetter)
	mux.HandleFunc("GET /explore", s.handleExplore)
	mux.Handle("POST /auth/merge", s.withIdentity(http.HandlerFunc(s.handleMerge)))
	mux.Handle("GET /identity", s.withIdentity(http.HandlerFunc(s.handleGetIdentity)))
	mux.Handle("DELETE /identity", s.withIdentity(http.HandlerFunc(s.handleResetIdentity)))

	mux.Handle("GET /internal/proxy/letters/{linkId}", s.withProxyToken(http.HandlerFunc(s.handleProxyGet)))
	mux.Handle("PUT /internal/proxy/letters/{linkId}", s.withProxyToken(http.HandlerFunc(s.handleProxyPut)))
	mux.Handle("POST /internal/proxy/letters/{linkId}/views", s.withProxyToken(http.HandlerFunc(s.handleProxyViews)))
	mux.Handle("POST /internal/proxy/query", s.withProxyToken(http.HandlerFunc(s.handleProxyQuery)))
	mux.Handle("POST /internal/proxy/reparent", s.withProxyToken(http.HandlerFunc(s.handleProxyReparent)))

	return s.withSession(s.withBodyLimit(mux))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "shutdown failed", "err", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
