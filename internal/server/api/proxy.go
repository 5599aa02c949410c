package api

import (
	"net/http"

	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
)

// Proxy endpoints answer straight from this node's primary store, never
// from its own fallback chain, so two peers cannot bounce a request
// between each other.

func (s *Server) proxyPrimary(w http.ResponseWriter) (storage.RemoteTier, bool) {
	if s.primary == nil {
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", "no primary store on this node")
		return nil, false
	}
	return s.primary, true
}

func (s *Server) handleProxyGet(w http.ResponseWriter, r *http.Request) {
	primary, ok := s.proxyPrimary(w)
	if !ok {
		return
	}
	rec, err := primary.Get(r.Context(), r.PathValue("linkId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleProxyPut(w http.ResponseWriter, r *http.Request) {
	primary, ok := s.proxyPrimary(w)
	if !ok {
		return
	}
	var rec models.Record
	if !decodeJSON(w, r, &rec) {
		return
	}
	if rec.Letter == nil || rec.Key != r.PathValue("linkId") || rec.Letter.LinkID != rec.Key {
		writeError(w, http.StatusBadRequest, "bad_request", "record key does not match the path")
		return
	}
	rec.Pending = false
	if err := primary.Put(r.Context(), &rec); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProxyViews(w http.ResponseWriter, r *http.Request) {
	primary, ok := s.proxyPrimary(w)
	if !ok {
		return
	}
	if err := primary.IncrementViews(r.Context(), r.PathValue("linkId")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProxyQuery(w http.ResponseWriter, r *http.Request) {
	primary, ok := s.proxyPrimary(w)
	if !ok {
		return
	}
	var q query.Query
	if !decodeJSON(w, r, &q) {
		return
	}
	if err := q.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	letters, err := primary.Query(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if letters == nil {
		letters = []*models.Letter{}
	}
	writeJSON(w, http.StatusOK, storage.ProxyQueryResponse{Letters: letters})
}

func (s *Server) handleProxyReparent(w http.ResponseWriter, r *http.Request) {
	primary, ok := s.proxyPrimary(w)
	if !ok {
		return
	}
	var req storage.ProxyReparentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AccountID == "" || !identity.IsAnonymousID(req.AnonymousID) {
		writeError(w, http.StatusBadRequest, "bad_request", "accountId and a valid anonymousId are required")
		return
	}
	n, err := primary.Reparent(r.Context(), req.AccountID, req.AnonymousID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, storage.ProxyReparentResponse{Reparented: n})
}
