package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/ownership"
	"github.com/dmitrijs2005/songletters/internal/server/services"
	"github.com/dmitrijs2005/songletters/internal/server/visibility"
)

type letterResponse struct {
	Letter   *models.Letter `json:"letter"`
	Degraded bool           `json:"degraded"`
	Tier     string         `json:"tier"`
	Pending  bool           `json:"pending,omitempty"`
}

type listResponse struct {
	Letters  []*models.Letter `json:"letters"`
	Degraded bool             `json:"degraded"`
	Tier     string           `json:"tier"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

type mergeRequest struct {
	AccountID string `json:"accountId"`
}

type identityResponse struct {
	Identity       *identity.Identity      `json:"identity"`
	Capabilities   identity.Capabilities   `json:"capabilities"`
	Classification identity.Classification `json:"classification"`
	AccountID      string                  `json:"accountId,omitempty"`
}

func toLetterResponse(res *services.LetterResult) letterResponse {
	return letterResponse{Letter: res.Letter, Degraded: res.Degraded, Tier: res.Tier, Pending: res.Pending}
}

func toListResponse(res *visibility.Result) listResponse {
	letters := res.Letters
	if letters == nil {
		letters = []*models.Letter{}
	}
	return listResponse{Letters: letters, Degraded: res.Degraded, Tier: res.Tier, Limit: res.Page.Limit, Offset: res.Page.Offset}
}

func (s *Server) handleCreateLetter(w http.ResponseWriter, r *http.Request) {
	var in services.CreateLetterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ctx := r.Context()
	sess := ownership.Session{AccountID: accountIDFrom(ctx)}
	if sess.AccountID == "" {
		sess.Identity, _ = identityStoreFrom(ctx).GetOrCreate(ctx)
	}

	res, err := s.letters.Create(ctx, sess, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info(ctx, "letter created", "link", res.Letter.LinkID, "tier", res.Tier)
	writeJSON(w, http.StatusCreated, toLetterResponse(res))
}

func (s *Server) handleGetLetter(w http.ResponseWriter, r *http.Request) {
	res, err := s.letters.Get(r.Context(), r.PathValue("linkId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLetterResponse(res))
}

// handleMine lists the caller's letters. ownerKey must name the caller:
// their session account or their anonymous id. Listing by account also
// includes the caller's anonymous letters not merged yet.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	accountID := accountIDFrom(ctx)
	var anonymousID string
	if id := identityStoreFrom(ctx).Peek(ctx); id != nil {
		anonymousID = id.AnonymousID
	}

	var key ownership.OwnerKey
	if raw := r.URL.Query().Get("ownerKey"); raw != "" {
		parsed, err := ownership.ParseOwnerKey(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		key = parsed
	} else {
		key = ownership.OwnerKey{AccountID: accountID, AnonymousID: anonymousID}
	}

	switch {
	case key.AccountID != "" && key.AccountID != accountID:
		writeError(w, http.StatusUnauthorized, "unauthorized", "owner key does not match the session")
		return
	case key.AccountID == "" && (key.AnonymousID == "" || key.AnonymousID != anonymousID):
		writeError(w, http.StatusUnauthorized, "unauthorized", "owner key does not match the identity")
		return
	case key.AccountID != "":
		key.AnonymousID = anonymousID
	}

	res, err := s.gateway.ListOwned(ctx, key, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(res))
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var (
		res *visibility.Result
		err error
	)
	if term := strings.TrimSpace(q.Get("searchQuery")); term != "" {
		res, err = s.gateway.Search(r.Context(), term, page)
	} else {
		var sortBy visibility.SortBy
		sortBy, err = visibility.ParseSortBy(q.Get("sortBy"))
		if err == nil {
			res, err = s.gateway.ListPublic(r.Context(), page, sortBy, q.Get("artist"))
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(res))
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	var anonymousID string
	if id := identityStoreFrom(ctx).Peek(ctx); id != nil {
		anonymousID = id.AnonymousID
	}

	report, err := s.bridge.SignIn(ctx, accountIDFrom(ctx), strings.TrimSpace(req.AccountID), anonymousID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleGetIdentity starts a session: classify against the stored
// identity, then bump its last-seen time.
func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := identityStoreFrom(ctx)
	accountID := accountIDFrom(ctx)

	id, caps := store.GetOrCreate(ctx)
	class := identity.None
	if !caps.Created {
		class = s.letters.Classify(ctx, id, store.Current(), accountID)
		store.Touch(ctx)
	}

	writeJSON(w, http.StatusOK, identityResponse{Identity: id, Capabilities: caps, Classification: class, AccountID: accountID})
}

func (s *Server) handleResetIdentity(w http.ResponseWriter, r *http.Request) {
	if err := identityStoreFrom(r.Context()).Clear(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePage(w http.ResponseWriter, r *http.Request) (visibility.Page, bool) {
	var page visibility.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
			return page, false
		}
		*dst = v
	}
	return page, true
}
