// Package services holds the CLI's use cases. Each call resolves the local
// identity, talks to the server and persists whatever identity or token the
// exchange produced.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/songletters/internal/client/client"
	"github.com/dmitrijs2005/songletters/internal/client/models"
	"github.com/dmitrijs2005/songletters/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/logging"
)

type Service struct {
	api    client.Client
	meta   metadata.Repository
	ids    *identity.Store
	medium identity.Medium
	logger logging.Logger
}

func NewService(api client.Client, meta metadata.Repository, fp identity.Fingerprint, logger logging.Logger) *Service {
	medium := metadata.NewIdentityMedium(meta)
	return &Service{
		api:    api,
		meta:   meta,
		ids:    identity.NewStore(medium, fp, logger),
		medium: medium,
		logger: logger.With("module", "cli"),
	}
}

// session mints the local identity on first use and attaches the stored
// token, if any.
func (s *Service) session(ctx context.Context) *client.Session {
	sess := &client.Session{}

	id, caps := s.ids.GetOrCreate(ctx)
	if caps.Created {
		s.logger.Debug(ctx, "minted anonymous identity", "anonymousId", id.AnonymousID, "persistent", caps.Persistent)
	}
	if data, err := identity.Encode(id); err == nil {
		sess.Identity = data
	}

	token, err := s.meta.Get(ctx, metadata.KeySessionToken)
	if err != nil {
		s.logger.Warn(ctx, "session token unreadable", "err", err)
	}
	sess.Token = string(token)
	return sess
}

// keep stores an identity the server handed back, e.g. after a last-seen
// bump.
func (s *Service) keep(ctx context.Context, before []byte, sess *client.Session) {
	if len(sess.Identity) == 0 || bytes.Equal(before, sess.Identity) {
		return
	}
	if err := s.medium.Save(ctx, sess.Identity); err != nil {
		s.logger.Warn(ctx, "failed to store refreshed identity", "err", err)
	}
}

func (s *Service) Whoami(ctx context.Context) (*models.IdentityResponse, error) {
	sess := s.session(ctx)
	before := sess.Identity

	res, err := s.api.Identity(ctx, sess)
	s.keep(ctx, before, sess)
	return res, err
}

// LocalIdentity returns the stored identity without contacting the server.
func (s *Service) LocalIdentity(ctx context.Context) *identity.Identity {
	return s.ids.Peek(ctx)
}

func (s *Service) Create(ctx context.Context, in models.NewLetter) (*models.LetterResponse, error) {
	sess := s.session(ctx)
	before := sess.Identity

	res, err := s.api.CreateLetter(ctx, sess, in)
	s.keep(ctx, before, sess)
	return res, err
}

func (s *Service) Show(ctx context.Context, linkID string) (*models.LetterResponse, error) {
	return s.api.GetLetter(ctx, strings.TrimSpace(linkID))
}

func (s *Service) Mine(ctx context.Context, page models.Page) (*models.ListResponse, error) {
	sess := s.session(ctx)
	before := sess.Identity

	res, err := s.api.Mine(ctx, sess, page)
	s.keep(ctx, before, sess)
	if errors.Is(err, common.ErrTokenExpired) {
		s.forgetToken(ctx)
	}
	return res, err
}

func (s *Service) Explore(ctx context.Context, req models.ExploreRequest) (*models.ListResponse, error) {
	return s.api.Explore(ctx, req)
}

// Merge signs in with token and moves the local visitor's letters to the
// account. The token is kept once the server has accepted it, even when the
// merge itself has to be retried later.
func (s *Service) Merge(ctx context.Context, token, accountID string) (*models.MergeReport, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty session token", common.ErrorValidation)
	}

	sess := s.session(ctx)
	sess.Token = token
	before := sess.Identity

	report, err := s.api.Merge(ctx, sess, strings.TrimSpace(accountID))
	s.keep(ctx, before, sess)
	if err == nil || errors.Is(err, common.ErrMergeIncomplete) {
		if setErr := s.meta.Set(ctx, metadata.KeySessionToken, []byte(token)); setErr != nil {
			return report, errors.Join(err, setErr)
		}
	}
	return report, err
}

// Reset forgets the visitor on the server and locally. The local identity
// and token are dropped even when the server cannot be reached.
func (s *Service) Reset(ctx context.Context) error {
	sess := s.session(ctx)
	apiErr := s.api.ResetIdentity(ctx, sess)
	if apiErr != nil && !errors.Is(apiErr, client.ErrUnavailable) {
		return apiErr
	}

	if err := s.ids.Clear(ctx); err != nil {
		return err
	}
	if err := s.meta.Delete(ctx, metadata.KeySessionToken); err != nil {
		return err
	}
	if apiErr != nil {
		s.logger.Warn(ctx, "server unreachable, identity cleared locally only", "err", apiErr)
	}
	return nil
}

func (s *Service) forgetToken(ctx context.Context) {
	if err := s.meta.Delete(ctx, metadata.KeySessionToken); err != nil {
		s.logger.Warn(ctx, "failed to drop expired token", "err", err)
	}
}
