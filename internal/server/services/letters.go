// Package services orchestrates letter creation and retrieval on top of the
// storage router, ownership rules and the device-change detector.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/linkid"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/ownership"
	"github.com/dmitrijs2005/songletters/internal/server/query"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
	"github.com/google/uuid"
)

const (
	MaxRecipientLength = 80
	MaxMessageLength   = 2000
)

// Store is the part of the storage router the service needs.
type Store interface {
	Read(ctx context.Context, key string) (*storage.ReadResult, error)
	Write(ctx context.Context, l *models.Letter) (*storage.WriteResult, error)
	Query(ctx context.Context, q query.Query) (*storage.QueryResult, error)
	IncrementViews(ctx context.Context, key string) error
}

type CreateLetterInput struct {
	RecipientName string      `json:"recipientName"`
	Message       string      `json:"message"`
	Song          models.Song `json:"song"`
	IsPublic      bool        `json:"isPublic"`
}

func (in *CreateLetterInput) normalize() error {
	in.RecipientName = strings.TrimSpace(in.RecipientName)
	in.Message = strings.TrimSpace(in.Message)
	in.Song.Title = strings.TrimSpace(in.Song.Title)
	in.Song.Artist = strings.TrimSpace(in.Song.Artist)

	switch {
	case in.RecipientName == "":
		return fmt.Errorf("%w: recipientName is required", common.ErrorValidation)
	case utf8.RuneCountInString(in.RecipientName) > MaxRecipientLength:
		return fmt.Errorf("%w: recipientName is longer than %d characters", common.ErrorValidation, MaxRecipientLength)
	case in.Message == "":
		return fmt.Errorf("%w: message is required", common.ErrorValidation)
	case utf8.RuneCountInString(in.Message) > MaxMessageLength:
		return fmt.Errorf("%w: message is longer than %d characters", common.ErrorValidation, MaxMessageLength)
	case in.Song.Title == "" || in.Song.Artist == "":
		return fmt.Errorf("%w: song title and artist are required", common.ErrorValidation)
	}
	return nil
}

// LetterResult is a letter plus where it was served from.
type LetterResult struct {
	Letter   *models.Letter
	Tier     string
	Degraded bool
	Pending  bool
}

type LetterService struct {
	store    Store
	detector *identity.Detector
	logger   logging.Logger

	now     func() time.Time
	newLink func() (string, error)
}

func NewLetterService(store Store, detector *identity.Detector, logger logging.Logger) *LetterService {
	return &LetterService{
		store:    store,
		detector: detector,
		logger:   logger.With("module", "letters"),
		now:      time.Now,
		newLink:  linkid.Generate,
	}
}

// Create stores a new letter owned by the session's account, or by its
// anonymous identity when the caller is not signed in. A link id collision
// is retried once with a fresh token.
func (s *LetterService) Create(ctx context.Context, sess ownership.Session, in CreateLetterInput) (*LetterResult, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	owner, err := ownership.AssignOwner(sess)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	l := &models.Letter{
		ID:            uuid.NewString(),
		RecipientName: in.RecipientName,
		Message:       in.Message,
		Song:          in.Song,
		IsPublic:      in.IsPublic,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	owner.Apply(l)

	for attempt := 1; ; attempt++ {
		if l.LinkID, err = s.newLink(); err != nil {
			return nil, fmt.Errorf("link id: %w", err)
		}
		res, err := s.store.Write(ctx, l)
		if err == nil {
			return &LetterResult{Letter: l, Tier: res.Tier, Degraded: res.Degraded, Pending: res.Pending}, nil
		}
		if !errors.Is(err, common.ErrWriteConflict) || attempt == 2 {
			return nil, err
		}
		s.logger.Warn(ctx, "link id collision, regenerating", "link", l.LinkID)
	}
}

// Get returns the letter behind a link id and counts the view. A failed
// view count never fails the read.
func (s *LetterService) Get(ctx context.Context, linkID string) (*LetterResult, error) {
	if !linkid.Valid(linkID) {
		return nil, common.ErrorNotFound
	}
	res, err := s.store.Read(ctx, linkID)
	if err != nil {
		return nil, err
	}

	l := res.Record.Letter
	if !res.Record.Pending {
		if err := s.store.IncrementViews(ctx, linkID); err != nil {
			s.logger.Debug(ctx, "view count skipped", "link", linkID, "err", err)
		} else {
			l.ViewCount++
		}
	}
	return &LetterResult{Letter: l, Tier: res.Tier, Degraded: res.Degraded, Pending: res.Record.Pending}, nil
}

// Classify runs the device-change detector for a session start. Unlinked
// letters are counted on a best-effort basis: a storage failure reads as
// none, since classification is advisory.
func (s *LetterService) Classify(ctx context.Context, stored *identity.Identity, current identity.Fingerprint, accountID string) identity.Classification {
	sig := identity.Signals{Authenticated: accountID != ""}
	if stored != nil && !sig.Authenticated {
		sig.UnlinkedLetters = s.countUnlinked(ctx, stored.AnonymousID)
	}
	return s.detector.Classify(stored, current, sig)
}

// countUnlinked only needs to know whether any exist.
func (s *LetterService) countUnlinked(ctx context.Context, anonymousID string) int {
	q := query.Where(
		query.Eq(query.FieldOwnerAnonymousID, anonymousID),
		query.IsNull(query.FieldOwnerAccountID),
	)
	q.Limit = 1
	res, err := s.store.Query(ctx, q)
	if err != nil {
		s.logger.Debug(ctx, "unlinked letter lookup failed", "err", err)
		return 0
	}
	return len(res.Letters)
}
