// Package ownership decides who owns a new letter and moves anonymous
// letters under an account when their author signs in.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/storage"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 100 * time.Millisecond
)

// OwnerKey is either an account or an anonymous identity.
type OwnerKey struct {
	AccountID   string `json:"accountId,omitempty"`
	AnonymousID string `json:"anonymousId,omitempty"`
}

func (k OwnerKey) IsAccount() bool { return k.AccountID != "" }

func (k OwnerKey) String() string {
	if k.IsAccount() {
		return k.AccountID
	}
	return k.AnonymousID
}

// ParseOwnerKey reads the ownerKey query parameter form: anonymous ids carry
// the "anon_" prefix, anything else is an account id.
func ParseOwnerKey(s string) (OwnerKey, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return OwnerKey{}, fmt.Errorf("%w: empty owner key", common.ErrorValidation)
	case strings.HasPrefix(s, common.AnonymousIDPrefix):
		if !identity.IsAnonymousID(s) {
			return OwnerKey{}, fmt.Errorf("%w: malformed anonymous id", common.ErrorValidation)
		}
		return OwnerKey{AnonymousID: s}, nil
	}
	return OwnerKey{AccountID: s}, nil
}

// Apply stamps the key on a letter being created.
func (k OwnerKey) Apply(l *models.Letter) {
	l.OwnerAccountID, l.OwnerAnonymousID = nil, nil
	if k.IsAccount() {
		v := k.AccountID
		l.OwnerAccountID = &v
		return
	}
	v := k.AnonymousID
	l.OwnerAnonymousID = &v
}

// Session is what the request knows about its caller.
type Session struct {
	AccountID string
	Identity  *identity.Identity
}

// AssignOwner returns the account when the session is verified, otherwise
// the anonymous identity.
func AssignOwner(s Session) (OwnerKey, error) {
	if s.AccountID != "" {
		return OwnerKey{AccountID: s.AccountID}, nil
	}
	if s.Identity == nil || s.Identity.AnonymousID == "" {
		return OwnerKey{}, fmt.Errorf("%w: no identity", common.ErrorUnauthorized)
	}
	return OwnerKey{AnonymousID: s.Identity.AnonymousID}, nil
}

// Reparenter is the storage side of a merge.
type Reparenter interface {
	Reparent(ctx context.Context, accountID, anonymousID string) (*storage.ReparentResult, error)
}

type MergeReport struct {
	AccountID   string `json:"accountId"`
	AnonymousID string `json:"anonymousId"`
	Reparented  int64  `json:"reparented"`
	Attempts    int    `json:"attempts"`
	Degraded    bool   `json:"degraded"`
}

type Resolver struct {
	store       Reparenter
	maxAttempts int
	backoff     time.Duration
	logger      logging.Logger
}

// NewResolver builds a resolver retrying merges up to maxAttempts times with
// exponential backoff. At least two attempts are always made.
func NewResolver(store Reparenter, maxAttempts int, backoff time.Duration, logger logging.Logger) *Resolver {
	if maxAttempts < 2 {
		maxAttempts = 2
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Resolver{store: store, maxAttempts: maxAttempts, backoff: backoff, logger: logger.With("module", "ownership")}
}

// MergeOnSignIn ties every letter of anonymousID that has no account yet to
// accountID. The update is conditional, so repeating it, or running it
// concurrently, reports zero further letters instead of failing. Letters
// keep their anonymous owner as provenance.
func (r *Resolver) MergeOnSignIn(ctx context.Context, accountID, anonymousID string) (*MergeReport, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" || strings.HasPrefix(accountID, common.AnonymousIDPrefix) {
		return nil, fmt.Errorf("%w: invalid account id", common.ErrorValidation)
	}
	if !identity.IsAnonymousID(anonymousID) {
		return nil, fmt.Errorf("%w: invalid anonymous id", common.ErrorValidation)
	}

	report := &MergeReport{AccountID: accountID, AnonymousID: anonymousID}
	backoff := retry.WithMaxRetries(uint64(r.maxAttempts-1), retry.NewExponential(r.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		report.Attempts++
		res, err := r.store.Reparent(ctx, accountID, anonymousID)
		if err != nil {
			if errors.Is(err, common.ErrorValidation) {
				return err
			}
			r.logger.Warn(ctx, "merge attempt failed", "attempt", report.Attempts, "account", accountID, "err", err)
			return retry.RetryableError(err)
		}
		report.Reparented = res.Reparented
		report.Degraded = res.Degraded
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return nil, err
		}
		r.logger.Error(ctx, "merge incomplete, letters stay under the anonymous owner",
			"account", accountID, "attempts", report.Attempts, "err", err)
		return report, fmt.Errorf("%w: %v", common.ErrMergeIncomplete, err)
	}

	r.logger.Info(ctx, "merge complete", "account", accountID, "reparented", report.Reparented, "attempts", report.Attempts)
	return report, nil
}
