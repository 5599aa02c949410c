package auth

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/logging"
	"github.com/dmitrijs2005/songletters/internal/server/ownership"
)

type Merger interface {
	MergeOnSignIn(ctx context.Context, accountID, anonymousID string) (*ownership.MergeReport, error)
}

// Bridge is the seam between the external sign-in and ownership. It runs
// once per verified session; repeated calls are safe because the merge is
// idempotent.
type Bridge struct {
	merger Merger
	logger logging.Logger
}

func NewBridge(merger Merger, logger logging.Logger) *Bridge {
	return &Bridge{merger: merger, logger: logger.With("module", "auth")}
}

// SignIn merges the caller's anonymous letters into the verified account.
// requestedAccountID is what the client claims and must match the session.
func (b *Bridge) SignIn(ctx context.Context, verifiedAccountID, requestedAccountID, anonymousID string) (*ownership.MergeReport, error) {
	if verifiedAccountID == "" {
		return nil, fmt.Errorf("%w: no verified session", common.ErrorUnauthorized)
	}
	if requestedAccountID != "" && requestedAccountID != verifiedAccountID {
		return nil, fmt.Errorf("%w: account does not match session", common.ErrorUnauthorized)
	}
	if anonymousID == "" {
		// nothing was created anonymously on this device
		return &ownership.MergeReport{AccountID: verifiedAccountID}, nil
	}

	report, err := b.merger.MergeOnSignIn(ctx, verifiedAccountID, anonymousID)
	if err != nil {
		return report, err
	}
	if report.Reparented > 0 {
		b.logger.Info(ctx, "anonymous letters merged", "account", verifiedAccountID, "count", report.Reparented)
	}
	return report, nil
}
