// Package identity manages the anonymous visitor identity: generating it,
// persisting it on whatever medium the caller has (a cookie, a local SQLite
// file), and classifying device changes so visitors can be prompted to
// link an account.
package identity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/google/uuid"
)

// Fingerprint is a coarse, non-unique device descriptor. It is only ever
// compared heuristically and must never be used to deny access.
type Fingerprint struct {
	Locale      string `json:"locale"`
	Timezone    string `json:"timezone"`
	ScreenClass string `json:"screenClass"`
	Platform    string `json:"platform"`
}

// Distance counts the attributes that differ. Blank attributes on either
// side are unknown and do not count.
func (f Fingerprint) Distance(other Fingerprint) int {
	n := 0
	for _, pair := range [][2]string{
		{f.Locale, other.Locale},
		{f.Timezone, other.Timezone},
		{f.ScreenClass, other.ScreenClass},
		{f.Platform, other.Platform},
	} {
		a, b := strings.ToLower(strings.TrimSpace(pair[0])), strings.ToLower(strings.TrimSpace(pair[1]))
		if a != "" && b != "" && a != b {
			n++
		}
	}
	return n
}

// Identity is an un-authenticated visitor.
type Identity struct {
	AnonymousID string      `json:"anonymousId"`
	CreatedAt   time.Time   `json:"createdAt"`
	Fingerprint Fingerprint `json:"fingerprint"`
	LastSeenAt  time.Time   `json:"lastSeenAt"`
}

// NewAnonymousID returns "anon_" followed by the 32 hex digits of a random
// UUID (122 random bits).
func NewAnonymousID() string {
	return common.AnonymousIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsAnonymousID reports whether s has the shape NewAnonymousID produces.
func IsAnonymousID(s string) bool {
	rest, ok := strings.CutPrefix(s, common.AnonymousIDPrefix)
	if !ok || len(rest) != 32 {
		return false
	}
	for _, c := range rest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Validate checks that every required field is present and well-formed.
func (i *Identity) Validate() error {
	if i == nil {
		return fmt.Errorf("%w: empty identity", common.ErrorValidation)
	}
	if !IsAnonymousID(i.AnonymousID) {
		return fmt.Errorf("%w: malformed anonymous id", common.ErrorValidation)
	}
	if i.CreatedAt.IsZero() || i.LastSeenAt.IsZero() {
		return fmt.Errorf("%w: missing timestamps", common.ErrorValidation)
	}
	return nil
}

// Encode serialises the identity for a Medium.
func Encode(i *Identity) ([]byte, error) {
	return json.Marshal(i)
}

// Decode parses and validates a stored identity.
func Decode(b []byte) (*Identity, error) {
	var i Identity
	if err := json.Unmarshal(b, &i); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	if err := i.Validate(); err != nil {
		return nil, err
	}
	return &i, nil
}
