// Package models defines server-side data models persisted by the storage tiers.
package models

import "time"

// Song is the track attached to a letter. Lookup and matching happen
// upstream; the server only stores what the client resolved.
type Song struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	CoverURL    string `json:"coverUrl,omitempty"`
	ExternalURL string `json:"externalUrl,omitempty"`
}

// Letter is a shareable message plus song.
//
// Exactly one owner is set at creation. After a merge both may be set:
// OwnerAccountID is authoritative and OwnerAnonymousID stays as provenance.
type Letter struct {
	ID               string    `json:"id"`
	LinkID           string    `json:"linkId"`
	OwnerAccountID   *string   `json:"ownerAccountId"`
	OwnerAnonymousID *string   `json:"ownerAnonymousId"`
	RecipientName    string    `json:"recipientName"`
	Message          string    `json:"message"`
	Song             Song      `json:"song"`
	IsPublic         bool      `json:"isPublic"`
	ViewCount        int64     `json:"viewCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so tiers never share mutable state with callers.
func (l *Letter) Clone() *Letter {
	if l == nil {
		return nil
	}
	c := *l
	if l.OwnerAccountID != nil {
		v := *l.OwnerAccountID
		c.OwnerAccountID = &v
	}
	if l.OwnerAnonymousID != nil {
		v := *l.OwnerAnonymousID
		c.OwnerAnonymousID = &v
	}
	return &c
}

// MergeLog records one ownership merge that re-parented at least one letter.
type MergeLog struct {
	ID          string
	AccountID   string
	AnonymousID string
	Reparented  int64
	MergedAt    time.Time
}
