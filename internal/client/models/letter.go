// Package models holds the wire types the CLI exchanges with the server.
package models

import "time"

type Song struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	CoverURL    string `json:"coverUrl,omitempty"`
	ExternalURL string `json:"externalUrl,omitempty"`
}

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

// NewLetter is the body of POST /letters.
type NewLetter struct {
	RecipientName string `json:"recipientName"`
	Message       string `json:"message"`
	Song          Song   `json:"song"`
	IsPublic      bool   `json:"isPublic"`
}

// LetterResponse wraps a single letter with where it was served from.
type LetterResponse struct {
	Letter   *Letter `json:"letter"`
	Degraded bool    `json:"degraded"`
	Tier     string  `json:"tier"`
	Pending  bool    `json:"pending,omitempty"`
}

type ListResponse struct {
	Letters  []*Letter `json:"letters"`
	Degraded bool      `json:"degraded"`
	Tier     string    `json:"tier"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Page is a limit/offset window. Zero values let the server pick.
type Page struct {
	Limit  int
	Offset int
}

// ExploreRequest selects public letters. A non-empty SearchQuery wins over
// SortBy and Artist.
type ExploreRequest struct {
	Page
	SearchQuery string
	SortBy      string
	Artist      string
}
