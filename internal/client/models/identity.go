package models

import "github.com/dmitrijs2005/songletters/internal/identity"

type IdentityResponse struct {
	Identity       *identity.Identity      `json:"identity"`
	Capabilities   identity.Capabilities   `json:"capabilities"`
	Classification identity.Classification `json:"classification"`
	AccountID      string                  `json:"accountId,omitempty"`
}

type MergeReport struct {
	AccountID   string `json:"accountId"`
	AnonymousID string `json:"anonymousId"`
	Reparented  int64  `json:"reparented"`
	Attempts    int    `json:"attempts"`
	Degraded    bool   `json:"degraded"`
}
