package models

import "time"

// Record is the tier-agnostic envelope the storage router moves between
// tiers. Key is the letter's link id.
type Record struct {
	Key       string    `json:"key"`
	Letter    *Letter   `json:"letter"`
	Tier      string    `json:"tier"`
	WrittenAt time.Time `json:"writtenAt"`
	// Pending is set while the record has not reached a remote tier.
	Pending bool `json:"pending"`
}

// NewRecord wraps a letter, stamping WrittenAt from its UpdatedAt.
func NewRecord(l *Letter) *Record {
	return &Record{Key: l.LinkID, Letter: l, WrittenAt: l.UpdatedAt}
}

// Clone deep-copies the record and its letter.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Letter = r.Letter.Clone()
	return &c
}

// NewerThan reports whether r should win over other under last-write-wins.
func (r *Record) NewerThan(other *Record) bool {
	if other == nil {
		return true
	}
	return !r.WrittenAt.Before(other.WrittenAt)
}
