package identity

import (
	"context"
	"time"

	"github.com/dmitrijs2005/songletters/internal/logging"
)

// Capabilities tells the caller how durable the identity is. A store whose
// medium failed keeps working from memory for the rest of the session.
type Capabilities struct {
	Persistent bool `json:"persistent"`
	// Created is true when GetOrCreate minted a new identity.
	Created bool `json:"created"`
}

// Store resolves the current visitor identity from a Medium. It never
// performs network I/O and never fails its caller on persistence errors.
type Store struct {
	medium   Medium
	fallback *MemoryMedium
	degraded bool
	current  Fingerprint
	logger   logging.Logger
	now      func() time.Time
}

// NewStore binds a store to a medium and the fingerprint of the device
// making the current request.
func NewStore(m Medium, current Fingerprint, logger logging.Logger) *Store {
	return &Store{
		medium:   m,
		fallback: NewMemoryMedium(),
		current:  current,
		logger:   logger.With("module", "identity"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Current returns the fingerprint the store was built with.
func (s *Store) Current() Fingerprint { return s.current }

func (s *Store) active() Medium {
	if s.degraded || s.medium == nil {
		return s.fallback
	}
	return s.medium
}

func (s *Store) degrade(ctx context.Context, op string, err error) {
	if !s.degraded {
		s.logger.Warn(ctx, "identity medium unavailable, keeping identity in memory", "op", op, "err", err)
	}
	s.degraded = true
}

// GetOrCreate returns the stored identity when it is structurally valid,
// otherwise mints a new one for the current device and persists it.
func (s *Store) GetOrCreate(ctx context.Context) (*Identity, Capabilities) {
	raw, err := s.active().Load(ctx)
	if err != nil {
		s.degrade(ctx, "load", err)
		raw, _ = s.fallback.Load(ctx)
	}

	if raw != nil {
		id, err := Decode(raw)
		if err == nil {
			return id, s.capabilities(false)
		}
		s.logger.Warn(ctx, "discarding malformed stored identity", "err", err)
	}

	now := s.now()
	id := &Identity{
		AnonymousID: NewAnonymousID(),
		CreatedAt:   now,
		Fingerprint: s.current,
		LastSeenAt:  now,
	}
	s.persist(ctx, id)
	return id, s.capabilities(true)
}

// Peek returns the stored identity without minting one. Nil means there is
// none, or what is stored is unreadable.
func (s *Store) Peek(ctx context.Context) *Identity {
	raw, err := s.active().Load(ctx)
	if err != nil {
		s.degrade(ctx, "load", err)
		raw, _ = s.fallback.Load(ctx)
	}
	if raw == nil {
		return nil
	}
	id, err := Decode(raw)
	if err != nil {
		return nil
	}
	return id
}

// Touch bumps LastSeenAt. Failures are logged and swallowed.
func (s *Store) Touch(ctx context.Context) {
	id, _ := s.GetOrCreate(ctx)
	id.LastSeenAt = s.now()
	s.persist(ctx, id)
}

// Clear removes the identity. Only an explicit visitor reset calls this;
// signing in must keep the anonymous id until the merge has run.
func (s *Store) Clear(ctx context.Context) error {
	_ = s.fallback.Clear(ctx)
	if s.medium == nil || s.degraded {
		return nil
	}
	return s.medium.Clear(ctx)
}

func (s *Store) persist(ctx context.Context, id *Identity) {
	data, err := Encode(id)
	if err != nil {
		s.logger.Warn(ctx, "identity encode failed", "err", err)
		return
	}
	if err := s.active().Save(ctx, data); err != nil {
		s.degrade(ctx, "save", err)
		_ = s.fallback.Save(ctx, data)
	}
}

func (s *Store) capabilities(created bool) Capabilities {
	return Capabilities{Persistent: !s.degraded && s.medium != nil, Created: created}
}
