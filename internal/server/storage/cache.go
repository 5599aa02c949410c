package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/server/models"
)

const DefaultCacheCapacity = 1024

type cacheEntry struct {
	rec  *models.Record
	used uint64
}

// CacheTier is the process-local ephemeral tier: a bounded map guarded by a
// mutex. Every mutation is a single locked upsert; records are cloned on the
// way in and out so callers never share memory with the cache.
type CacheTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*cacheEntry
	clock    uint64
}

func NewCacheTier(capacity int) *CacheTier {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &CacheTier{capacity: capacity, entries: make(map[string]*cacheEntry)}
}

func (c *CacheTier) Name() string { return TierCache }

func (c *CacheTier) Get(_ context.Context, key string) (*models.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c.clock++
	e.used = c.clock
	return e.rec.Clone(), nil
}

func (c *CacheTier) Put(_ context.Context, rec *models.Record) error {
	_, err := c.Upsert(rec)
	return err
}

// ErrCacheFull is returned when a pending record would push out another
// pending record that exists nowhere else.
var ErrCacheFull = fmt.Errorf("%w: cache full of pending letters", common.ErrBackendUnavailable)

// Upsert stores rec unless the cached copy is newer. A different letter
// under the same key is a link id collision and yields ErrWriteConflict.
// It reports whether rec was stored. Pending entries are never evicted:
// when nothing else can go, a pending rec is refused with ErrCacheFull and
// a stored one is simply not cached.
func (c *CacheTier) Upsert(rec *models.Record) (bool, error) {
	stored, _, err := c.upsert(rec, false)
	return stored, err
}

// UpsertSpilling is Upsert for callers that keep pending records in another
// tier. It may evict a pending entry and returns it.
func (c *CacheTier) UpsertSpilling(rec *models.Record) (bool, *models.Record, error) {
	return c.upsert(rec, true)
}

func (c *CacheTier) upsert(rec *models.Record, spill bool) (bool, *models.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	if e, ok := c.entries[rec.Key]; ok {
		if e.rec.Letter.ID != rec.Letter.ID {
			return false, nil, fmt.Errorf("%w: link id %s", common.ErrWriteConflict, rec.Key)
		}
		e.used = c.clock
		if !rec.NewerThan(e.rec) {
			return false, nil, nil
		}
		e.rec = rec.Clone()
		e.rec.Tier = TierCache
		return true, nil, nil
	}

	var evicted *models.Record
	if len(c.entries) >= c.capacity {
		victim := c.victimLocked()
		if v := c.entries[victim]; v != nil && v.rec.Pending {
			if !spill {
				if rec.Pending {
					return false, nil, fmt.Errorf("%w: %s", ErrCacheFull, rec.Key)
				}
				return false, nil, nil
			}
			evicted = v.rec.Clone()
		}
		delete(c.entries, victim)
	}
	stored := rec.Clone()
	stored.Tier = TierCache
	c.entries[rec.Key] = &cacheEntry{rec: stored, used: c.clock}
	return true, evicted, nil
}

// victimLocked picks the least recently used entry, preferring records that
// already reached a remote tier.
func (c *CacheTier) victimLocked() string {
	var (
		victim        string
		victimPending = true
		victimUsed    uint64
	)
	for k, e := range c.entries {
		better := victim == "" ||
			(victimPending && !e.rec.Pending) ||
			(victimPending == e.rec.Pending && e.used < victimUsed)
		if better {
			victim, victimPending, victimUsed = k, e.rec.Pending, e.used
		}
	}
	return victim
}

// ListPending returns copies of records written while no remote tier was reachable.
func (c *CacheTier) ListPending(_ context.Context) ([]*models.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*models.Record
	for _, e := range c.entries {
		if e.rec.Pending {
			out = append(out, e.rec.Clone())
		}
	}
	return out, nil
}

// Reparent applies an ownership merge to cached copies so degraded reads
// agree with the store. It returns the pending records it changed; copies
// of letters already stored remotely are updated but not reported.
func (c *CacheTier) Reparent(accountID, anonymousID string, at time.Time) []*models.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var changed []*models.Record
	for _, e := range c.entries {
		l := e.rec.Letter
		if l.OwnerAccountID != nil || l.OwnerAnonymousID == nil || *l.OwnerAnonymousID != anonymousID {
			continue
		}
		acct := accountID
		l.OwnerAccountID = &acct
		if e.rec.Pending {
			l.UpdatedAt = at
			e.rec.WrittenAt = at
			changed = append(changed, e.rec.Clone())
		}
	}
	return changed
}

// Len returns the number of cached records.
func (c *CacheTier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
