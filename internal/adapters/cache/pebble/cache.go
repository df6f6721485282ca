// Package pebble keeps a best-effort local copy of each pet's conversation
// so it can be shown again immediately, before the history load finishes.
package pebble

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

const (
	keyPrefix = "conv:"

	DefaultTTL        = 7 * 24 * time.Hour
	DefaultMaxEntries = 200
)

type Options struct {
	TTL        time.Duration
	MaxEntries int

	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS  vfs.FS
	Now func() time.Time
}

type Cache struct {
	db         *pebble.DB
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cachedConversation struct {
	SavedAt time.Time                  `json:"saved_at"`
	Entries []domain.ConversationEntry `json:"entries"`
}

// Open opens (or creates) the cache at dir and drops expired conversations.
func Open(dir string, opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	pebbleOpts := &pebble.Options{}
	if opts.FS != nil {
		pebbleOpts.FS = opts.FS
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("opening pebble cache: %w", err)
	}

	c := &Cache{db: db, ttl: opts.TTL, maxEntries: opts.MaxEntries, now: opts.Now}
	if n, err := c.Prune(); err != nil {
		observability.Logger().Warn("cache prune failed", "error", err)
	} else if n > 0 {
		observability.Logger().Info("cache pruned", "expired", n)
	}
	return c, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func key(pet domain.PetID) []byte {
	return []byte(keyPrefix + string(pet))
}

// Load implements domain.EntryCache. Missing, unreadable and expired
// conversations are all reported as not found.
func (c *Cache) Load(pet domain.PetID) ([]domain.ConversationEntry, bool) {
	v, closer, err := c.db.Get(key(pet))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			observability.Logger().Warn("cache read failed", "pet_id", pet, "error", err)
		}
		return nil, false
	}
	defer closer.Close()

	var cached cachedConversation
	if err := json.Unmarshal(v, &cached); err != nil {
		observability.Logger().Warn("cache entry unreadable", "pet_id", pet, "error", err)
		return nil, false
	}
	if c.expired(cached.SavedAt) {
		return nil, false
	}
	return cached.Entries, len(cached.Entries) > 0
}

// Save implements domain.EntryCache. Only the newest MaxEntries entries are kept.
func (c *Cache) Save(pet domain.PetID, entries []domain.ConversationEntry) error {
	if len(entries) == 0 {
		return c.db.Delete(key(pet), pebble.Sync)
	}
	if len(entries) > c.maxEntries {
		entries = entries[len(entries)-c.maxEntries:]
	}

	data, err := json.Marshal(cachedConversation{SavedAt: c.now(), Entries: entries})
	if err != nil {
		return fmt.Errorf("encoding cached conversation: %w", err)
	}
	if err := c.db.Set(key(pet), data, pebble.Sync); err != nil {
		return fmt.Errorf("writing cached conversation: %w", err)
	}
	return nil
}

// Prune deletes every expired conversation and reports how many went.
func (c *Cache) Prune() (int, error) {
	it, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "\xff"),
	})
	if err != nil {
		return 0, err
	}

	var stale [][]byte
	for ok := it.First(); ok; ok = it.Next() {
		var cached cachedConversation
		if err := json.Unmarshal(it.Value(), &cached); err != nil || c.expired(cached.SavedAt) {
			stale = append(stale, bytes.Clone(it.Key()))
		}
	}
	if err := it.Close(); err != nil {
		return 0, err
	}

	if len(stale) == 0 {
		return 0, nil
	}
	b := c.db.NewBatch()
	for _, k := range stale {
		if err := b.Delete(k, nil); err != nil {
			_ = b.Close()
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (c *Cache) expired(savedAt time.Time) bool {
	return c.now().Sub(savedAt) > c.ttl
}
