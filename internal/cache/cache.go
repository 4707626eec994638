package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskguard/filter-app/internal/sentinel"
)

// DefaultWindow is the trailing slice of the pending queues each
// reconcile run replays. It spans several reconcile intervals so a
// mutation is merged even when one run is missed or delayed.
const DefaultWindow = 500 * time.Second

// Cache pairs the Redis store with an atomically swapped snapshot.
// Snapshot reads are lock-free; Load and Reconcile build a replacement
// off to the side and swap it in whole.
type Cache struct {
	store  *Store
	window time.Duration
	snap   atomic.Pointer[Snapshot]
}

// NewCache builds a cache over the given store. A zero window falls back
// to DefaultWindow.
func NewCache(store *Store, window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Cache{store: store, window: window}
	c.snap.Store(NewSnapshot())
	return c
}

// Store returns the underlying Redis store for write-path callers.
func (c *Cache) Store() *Store { return c.store }

// Snapshot returns the current serving view. The returned snapshot is
// immutable and safe to use across the whole evaluation of a message.
func (c *Cache) Snapshot() *Snapshot { return c.snap.Load() }

// Load replaces the snapshot with a full read of the Redis projection.
func (c *Cache) Load(ctx context.Context) error {
	snap, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	c.snap.Store(snap)
	return nil
}

// Reconcile replays the trailing window of both pending queues into a
// cloned snapshot and swaps it in. Each queued key is re-read from Redis
// and its record replaced in place; a list whose hash has vanished is
// dropped from the snapshot, and a removed binding arrives as a scope
// field that no longer names it. The replay is idempotent so re-reading
// an already-applied entry is safe.
func (c *Cache) Reconcile(ctx context.Context) error {
	now := time.Now().Unix()
	from := now - int64(c.window/time.Second)

	next := c.Snapshot().clone()
	next.LoadedAt = time.Now()

	apps, err := c.store.Apps(ctx)
	if err != nil {
		return fmt.Errorf("cache: reconcile apps: %w", err)
	}
	next.Apps = make(map[string]struct{}, len(apps))
	for _, app := range apps {
		next.Apps[app] = struct{}{}
	}

	table, err := sentinel.Load(ctx, c.store.Client())
	if err != nil {
		return fmt.Errorf("cache: reconcile sentinel: %w", err)
	}
	next.Sentinel = table

	if err := c.mergeScopes(ctx, next, from, now); err != nil {
		return err
	}
	if err := c.mergeLists(ctx, next, from, now); err != nil {
		return err
	}

	if err := c.store.PruneQueues(ctx, now-int64(c.window/time.Second)); err != nil {
		log.Printf("[cache] prune queues: %v", err)
	}

	c.snap.Store(next)
	return nil
}

func (c *Cache) mergeScopes(ctx context.Context, next *Snapshot, from, to int64) error {
	members, err := c.store.PendingScopes(ctx, from, to)
	if err != nil {
		return fmt.Errorf("cache: pending scopes: %w", err)
	}
	for _, member := range members {
		tier, field, ok := strings.Cut(member, "|")
		if !ok {
			log.Printf("[cache] malformed scope queue member %q, skipping", member)
			continue
		}
		raw, err := c.store.Client().HGet(ctx, tier, field).Result()
		present := true
		if errors.Is(err, redis.Nil) {
			present = false
			err = nil
		}
		if err != nil {
			return fmt.Errorf("cache: read scope %s: %w", tier, err)
		}
		rec, ok := next.Scopes[tier]
		if !ok {
			rec = newScopeRecord()
		} else {
			rec = rec.clone()
		}
		if err := rec.mergeField(field, raw, present); err != nil {
			log.Printf("[cache] scope %s: %v, skipping", tier, err)
			continue
		}
		next.Scopes[tier] = rec
	}
	return nil
}

func (c *Cache) mergeLists(ctx context.Context, next *Snapshot, from, to int64) error {
	nos, err := c.store.PendingLists(ctx, from, to)
	if err != nil {
		return fmt.Errorf("cache: pending lists: %w", err)
	}
	for _, no := range nos {
		h, err := c.store.Client().HGetAll(ctx, ListKey(no)).Result()
		if err != nil {
			return fmt.Errorf("cache: read list %s: %w", no, err)
		}
		if len(h) == 0 {
			delete(next.Lists, no)
			continue
		}
		rec, err := parseListRecord(no, h)
		if err != nil {
			log.Printf("[cache] list %s: %v, skipping", no, err)
			continue
		}
		next.Lists[no] = rec
	}
	return nil
}
