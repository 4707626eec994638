package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskguard/filter-app/internal/patternset"
	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/sentinel"
)

// Store is the Redis half of the dual-write path: every admin mutation is
// projected here right after its SQL commit, together with an append to
// the matching pending-update queue so other service instances pick the
// change up on their next reconcile cycle.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps a Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Client exposes the underlying Redis client for collaborating packages.
func (s *Store) Client() *redis.Client { return s.rdb }

// PutListMeta writes a list's metadata fields (everything except the
// pattern blob) and queues the list for reconciliation.
func (s *Store) PutListMeta(ctx context.Context, rec *ListRecord) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, ListKey(rec.No), rec.MetaFields())
	s.queueList(ctx, pipe, rec.No)
	_, err := pipe.Exec(ctx)
	return err
}

// PutList writes a complete list record, pattern blob included, and
// queues it for reconciliation.
func (s *Store) PutList(ctx context.Context, rec *ListRecord) error {
	fields, err := rec.Fields()
	if err != nil {
		return err
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, ListKey(rec.No), fields)
	if _, hasData := fields[fieldData]; !hasData {
		pipe.HDel(ctx, ListKey(rec.No), fieldData)
	}
	s.queueList(ctx, pipe, rec.No)
	_, err = pipe.Exec(ctx)
	return err
}

// PutListPatterns replaces only the pattern blob of an existing record.
func (s *Store) PutListPatterns(ctx context.Context, no string, ps *patternset.PatternSet) error {
	pipe := s.rdb.Pipeline()
	if ps == nil || ps.Empty() {
		pipe.HDel(ctx, ListKey(no), fieldData)
	} else {
		blob, err := ps.Marshal()
		if err != nil {
			return err
		}
		pipe.HSet(ctx, ListKey(no), fieldData, string(blob))
	}
	s.queueList(ctx, pipe, no)
	_, err := pipe.Exec(ctx)
	return err
}

// GetListPatterns reads and decodes the pattern blob of a list. The bool
// reports whether the list record exists at all.
func (s *Store) GetListPatterns(ctx context.Context, no string) (*patternset.PatternSet, bool, error) {
	exists, err := s.rdb.Exists(ctx, ListKey(no)).Result()
	if err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, nil
	}
	blob, err := s.rdb.HGet(ctx, ListKey(no), fieldData).Result()
	if errors.Is(err, redis.Nil) {
		return patternset.New(), true, nil
	}
	if err != nil {
		return nil, true, err
	}
	ps, err := patternset.Unmarshal([]byte(blob))
	if err != nil {
		return nil, true, fmt.Errorf("cache: list %s: %w", no, err)
	}
	return ps, true, nil
}

// SetListStatus flips the status field of a cached list record.
func (s *Store) SetListStatus(ctx context.Context, no string, status rule.Status) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, ListKey(no), fieldStatus, int(status))
	s.queueList(ctx, pipe, no)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearListData drops a deleted list's pattern blob. The metadata row
// stays; a list without patterns is inactive, and the scope-tier updates
// remove it from resolution.
func (s *Store) ClearListData(ctx context.Context, no string) error {
	pipe := s.rdb.Pipeline()
	pipe.HDel(ctx, ListKey(no), fieldData)
	s.queueList(ctx, pipe, no)
	_, err := pipe.Exec(ctx)
	return err
}

// UpdateScopeMembership adds or removes a list no from a scope tier's
// per-type id set and queues the tier field for reconciliation. The
// read-modify-write is last-write-wins across processes, which is
// acceptable for human-paced admin traffic.
func (s *Store) UpdateScopeMembership(ctx context.Context, tier string, t rule.ListType, no string, add bool) error {
	field := t.Field()
	raw, err := s.rdb.HGet(ctx, tier, field).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	var ids []string
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return fmt.Errorf("cache: scope %s field %s: %w", tier, field, err)
		}
	}

	next := ids[:0:0]
	for _, id := range ids {
		if id != no {
			next = append(next, id)
		}
	}
	if add {
		next = append(next, no)
	}
	sort.Strings(next)

	data, _ := json.Marshal(next)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, tier, field, string(data))
	s.queueScope(ctx, pipe, tier, field)
	_, err = pipe.Exec(ctx)
	return err
}

// SetScopeFlag writes a feature-flag field on a scope tier and queues it.
func (s *Store) SetScopeFlag(ctx context.Context, tier, field, value string) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, tier, field, value)
	s.queueScope(ctx, pipe, tier, field)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearScopeFlag deletes a feature-flag field from a scope tier and
// queues it, so reconcilers see the flag as unconfigured again.
func (s *Store) ClearScopeFlag(ctx context.Context, tier, field string) error {
	pipe := s.rdb.Pipeline()
	pipe.HDel(ctx, tier, field)
	s.queueScope(ctx, pipe, tier, field)
	_, err := pipe.Exec(ctx)
	return err
}

// AddApp registers an app id in the serving cache.
func (s *Store) AddApp(ctx context.Context, appID string) error {
	return s.rdb.SAdd(ctx, appsKey, appID).Err()
}

// RemoveApp unregisters an app id.
func (s *Store) RemoveApp(ctx context.Context, appID string) error {
	return s.rdb.SRem(ctx, appsKey, appID).Err()
}

// Apps returns the registered app ids.
func (s *Store) Apps(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, appsKey).Result()
}

func (s *Store) queueList(ctx context.Context, pipe redis.Pipeliner, no string) {
	pipe.ZAdd(ctx, pendingListsKey, redis.Z{Score: float64(time.Now().Unix()), Member: no})
}

func (s *Store) queueScope(ctx context.Context, pipe redis.Pipeliner, tier, field string) {
	pipe.ZAdd(ctx, pendingScopesKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: tier + "|" + field,
	})
}

// PendingLists returns the list nos queued within [from, to].
func (s *Store) PendingLists(ctx context.Context, from, to int64) ([]string, error) {
	return s.pendingRange(ctx, pendingListsKey, from, to)
}

// PendingScopes returns the "<tier>|<field>" members queued within [from, to].
func (s *Store) PendingScopes(ctx context.Context, from, to int64) ([]string, error) {
	return s.pendingRange(ctx, pendingScopesKey, from, to)
}

func (s *Store) pendingRange(ctx context.Context, key string, from, to int64) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from),
		Max: fmt.Sprintf("%d", to),
	}).Result()
}

// PruneQueues drops queue entries older than the trailing window.
func (s *Store) PruneQueues(ctx context.Context, before int64) error {
	max := fmt.Sprintf("%d", before)
	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, pendingListsKey, "0", max)
	pipe.ZRemRangeByScore(ctx, pendingScopesKey, "0", max)
	_, err := pipe.Exec(ctx)
	return err
}

// QueueSizes returns the current length of both pending queues.
func (s *Store) QueueSizes(ctx context.Context) (lists, scopes int64, err error) {
	lists, err = s.rdb.ZCard(ctx, pendingListsKey).Result()
	if err != nil {
		return 0, 0, err
	}
	scopes, err = s.rdb.ZCard(ctx, pendingScopesKey).Result()
	return lists, scopes, err
}

// LoadAll reads the entire serving cache into a fresh snapshot: every
// list record, every scope tier, the app registry, and the sentinel
// denylist. Used at startup and after a full rebuild.
func (s *Store) LoadAll(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()
	snap.LoadedAt = time.Now()

	iter := s.rdb.Scan(ctx, 0, listKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		h, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("cache: load %s: %w", key, err)
		}
		if len(h) == 0 {
			continue
		}
		no := strings.TrimPrefix(key, listKeyPrefix)
		rec, err := parseListRecord(no, h)
		if err != nil {
			return nil, err
		}
		snap.Lists[no] = rec
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: scan lists: %w", err)
	}

	iter = s.rdb.Scan(ctx, 0, scopeKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		h, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("cache: load %s: %w", key, err)
		}
		if len(h) == 0 {
			continue
		}
		rec, err := parseScopeRecord(h)
		if err != nil {
			return nil, fmt.Errorf("cache: scope %s: %w", key, err)
		}
		snap.Scopes[key] = rec
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: scan scopes: %w", err)
	}

	apps, err := s.Apps(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: load apps: %w", err)
	}
	for _, app := range apps {
		snap.Apps[app] = struct{}{}
	}

	table, err := sentinel.Load(ctx, s.rdb)
	if err != nil {
		return nil, err
	}
	snap.Sentinel = table

	return snap, nil
}
