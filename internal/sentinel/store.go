// Package sentinel reads the externally-maintained account/IP denylist
// consulted ahead of list matching. A separate watch system writes the
// denylist to Redis out-of-band:
//
//	Key:   sentinel:account | sentinel:ip
//	Field: <watch rule label>
//	Value: JSON object {app_id: [account ids or ips]}
//
// This package only reads; the verdict surfaces the rule label of the
// first matching entry.
package sentinel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	// AccountKey holds account-id denylist entries.
	AccountKey = "sentinel:account"
	// IPKey holds IP denylist entries.
	IPKey = "sentinel:ip"
)

// Table is an in-memory index of the denylist, keyed by "<app>_<value>".
// Each key maps to the watch rule labels that listed it.
type Table struct {
	Accounts map[string][]string
	IPs      map[string][]string
}

// LookupAccount returns the first watch rule label listing the account,
// if any.
func (t Table) LookupAccount(appID, accountID string) (string, bool) {
	return first(t.Accounts, appID+"_"+accountID)
}

// LookupIP returns the first watch rule label listing the ip, if any.
func (t Table) LookupIP(appID, ip string) (string, bool) {
	return first(t.IPs, appID+"_"+ip)
}

func first(m map[string][]string, key string) (string, bool) {
	labels := m[key]
	if len(labels) == 0 {
		return "", false
	}
	return labels[0], true
}

// Load reads both denylist hashes and builds the lookup table. A malformed
// entry is skipped and logged rather than failing the whole load; the
// denylist is advisory and the filter fails open anyway.
func Load(ctx context.Context, rdb *redis.Client) (Table, error) {
	accounts, err := loadIndex(ctx, rdb, AccountKey)
	if err != nil {
		return Table{}, fmt.Errorf("sentinel: load accounts: %w", err)
	}
	ips, err := loadIndex(ctx, rdb, IPKey)
	if err != nil {
		return Table{}, fmt.Errorf("sentinel: load ips: %w", err)
	}
	return Table{Accounts: accounts, IPs: ips}, nil
}

func loadIndex(ctx context.Context, rdb *redis.Client, key string) (map[string][]string, error) {
	raw, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return BuildIndex(key, raw), nil
}

// BuildIndex converts the raw hash (rule label -> JSON app/id map) into the
// "<app>_<value>" lookup index. Exported for tests and for loading from
// pre-fetched data.
func BuildIndex(key string, raw map[string]string) map[string][]string {
	index := make(map[string][]string)
	labels := make([]string, 0, len(raw))
	for label := range raw {
		labels = append(labels, label)
	}
	// Deterministic label order so "first matching label" is stable.
	sort.Strings(labels)

	for _, label := range labels {
		var detail map[string][]string
		if err := json.Unmarshal([]byte(raw[label]), &detail); err != nil {
			log.Printf("[sentinel] skipping malformed entry key=%s label=%s: %v", key, label, err)
			continue
		}
		for appID, values := range detail {
			for _, v := range values {
				k := appID + "_" + v
				index[k] = append(index[k], label)
			}
		}
	}
	return index
}
