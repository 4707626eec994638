package cache

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/riskguard/filter-app/internal/patternset"
	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/tokenizer"
)

// ListDump is a list row plus its live entries, as read from the system
// of record.
type ListDump struct {
	No            string
	Name          string
	Type          rule.ListType
	MatchRule     rule.MatchRule
	MatchMode     rule.MatchMode
	Suggestion    rule.Suggestion
	RiskType      rule.RiskType
	Status        rule.Status
	LanguageScope rule.LanguageScope
	LanguageCodes []string
	Entries       []string
}

// BindingDump is one list-to-scope binding row.
type BindingDump struct {
	ListNo    string
	Scope     rule.Scope
	AppID     string
	ChannelID string
}

// FlagDump is one feature-flag row: a field name and raw value attached
// to a scope tier.
type FlagDump struct {
	Scope     rule.Scope
	AppID     string
	ChannelID string
	Field     string
	Value     string
}

// Source dumps the full rule configuration from the system of record.
// The SQL catalog implements it; tests substitute fixtures.
type Source interface {
	DumpApps(ctx context.Context) ([]string, error)
	DumpLists(ctx context.Context) ([]ListDump, error)
	DumpBindings(ctx context.Context) ([]BindingDump, error)
	DumpFlags(ctx context.Context) ([]FlagDump, error)
}

// EntryPattern derives the match pattern stored for a raw entry: literal
// entries are lowercased, semantic entries are tokenized. langHint carries
// the language to segment with when the list targets exactly one.
func EntryPattern(tok *tokenizer.Tokenizer, mode rule.MatchMode, raw, langHint string) string {
	if mode == rule.MatchModeSemantic {
		return tok.Tokenize(raw, langHint)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// LanguageHint returns the segmentation hint for a list: the single
// configured code when the list targets exactly one language, else "".
func LanguageHint(scope rule.LanguageScope, codes []string) string {
	if scope == rule.LanguageScopeSpecific && len(codes) == 1 {
		return codes[0]
	}
	return ""
}

// projectAll turns a full dump into the Redis-shaped projection: the list
// records and the per-tier scope hash fields. Pure so rebuild output can
// be asserted without a Redis instance; identical dumps yield identical
// projections regardless of row order.
func projectAll(tok *tokenizer.Tokenizer, lists []ListDump, bindings []BindingDump, flags []FlagDump) (map[string]*ListRecord, map[string]map[string]string, error) {
	records := make(map[string]*ListRecord, len(lists))
	for _, d := range lists {
		hint := LanguageHint(d.LanguageScope, d.LanguageCodes)
		ps := patternset.New()
		for _, raw := range d.Entries {
			pattern := EntryPattern(tok, d.MatchMode, raw, hint)
			if pattern == "" {
				log.Printf("[cache] list %s: entry %q yields no pattern, skipping", d.No, raw)
				continue
			}
			ps.Add(pattern, raw)
		}
		ps.Finalize()
		records[d.No] = &ListRecord{
			No:            d.No,
			Name:          d.Name,
			Type:          d.Type,
			MatchRule:     d.MatchRule,
			MatchMode:     d.MatchMode,
			Suggestion:    d.Suggestion,
			RiskType:      d.RiskType,
			Status:        d.Status,
			LanguageScope: d.LanguageScope,
			LanguageCodes: append([]string(nil), d.LanguageCodes...),
			Patterns:      ps,
		}
	}

	members := make(map[string]map[string][]string)
	for _, b := range bindings {
		rec, ok := records[b.ListNo]
		if !ok {
			log.Printf("[cache] binding for unknown list %s, skipping", b.ListNo)
			continue
		}
		tier := TierFor(b.Scope, b.AppID, b.ChannelID)
		fields, ok := members[tier]
		if !ok {
			fields = make(map[string][]string)
			members[tier] = fields
		}
		field := rec.Type.Field()
		fields[field] = append(fields[field], b.ListNo)
	}

	scopes := make(map[string]map[string]string)
	for tier, fields := range members {
		hash := make(map[string]string, len(fields))
		for field, nos := range fields {
			sort.Strings(nos)
			nos = dedupSorted(nos)
			hash[field] = jsonIDs(nos)
		}
		scopes[tier] = hash
	}

	for _, f := range flags {
		tier := TierFor(f.Scope, f.AppID, f.ChannelID)
		hash, ok := scopes[tier]
		if !ok {
			hash = make(map[string]string)
			scopes[tier] = hash
		}
		hash[f.Field] = f.Value
	}

	return records, scopes, nil
}

func dedupSorted(ids []string) []string {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

func jsonIDs(ids []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(id))
	}
	b.WriteByte(']')
	return b.String()
}

// Rebuild wipes the list and scope projection and rewrites it from a
// full dump of the system of record. The app registry is rewritten too;
// the sentinel hashes are managed separately and left alone. Running it
// twice against the same source writes byte-identical values.
func Rebuild(ctx context.Context, store *Store, src Source, tok *tokenizer.Tokenizer) error {
	apps, err := src.DumpApps(ctx)
	if err != nil {
		return fmt.Errorf("cache: dump apps: %w", err)
	}
	lists, err := src.DumpLists(ctx)
	if err != nil {
		return fmt.Errorf("cache: dump lists: %w", err)
	}
	bindings, err := src.DumpBindings(ctx)
	if err != nil {
		return fmt.Errorf("cache: dump bindings: %w", err)
	}
	flags, err := src.DumpFlags(ctx)
	if err != nil {
		return fmt.Errorf("cache: dump flags: %w", err)
	}

	records, scopes, err := projectAll(tok, lists, bindings, flags)
	if err != nil {
		return err
	}

	rdb := store.Client()
	for _, pattern := range []string{listKeyPrefix + "*", scopeKeyPrefix + "*"} {
		iter := rdb.Scan(ctx, 0, pattern, 200).Iterator()
		for iter.Next(ctx) {
			if err := rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("cache: wipe %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("cache: wipe scan: %w", err)
		}
	}
	if err := rdb.Del(ctx, appsKey, pendingListsKey, pendingScopesKey).Err(); err != nil {
		return fmt.Errorf("cache: wipe registry: %w", err)
	}

	pipe := rdb.Pipeline()
	for no, rec := range records {
		fields, err := rec.Fields()
		if err != nil {
			return fmt.Errorf("cache: list %s: %w", no, err)
		}
		pipe.HSet(ctx, ListKey(no), fields)
	}
	for tier, hash := range scopes {
		args := make(map[string]any, len(hash))
		for field, value := range hash {
			args[field] = value
		}
		pipe.HSet(ctx, tier, args)
	}
	if len(apps) > 0 {
		members := make([]any, len(apps))
		for i, app := range apps {
			members[i] = app
		}
		pipe.SAdd(ctx, appsKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: write projection: %w", err)
	}
	return nil
}
