package service

import (
	"context"
	"fmt"
	"log"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/catalog"
	"github.com/riskguard/filter-app/internal/patternset"
	"github.com/riskguard/filter-app/internal/rule"
)

// Op identifies one admin mutation kind.
type Op string

const (
	OpCreateList    Op = "create_list"
	OpUpdateList    Op = "update_list"
	OpDeleteList    Op = "delete_list"
	OpSetListStatus Op = "set_list_status"

	OpAddEntry      Op = "add_entry"
	OpUpdateEntry   Op = "update_entry"
	OpRemoveEntry   Op = "remove_entry"
	OpAddEntries    Op = "add_entries"
	OpRemoveEntries Op = "remove_entries"

	OpSetModerationSwitch Op = "set_moderation_switch"
	OpSetAISwitch         Op = "set_ai_switch"
	OpSetVendorSwitch     Op = "set_vendor_switch"
	OpSetModelThreshold   Op = "set_model_threshold"

	OpCreateApp Op = "create_app"
	OpDeleteApp Op = "delete_app"
)

// Mutation is the single write-path request. Which fields matter depends
// on Op; unused fields are ignored.
type Mutation struct {
	Op Op

	ListNo string
	Spec   *catalog.ListSpec
	Status rule.Status

	EntryID int64
	Text    string
	Memo    string
	Texts   []string

	AppID     string
	AppName   string
	ChannelID string
	Enabled   bool
	Threshold float64
}

// MutationResult reports what a successful mutation produced.
type MutationResult struct {
	List    *catalog.List
	Entry   *catalog.Entry
	Entries []catalog.Entry
	Removed []string
}

// ApplyMutation is the single write entry point. Each mutation commits
// to the catalog first; the cache projection and queue append follow the
// commit and their failures are logged, never returned, since SQL is
// authoritative and reconciliation self-heals the cache.
func (s *Service) ApplyMutation(ctx context.Context, m Mutation) (*MutationResult, error) {
	switch m.Op {
	case OpCreateList:
		return s.createList(ctx, m)
	case OpUpdateList:
		return s.updateList(ctx, m)
	case OpDeleteList:
		return s.deleteList(ctx, m)
	case OpSetListStatus:
		return s.setListStatus(ctx, m)
	case OpAddEntry:
		return s.addEntry(ctx, m)
	case OpUpdateEntry:
		return s.updateEntry(ctx, m)
	case OpRemoveEntry:
		return s.removeEntry(ctx, m)
	case OpAddEntries:
		return s.addEntries(ctx, m)
	case OpRemoveEntries:
		return s.removeEntries(ctx, m)
	case OpSetModerationSwitch:
		return s.setModerationSwitch(ctx, m)
	case OpSetAISwitch:
		return s.setFlag(ctx, m, cache.FlagAI, boolFlag(m.Enabled), s.catalog.SetAISwitch)
	case OpSetVendorSwitch:
		return s.setFlag(ctx, m, cache.FlagVendor, boolFlag(m.Enabled), s.catalog.SetVendorSwitch)
	case OpSetModelThreshold:
		return s.setModelThreshold(ctx, m)
	case OpCreateApp:
		return s.createApp(ctx, m)
	case OpDeleteApp:
		return s.deleteApp(ctx, m)
	}
	return nil, fmt.Errorf("%w: unknown op %q", catalog.ErrInvalid, string(m.Op))
}

func (s *Service) createList(ctx context.Context, m Mutation) (*MutationResult, error) {
	if m.Spec == nil {
		return nil, fmt.Errorf("%w: list spec required", catalog.ErrInvalid)
	}
	list, err := s.catalog.CreateList(ctx, *m.Spec)
	if err != nil {
		return nil, err
	}

	logCacheErr("put list", s.cache.Store().PutList(ctx, recordFor(list.No, &list.Spec)))
	for _, tier := range tiersFor(&list.Spec) {
		logCacheErr("bind list", s.cache.Store().UpdateScopeMembership(ctx, tier, list.Spec.Type, list.No, true))
	}
	return &MutationResult{List: list}, nil
}

func (s *Service) updateList(ctx context.Context, m Mutation) (*MutationResult, error) {
	if m.Spec == nil {
		return nil, fmt.Errorf("%w: list spec required", catalog.ErrInvalid)
	}
	old, err := s.catalog.GetList(ctx, m.ListNo)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.UpdateList(ctx, m.ListNo, *m.Spec); err != nil {
		return nil, err
	}

	store := s.cache.Store()
	logCacheErr("put list meta", store.PutListMeta(ctx, recordFor(m.ListNo, m.Spec)))

	// Membership moves tier by tier: drop the stale (tier, type) slots,
	// then add the current ones. Adding an already-present no is a no-op.
	next := make(map[string]struct{})
	for _, tier := range tiersFor(m.Spec) {
		next[tier] = struct{}{}
	}
	for _, tier := range tiersFor(&old.Spec) {
		if _, keep := next[tier]; keep && old.Spec.Type == m.Spec.Type {
			continue
		}
		logCacheErr("unbind list", store.UpdateScopeMembership(ctx, tier, old.Spec.Type, m.ListNo, false))
	}
	for tier := range next {
		logCacheErr("bind list", store.UpdateScopeMembership(ctx, tier, m.Spec.Type, m.ListNo, true))
	}

	// A match-mode or language change alters how entries normalize, so
	// the pattern blob is recomputed from the live entries.
	if old.Spec.MatchMode != m.Spec.MatchMode ||
		old.Spec.LanguageScope != m.Spec.LanguageScope ||
		!equalStrings(old.Spec.LanguageCodes, m.Spec.LanguageCodes) {
		logCacheErr("reproject entries", s.reprojectEntries(ctx, m.ListNo, m.Spec))
	}
	return &MutationResult{}, nil
}

func (s *Service) deleteList(ctx context.Context, m Mutation) (*MutationResult, error) {
	old, err := s.catalog.GetList(ctx, m.ListNo)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.DeleteList(ctx, m.ListNo); err != nil {
		return nil, err
	}

	store := s.cache.Store()
	logCacheErr("clear list data", store.ClearListData(ctx, m.ListNo))
	for _, tier := range tiersFor(&old.Spec) {
		logCacheErr("unbind list", store.UpdateScopeMembership(ctx, tier, old.Spec.Type, m.ListNo, false))
	}
	return &MutationResult{}, nil
}

func (s *Service) setListStatus(ctx context.Context, m Mutation) (*MutationResult, error) {
	if err := s.catalog.SetListStatus(ctx, m.ListNo, m.Status); err != nil {
		return nil, err
	}
	logCacheErr("set status", s.cache.Store().SetListStatus(ctx, m.ListNo, m.Status))
	return &MutationResult{}, nil
}

func (s *Service) addEntry(ctx context.Context, m Mutation) (*MutationResult, error) {
	entry, err := s.catalog.AddEntry(ctx, m.ListNo, m.Text, m.Memo)
	if err != nil {
		return nil, err
	}
	logCacheErr("add pattern", s.mutatePatterns(ctx, m.ListNo, []string{entry.Text}, nil))
	return &MutationResult{Entry: entry}, nil
}

func (s *Service) updateEntry(ctx context.Context, m Mutation) (*MutationResult, error) {
	oldText, entry, err := s.catalog.UpdateEntry(ctx, m.EntryID, m.Text, m.Memo)
	if err != nil {
		return nil, err
	}
	logCacheErr("swap pattern", s.mutatePatterns(ctx, entry.ListNo, []string{entry.Text}, []string{oldText}))
	return &MutationResult{Entry: entry}, nil
}

func (s *Service) removeEntry(ctx context.Context, m Mutation) (*MutationResult, error) {
	listNo, text, err := s.catalog.RemoveEntry(ctx, m.EntryID)
	if err != nil {
		return nil, err
	}
	logCacheErr("remove pattern", s.mutatePatterns(ctx, listNo, nil, []string{text}))
	return &MutationResult{Removed: []string{text}}, nil
}

func (s *Service) addEntries(ctx context.Context, m Mutation) (*MutationResult, error) {
	entries, err := s.catalog.AddEntries(ctx, m.ListNo, m.Texts)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Text
	}
	logCacheErr("add patterns", s.mutatePatterns(ctx, m.ListNo, texts, nil))
	return &MutationResult{Entries: entries}, nil
}

func (s *Service) removeEntries(ctx context.Context, m Mutation) (*MutationResult, error) {
	removed, err := s.catalog.RemoveEntries(ctx, m.ListNo, m.Texts)
	if err != nil {
		return nil, err
	}
	logCacheErr("remove patterns", s.mutatePatterns(ctx, m.ListNo, nil, removed))
	return &MutationResult{Removed: removed}, nil
}

// mutatePatterns applies an incremental entry change to the list's cached
// pattern blob: decode, add and remove, one finalize, write back. A
// pattern absent on removal is logged and skipped, never an error.
func (s *Service) mutatePatterns(ctx context.Context, listNo string, add, remove []string) error {
	list, err := s.catalog.GetList(ctx, listNo)
	if err != nil {
		return err
	}
	hint := cache.LanguageHint(list.Spec.LanguageScope, list.Spec.LanguageCodes)

	ps, exists, err := s.cache.Store().GetListPatterns(ctx, listNo)
	if err != nil {
		return err
	}
	if !exists {
		// The list record never made it to the cache; write it whole.
		return s.reprojectEntries(ctx, listNo, &list.Spec)
	}

	for _, text := range remove {
		pattern := cache.EntryPattern(s.tok, list.Spec.MatchMode, text, hint)
		if !ps.Remove(pattern) {
			log.Printf("[service] list %s: pattern for %q absent, skipping removal", listNo, text)
		}
	}
	for _, text := range add {
		pattern := cache.EntryPattern(s.tok, list.Spec.MatchMode, text, hint)
		if pattern == "" {
			log.Printf("[service] list %s: entry %q yields no pattern, skipping", listNo, text)
			continue
		}
		ps.Add(pattern, text)
	}
	ps.Finalize()
	return s.cache.Store().PutListPatterns(ctx, listNo, ps)
}

// reprojectEntries rebuilds one list's pattern blob from its live catalog
// entries, and rewrites the full cache record.
func (s *Service) reprojectEntries(ctx context.Context, listNo string, spec *catalog.ListSpec) error {
	entries, err := s.catalog.Entries(ctx, listNo)
	if err != nil {
		return err
	}
	hint := cache.LanguageHint(spec.LanguageScope, spec.LanguageCodes)

	ps := patternset.New()
	for _, e := range entries {
		pattern := cache.EntryPattern(s.tok, spec.MatchMode, e.Text, hint)
		if pattern == "" {
			log.Printf("[service] list %s: entry %q yields no pattern, skipping", listNo, e.Text)
			continue
		}
		ps.Add(pattern, e.Text)
	}
	ps.Finalize()

	rec := recordFor(listNo, spec)
	rec.Patterns = ps
	return s.cache.Store().PutList(ctx, rec)
}

func (s *Service) setModerationSwitch(ctx context.Context, m Mutation) (*MutationResult, error) {
	if err := s.catalog.SetModerationSwitch(ctx, m.AppID, m.ChannelID, m.Enabled); err != nil {
		return nil, err
	}
	tier := cache.TierApp(m.AppID)
	if m.ChannelID != "" {
		tier = cache.TierAppChannel(m.AppID, m.ChannelID)
	}
	logCacheErr("set moderation flag", s.cache.Store().SetScopeFlag(ctx, tier, cache.FlagModeration, boolFlag(m.Enabled)))
	return &MutationResult{}, nil
}

func (s *Service) setFlag(ctx context.Context, m Mutation, field, value string, commit func(context.Context, string, bool) error) (*MutationResult, error) {
	if err := commit(ctx, m.AppID, m.Enabled); err != nil {
		return nil, err
	}
	logCacheErr("set flag "+field, s.cache.Store().SetScopeFlag(ctx, cache.TierApp(m.AppID), field, value))
	return &MutationResult{}, nil
}

func (s *Service) setModelThreshold(ctx context.Context, m Mutation) (*MutationResult, error) {
	if err := s.catalog.SetModelThreshold(ctx, m.AppID, m.Threshold); err != nil {
		return nil, err
	}
	logCacheErr("set threshold", s.cache.Store().SetScopeFlag(ctx,
		cache.TierApp(m.AppID), cache.FlagThreshold, formatThreshold(m.Threshold)))
	return &MutationResult{}, nil
}

func (s *Service) createApp(ctx context.Context, m Mutation) (*MutationResult, error) {
	if err := s.catalog.CreateApp(ctx, m.AppID, m.AppName); err != nil {
		return nil, err
	}
	logCacheErr("add app", s.cache.Store().AddApp(ctx, m.AppID))
	return &MutationResult{}, nil
}

func (s *Service) deleteApp(ctx context.Context, m Mutation) (*MutationResult, error) {
	if err := s.catalog.DeleteApp(ctx, m.AppID); err != nil {
		return nil, err
	}
	logCacheErr("remove app", s.cache.Store().RemoveApp(ctx, m.AppID))
	return &MutationResult{}, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
