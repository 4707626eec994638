package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/rule"
)

// The dump methods read the full live configuration for cache rebuilds.
// Rows come back in a stable order so two dumps of unchanged data are
// identical.

// DumpApps returns every registered app id.
func (s *Store) DumpApps(ctx context.Context) ([]string, error) {
	const query = `
		SELECT app_id FROM apps
		WHERE deleted_at IS NULL
		ORDER BY app_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump apps: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return nil, fmt.Errorf("catalog: dump apps: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump apps: %w", err)
	}
	return out, nil
}

// DumpLists returns every live list with its live entry texts.
func (s *Store) DumpLists(ctx context.Context) ([]cache.ListDump, error) {
	const listQuery = `
		SELECT no, name, list_type, match_rule, match_mode, suggestion,
		       risk_type, status, language_scope, language_codes
		FROM rule_lists
		WHERE deleted_at IS NULL
		ORDER BY no`
	rows, err := s.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump lists: %w", err)
	}
	defer rows.Close()

	var dumps []cache.ListDump
	index := make(map[string]int)
	for rows.Next() {
		var (
			d         cache.ListDump
			langScope string
			codes     pq.StringArray
		)
		if err := rows.Scan(&d.No, &d.Name, &d.Type, &d.MatchRule, &d.MatchMode,
			&d.Suggestion, &d.RiskType, &d.Status, &langScope, &codes); err != nil {
			return nil, fmt.Errorf("catalog: dump lists: %w", err)
		}
		d.LanguageScope = rule.LanguageScope(langScope)
		d.LanguageCodes = []string(codes)
		index[d.No] = len(dumps)
		dumps = append(dumps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump lists: %w", err)
	}

	const entryQuery = `
		SELECT e.list_no, e.text
		FROM rule_entries e
		JOIN rule_lists l ON l.no = e.list_no AND l.deleted_at IS NULL
		WHERE e.deleted_at IS NULL
		ORDER BY e.list_no, e.text`
	erows, err := s.db.QueryContext(ctx, entryQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump entries: %w", err)
	}
	defer erows.Close()

	for erows.Next() {
		var no, text string
		if err := erows.Scan(&no, &text); err != nil {
			return nil, fmt.Errorf("catalog: dump entries: %w", err)
		}
		if i, ok := index[no]; ok {
			dumps[i].Entries = append(dumps[i].Entries, text)
		}
	}
	if err := erows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump entries: %w", err)
	}
	return dumps, nil
}

// DumpBindings returns every live binding, including one synthetic
// GLOBAL binding per GLOBAL-scoped list, since those carry no rows of
// their own.
func (s *Store) DumpBindings(ctx context.Context) ([]cache.BindingDump, error) {
	const globalQuery = `
		SELECT no FROM rule_lists
		WHERE scope = 'GLOBAL' AND deleted_at IS NULL
		ORDER BY no`
	rows, err := s.db.QueryContext(ctx, globalQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump bindings: %w", err)
	}
	defer rows.Close()

	var out []cache.BindingDump
	for rows.Next() {
		var no string
		if err := rows.Scan(&no); err != nil {
			return nil, fmt.Errorf("catalog: dump bindings: %w", err)
		}
		out = append(out, cache.BindingDump{ListNo: no, Scope: rule.ScopeGlobal})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump bindings: %w", err)
	}

	const boundQuery = `
		SELECT b.list_no, b.app_id, b.channel_id
		FROM bindings b
		JOIN rule_lists l ON l.no = b.list_no AND l.deleted_at IS NULL
		WHERE b.deleted_at IS NULL
		ORDER BY b.list_no, b.app_id, b.channel_id`
	brows, err := s.db.QueryContext(ctx, boundQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump bindings: %w", err)
	}
	defer brows.Close()

	for brows.Next() {
		var (
			no  string
			app sql.NullString
			ch  sql.NullString
		)
		if err := brows.Scan(&no, &app, &ch); err != nil {
			return nil, fmt.Errorf("catalog: dump bindings: %w", err)
		}
		d := cache.BindingDump{ListNo: no, AppID: app.String, ChannelID: ch.String}
		if ch.Valid {
			d.Scope = rule.ScopeAppChannel
		} else {
			d.Scope = rule.ScopeApp
		}
		out = append(out, d)
	}
	if err := brows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump bindings: %w", err)
	}
	return out, nil
}

// DumpFlags returns every live feature-switch row as a scope-tier flag
// field in its cache representation.
func (s *Store) DumpFlags(ctx context.Context) ([]cache.FlagDump, error) {
	var out []cache.FlagDump

	const acQuery = `
		SELECT app_id, channel_id, enabled FROM ac_switches
		WHERE deleted_at IS NULL
		ORDER BY app_id, channel_id`
	rows, err := s.db.QueryContext(ctx, acQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			app, ch string
			on      bool
		)
		if err := rows.Scan(&app, &ch, &on); err != nil {
			return nil, fmt.Errorf("catalog: dump flags: %w", err)
		}
		d := cache.FlagDump{
			AppID: app, ChannelID: ch,
			Field: cache.FlagModeration, Value: boolFlag(on),
		}
		if ch == "" {
			d.Scope = rule.ScopeApp
		} else {
			d.Scope = rule.ScopeAppChannel
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump flags: %w", err)
	}

	const aiQuery = `
		SELECT app_id, enabled, vendor_enabled FROM ai_switches
		WHERE deleted_at IS NULL
		ORDER BY app_id`
	arows, err := s.db.QueryContext(ctx, aiQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump flags: %w", err)
	}
	defer arows.Close()

	for arows.Next() {
		var (
			app        string
			ai, vendor bool
		)
		if err := arows.Scan(&app, &ai, &vendor); err != nil {
			return nil, fmt.Errorf("catalog: dump flags: %w", err)
		}
		out = append(out,
			cache.FlagDump{Scope: rule.ScopeApp, AppID: app, Field: cache.FlagAI, Value: boolFlag(ai)},
			cache.FlagDump{Scope: rule.ScopeApp, AppID: app, Field: cache.FlagVendor, Value: boolFlag(vendor)},
		)
	}
	if err := arows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump flags: %w", err)
	}

	const thresholdQuery = `
		SELECT app_id, threshold FROM model_thresholds
		WHERE deleted_at IS NULL
		ORDER BY app_id`
	trows, err := s.db.QueryContext(ctx, thresholdQuery)
	if err != nil {
		return nil, fmt.Errorf("catalog: dump flags: %w", err)
	}
	defer trows.Close()

	for trows.Next() {
		var (
			app       string
			threshold float64
		)
		if err := trows.Scan(&app, &threshold); err != nil {
			return nil, fmt.Errorf("catalog: dump flags: %w", err)
		}
		out = append(out, cache.FlagDump{
			Scope: rule.ScopeApp, AppID: app,
			Field: cache.FlagThreshold,
			Value: strconv.FormatFloat(threshold, 'g', -1, 64),
		})
	}
	if err := trows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: dump flags: %w", err)
	}
	return out, nil
}

func boolFlag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
