package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/riskguard/filter-app/internal/rule"
)

// Store manages the rule configuration in PostgreSQL. All deletes are
// soft: rows gain a deleted_at and every read filters on it, so a list
// `no` is never reused.
type Store struct {
	db *sql.DB
}

// NewStore creates a catalog store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// CreateList validates the spec, assigns a fresh no, and inserts the
// list row together with its binding rows in one transaction.
func (s *Store) CreateList(ctx context.Context, spec ListSpec) (*List, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	no := uuid.NewString()
	const insertList = `
		INSERT INTO rule_lists
			(no, name, list_type, match_rule, match_mode, suggestion, risk_type,
			 status, scope, language_scope, language_codes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	var id int64
	err = tx.QueryRowContext(ctx, insertList,
		no, spec.Name, int(spec.Type), int(spec.MatchRule), int(spec.MatchMode),
		int(spec.Suggestion), int(spec.RiskType), int(spec.Status),
		string(spec.Scope), string(spec.LanguageScope), pq.Array(dedup(spec.LanguageCodes)),
	).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: list name %q", ErrDuplicate, spec.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: insert list: %w", err)
	}

	if err := insertBindings(ctx, tx, no, spec.bindings()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: commit: %w", err)
	}
	return &List{ID: id, No: no, Spec: spec}, nil
}

// UpdateList validates and rewrites a list's attributes. Bindings are
// fully replaced: the old rows are soft-deleted and the spec's set is
// inserted fresh.
func (s *Store) UpdateList(ctx context.Context, no string, spec ListSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	const updateList = `
		UPDATE rule_lists
		SET name = $2, list_type = $3, match_rule = $4, match_mode = $5,
		    suggestion = $6, risk_type = $7, status = $8, scope = $9,
		    language_scope = $10, language_codes = $11, updated_at = NOW()
		WHERE no = $1 AND deleted_at IS NULL`

	res, err := tx.ExecContext(ctx, updateList,
		no, spec.Name, int(spec.Type), int(spec.MatchRule), int(spec.MatchMode),
		int(spec.Suggestion), int(spec.RiskType), int(spec.Status),
		string(spec.Scope), string(spec.LanguageScope), pq.Array(dedup(spec.LanguageCodes)),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: list name %q", ErrDuplicate, spec.Name)
	}
	if err != nil {
		return fmt.Errorf("catalog: update list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: list %s", ErrNotFound, no)
	}

	const dropBindings = `
		UPDATE bindings SET deleted_at = NOW()
		WHERE list_no = $1 AND deleted_at IS NULL`
	if _, err := tx.ExecContext(ctx, dropBindings, no); err != nil {
		return fmt.Errorf("catalog: replace bindings: %w", err)
	}
	if err := insertBindings(ctx, tx, no, spec.bindings()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

func insertBindings(ctx context.Context, tx *sql.Tx, no string, bs []binding) error {
	const insert = `
		INSERT INTO bindings (list_no, app_id, channel_id)
		VALUES ($1, $2, $3)`
	for _, b := range bs {
		app := sql.NullString{String: b.AppID, Valid: b.AppID != ""}
		ch := sql.NullString{String: b.ChannelID, Valid: b.ChannelID != ""}
		if _, err := tx.ExecContext(ctx, insert, no, app, ch); err != nil {
			return fmt.Errorf("catalog: insert binding: %w", err)
		}
	}
	return nil
}

// SetListStatus toggles a list on or off without touching its content.
func (s *Store) SetListStatus(ctx context.Context, no string, status rule.Status) error {
	const query = `
		UPDATE rule_lists SET status = $2, updated_at = NOW()
		WHERE no = $1 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, no, int(status))
	if err != nil {
		return fmt.Errorf("catalog: set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: list %s", ErrNotFound, no)
	}
	return nil
}

// DeleteList tombstones a list together with its entries and bindings.
func (s *Store) DeleteList(ctx context.Context, no string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	const dropList = `
		UPDATE rule_lists SET deleted_at = NOW()
		WHERE no = $1 AND deleted_at IS NULL`
	res, err := tx.ExecContext(ctx, dropList, no)
	if err != nil {
		return fmt.Errorf("catalog: delete list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: list %s", ErrNotFound, no)
	}

	for _, table := range []string{"rule_entries", "bindings"} {
		query := fmt.Sprintf(
			"UPDATE %s SET deleted_at = NOW() WHERE list_no = $1 AND deleted_at IS NULL", table)
		if _, err := tx.ExecContext(ctx, query, no); err != nil {
			return fmt.Errorf("catalog: delete %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// GetList reads one live list row.
func (s *Store) GetList(ctx context.Context, no string) (*List, error) {
	const query = `
		SELECT id, name, list_type, match_rule, match_mode, suggestion,
		       risk_type, status, scope, language_scope, language_codes
		FROM rule_lists
		WHERE no = $1 AND deleted_at IS NULL`

	var (
		l         List
		codes     pq.StringArray
		scope     string
		langScope string
	)
	err := s.db.QueryRowContext(ctx, query, no).Scan(
		&l.ID, &l.Spec.Name, &l.Spec.Type, &l.Spec.MatchRule, &l.Spec.MatchMode,
		&l.Spec.Suggestion, &l.Spec.RiskType, &l.Spec.Status,
		&scope, &langScope, &codes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: list %s", ErrNotFound, no)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get list: %w", err)
	}
	l.No = no
	l.Spec.Scope = rule.Scope(scope)
	l.Spec.LanguageScope = rule.LanguageScope(langScope)
	l.Spec.LanguageCodes = []string(codes)
	return &l, nil
}

// AddEntry inserts one raw entry under a list. Duplicate text within the
// list's live entries is rejected.
func (s *Store) AddEntry(ctx context.Context, listNo, text, memo string) (*Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: entry text required", ErrInvalid)
	}
	if _, err := s.GetList(ctx, listNo); err != nil {
		return nil, err
	}

	const insert = `
		INSERT INTO rule_entries (list_no, text, memo)
		VALUES ($1, $2, $3)
		RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, insert, listNo, text, memo).Scan(&id)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: entry %q in list %s", ErrDuplicate, text, listNo)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: insert entry: %w", err)
	}
	return &Entry{ID: id, ListNo: listNo, Text: text, Memo: memo}, nil
}

// AddEntries inserts a batch of raw entries under a list. The batch is
// deduplicated first; a missing list or a clash with an existing live
// entry rejects the whole batch.
func (s *Store) AddEntries(ctx context.Context, listNo string, texts []string) ([]Entry, error) {
	texts = dedup(texts)
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty entry batch", ErrInvalid)
	}
	if _, err := s.GetList(ctx, listNo); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	const insert = `
		INSERT INTO rule_entries (list_no, text, memo)
		VALUES ($1, $2, '')
		RETURNING id`
	out := make([]Entry, 0, len(texts))
	for _, text := range texts {
		var id int64
		err := tx.QueryRowContext(ctx, insert, listNo, text).Scan(&id)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: entry %q in list %s", ErrDuplicate, text, listNo)
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: insert entry: %w", err)
		}
		out = append(out, Entry{ID: id, ListNo: listNo, Text: text})
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: commit: %w", err)
	}
	return out, nil
}

// UpdateEntry rewrites one entry's text and memo, returning the previous
// text so the caller can retire its cached pattern.
func (s *Store) UpdateEntry(ctx context.Context, id int64, text, memo string) (oldText string, entry *Entry, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, fmt.Errorf("%w: entry text required", ErrInvalid)
	}

	const query = `
		UPDATE rule_entries
		SET text = $2, memo = $3, updated_at = NOW()
		FROM (SELECT id AS old_id, list_no, text AS old_text
		      FROM rule_entries WHERE id = $1 AND deleted_at IS NULL) prev
		WHERE rule_entries.id = prev.old_id
		RETURNING prev.list_no, prev.old_text`

	var listNo string
	err = s.db.QueryRowContext(ctx, query, id, text, memo).Scan(&listNo, &oldText)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w: entry %d", ErrNotFound, id)
	}
	if isUniqueViolation(err) {
		return "", nil, fmt.Errorf("%w: entry %q", ErrDuplicate, text)
	}
	if err != nil {
		return "", nil, fmt.Errorf("catalog: update entry: %w", err)
	}
	return oldText, &Entry{ID: id, ListNo: listNo, Text: text, Memo: memo}, nil
}

// RemoveEntry tombstones one entry, returning its list and text so the
// caller can retire the cached pattern.
func (s *Store) RemoveEntry(ctx context.Context, id int64) (listNo, text string, err error) {
	const query = `
		UPDATE rule_entries SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING list_no, text`
	err = s.db.QueryRowContext(ctx, query, id).Scan(&listNo, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("%w: entry %d", ErrNotFound, id)
	}
	if err != nil {
		return "", "", fmt.Errorf("catalog: remove entry: %w", err)
	}
	return listNo, text, nil
}

// RemoveEntries tombstones a batch of entries by text under one list,
// returning the texts actually removed. A missing list rejects the batch.
func (s *Store) RemoveEntries(ctx context.Context, listNo string, texts []string) ([]string, error) {
	texts = dedup(texts)
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty entry batch", ErrInvalid)
	}
	if _, err := s.GetList(ctx, listNo); err != nil {
		return nil, err
	}

	const query = `
		UPDATE rule_entries SET deleted_at = NOW()
		WHERE list_no = $1 AND text = ANY($2) AND deleted_at IS NULL
		RETURNING text`
	rows, err := s.db.QueryContext(ctx, query, listNo, pq.Array(texts))
	if err != nil {
		return nil, fmt.Errorf("catalog: remove entries: %w", err)
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("catalog: remove entries: %w", err)
		}
		removed = append(removed, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: remove entries: %w", err)
	}
	return removed, nil
}

// Entries returns the live entry texts of a list.
func (s *Store) Entries(ctx context.Context, listNo string) ([]Entry, error) {
	const query = `
		SELECT id, text, memo FROM rule_entries
		WHERE list_no = $1 AND deleted_at IS NULL
		ORDER BY text`
	rows, err := s.db.QueryContext(ctx, query, listNo)
	if err != nil {
		return nil, fmt.Errorf("catalog: entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{ListNo: listNo}
		if err := rows.Scan(&e.ID, &e.Text, &e.Memo); err != nil {
			return nil, fmt.Errorf("catalog: entries: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: entries: %w", err)
	}
	return out, nil
}

// SetModerationSwitch upserts the per app+channel moderation gate.
func (s *Store) SetModerationSwitch(ctx context.Context, appID, channelID string, on bool) error {
	if appID == "" {
		return fmt.Errorf("%w: app id required", ErrInvalid)
	}
	const query = `
		INSERT INTO ac_switches (app_id, channel_id, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (app_id, channel_id)
		DO UPDATE SET enabled = $3, updated_at = NOW(), deleted_at = NULL`
	if _, err := s.db.ExecContext(ctx, query, appID, channelID, on); err != nil {
		return fmt.Errorf("catalog: set moderation switch: %w", err)
	}
	return nil
}

// SetAISwitch upserts the per-app AI escalation gate.
func (s *Store) SetAISwitch(ctx context.Context, appID string, on bool) error {
	if appID == "" {
		return fmt.Errorf("%w: app id required", ErrInvalid)
	}
	const query = `
		INSERT INTO ai_switches (app_id, enabled)
		VALUES ($1, $2)
		ON CONFLICT (app_id)
		DO UPDATE SET enabled = $2, updated_at = NOW(), deleted_at = NULL`
	if _, err := s.db.ExecContext(ctx, query, appID, on); err != nil {
		return fmt.Errorf("catalog: set ai switch: %w", err)
	}
	return nil
}

// SetVendorSwitch upserts the per-app vendor moderation gate.
func (s *Store) SetVendorSwitch(ctx context.Context, appID string, on bool) error {
	if appID == "" {
		return fmt.Errorf("%w: app id required", ErrInvalid)
	}
	const query = `
		INSERT INTO ai_switches (app_id, vendor_enabled)
		VALUES ($1, $2)
		ON CONFLICT (app_id)
		DO UPDATE SET vendor_enabled = $2, updated_at = NOW(), deleted_at = NULL`
	if _, err := s.db.ExecContext(ctx, query, appID, on); err != nil {
		return fmt.Errorf("catalog: set vendor switch: %w", err)
	}
	return nil
}

// SetModelThreshold upserts the per-app classifier score threshold.
func (s *Store) SetModelThreshold(ctx context.Context, appID string, threshold float64) error {
	if appID == "" {
		return fmt.Errorf("%w: app id required", ErrInvalid)
	}
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold %v out of [0,1]", ErrInvalid, threshold)
	}
	const query = `
		INSERT INTO model_thresholds (app_id, threshold)
		VALUES ($1, $2)
		ON CONFLICT (app_id)
		DO UPDATE SET threshold = $2, updated_at = NOW(), deleted_at = NULL`
	if _, err := s.db.ExecContext(ctx, query, appID, threshold); err != nil {
		return fmt.Errorf("catalog: set model threshold: %w", err)
	}
	return nil
}

// CreateApp registers an app id.
func (s *Store) CreateApp(ctx context.Context, appID, name string) error {
	if appID == "" {
		return fmt.Errorf("%w: app id required", ErrInvalid)
	}
	const query = `INSERT INTO apps (app_id, name) VALUES ($1, $2)`
	_, err := s.db.ExecContext(ctx, query, appID, name)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: app %s", ErrDuplicate, appID)
	}
	if err != nil {
		return fmt.Errorf("catalog: create app: %w", err)
	}
	return nil
}

// DeleteApp tombstones an app registration.
func (s *Store) DeleteApp(ctx context.Context, appID string) error {
	const query = `
		UPDATE apps SET deleted_at = NOW()
		WHERE app_id = $1 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, appID)
	if err != nil {
		return fmt.Errorf("catalog: delete app: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: app %s", ErrNotFound, appID)
	}
	return nil
}
