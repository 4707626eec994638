// Package filter implements the moderation decision pipeline: sentinel
// denylist, whitelist short-circuit, ignore-list stripping, blacklist
// matching, and the optional AI escalation. Every evaluation reads one
// immutable cache snapshot and never touches the system of record.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/classifier"
	"github.com/riskguard/filter-app/internal/history"
	"github.com/riskguard/filter-app/internal/metrics"
	"github.com/riskguard/filter-app/internal/patternset"
	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/tokenizer"
)

// ErrUnknownApp rejects evaluation for apps missing from the registry.
// It is the one synchronous validation error on the read path.
var ErrUnknownApp = errors.New("filter: unknown app")

// Verdict is the moderation outcome.
type Verdict string

const (
	VerdictPass   Verdict = "PASS"
	VerdictReject Verdict = "REJECT"
)

// Span is a character-offset range inside the scanned source field, for
// UI highlighting.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ListMatch is the evidence of one list hitting one message field.
type ListMatch struct {
	No       string         `json:"no"`
	Name     string         `json:"name"`
	Field    rule.FieldName `json:"field"`
	RiskType rule.RiskType  `json:"risk_type"`
	Items    []string       `json:"items"`
	Spans    []Span         `json:"spans,omitempty"`
}

// Detail carries the structured evidence attached to a result.
type Detail struct {
	Matched      []ListMatch `json:"matched,omitempty"`
	FilteredText string      `json:"filtered_text,omitempty"`
	SentinelRule string      `json:"sentinel_rule,omitempty"`
}

// Result is the outcome of evaluating one message.
type Result struct {
	RequestID   string        `json:"request_id"`
	Verdict     Verdict       `json:"verdict"`
	RiskType    rule.RiskType `json:"risk_type"`
	Description string        `json:"description"`
	Detail      Detail        `json:"detail"`
}

// SnapshotSource hands out the current serving snapshot; *cache.Cache
// implements it.
type SnapshotSource interface {
	Snapshot() *cache.Snapshot
}

// AdChecker scores a text for ad/bait-account risk.
type AdChecker interface {
	Check(ctx context.Context, appID, accountID, text string, threshold float64) (classifier.Signal, error)
}

// Reviewer judges a text in conversation context.
type Reviewer interface {
	Review(ctx context.Context, appID, text string, hist []string) (classifier.Signal, error)
}

// Pipeline evaluates messages against a cache snapshot.
type Pipeline struct {
	snaps SnapshotSource
	tok   *tokenizer.Tokenizer
	hist  *history.Buffer
	ad    AdChecker
	llm   Reviewer

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistory attaches a recent-chat buffer for LLM context.
func WithHistory(b *history.Buffer) Option {
	return func(p *Pipeline) { p.hist = b }
}

// WithClassifiers attaches the AI escalation clients. Either may be nil.
func WithClassifiers(ad AdChecker, llm Reviewer) Option {
	return func(p *Pipeline) {
		p.ad = ad
		p.llm = llm
	}
}

// WithTokenizer overrides the default tokenizer.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(p *Pipeline) { p.tok = tok }
}

// WithRandSeed seeds the risk-type tie-break choice, for deterministic
// tests.
func WithRandSeed(seed int64) Option {
	return func(p *Pipeline) { p.rng = rand.New(rand.NewSource(seed)) }
}

// New builds a pipeline over a snapshot source.
func New(snaps SnapshotSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		snaps: snaps,
		tok:   tokenizer.New(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the full decision pipeline for one message. The message's
// free-text fields may be mutated by ignore-list stripping. Any panic in
// the matching steps is recovered and the verdict fails open to PASS;
// only the unknown-app validation is reported as an error.
func (p *Pipeline) Evaluate(ctx context.Context, msg *rule.Message) (res *Result, err error) {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	snap := p.snaps.Snapshot()
	if !snap.HasApp(msg.AppID) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, msg.AppID)
	}

	res = &Result{
		RequestID: msg.RequestID,
		Verdict:   VerdictPass,
		RiskType:  rule.RiskNormal,
	}
	originalText := msg.Text

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[filter] request %s: recovered %v, failing open", msg.RequestID, r)
			res = &Result{
				RequestID: msg.RequestID,
				Verdict:   VerdictPass,
				RiskType:  rule.RiskNormal,
			}
			err = nil
		}
		res.Description = res.RiskType.Description()
		if p.hist != nil && originalText != "" {
			p.hist.Add(msg.SpeakerKey(), history.Entry{Text: originalText, Ts: time.Now().Unix()})
		}
	}()

	p.evaluate(ctx, snap, msg, res)
	return res, nil
}

func (p *Pipeline) evaluate(ctx context.Context, snap *cache.Snapshot, msg *rule.Message, res *Result) {
	whitelist, ignore, blacklist := snap.Resolve(msg.AppID, msg.ChannelID)
	flags := snap.ResolveFlags(msg.AppID, msg.ChannelID)

	// The sentinel denylist is fed by the external watch system and is
	// deliberately not gated by the moderation switch.
	if msg.AccountID != "" {
		if label, ok := snap.Sentinel.LookupAccount(msg.AppID, msg.AccountID); ok {
			res.Verdict = VerdictReject
			res.RiskType = rule.RiskBlackAccount
			res.Detail.SentinelRule = label
			return
		}
	}
	if msg.IP != "" {
		if label, ok := snap.Sentinel.LookupIP(msg.AppID, msg.IP); ok {
			res.Verdict = VerdictReject
			res.RiskType = rule.RiskBlackIP
			res.Detail.SentinelRule = label
			return
		}
	}

	// Whitelist: any hit wins outright, blacklist and AI are skipped.
	for _, no := range whitelist {
		rec := snap.Lookup(no)
		if rec == nil || !rec.Active() {
			continue
		}
		for _, f := range rec.MatchRule.Fields(msg) {
			if f.Value == "" || !fieldAllowed(rec, f) {
				continue
			}
			hits := rec.Patterns.Scan(p.scanText(rec, f))
			if len(hits) == 0 {
				continue
			}
			res.Verdict = VerdictPass
			res.RiskType = rule.RiskNormal
			res.Detail.Matched = append(res.Detail.Matched, ListMatch{
				No:       rec.No,
				Name:     rec.Name,
				Field:    f.Name,
				RiskType: rule.RiskNormal,
				Items:    hitItems(hits),
			})
			return
		}
	}

	// Ignore lists strip their matched raw substrings out of the field
	// before the blacklist sees it. Repeated occurrences all go.
	for _, no := range ignore {
		rec := snap.Lookup(no)
		if rec == nil || !rec.Active() {
			continue
		}
		for _, f := range rec.MatchRule.Fields(msg) {
			if f.Value == "" || !fieldAllowed(rec, f) {
				continue
			}
			hits := rec.Patterns.Scan(p.scanText(rec, f))
			if len(hits) == 0 {
				continue
			}
			value := f.Value
			for _, item := range hitItems(hits) {
				value = replaceFold(value, item, "")
			}
			msg.SetField(f.Name, value)
		}
	}

	// Blacklists: collect every hit across all lists, then pick one risk
	// type among the matched lists at random so no list is starved.
	var matches []ListMatch
	for _, no := range blacklist {
		rec := snap.Lookup(no)
		if rec == nil || !rec.Active() {
			continue
		}
		for _, f := range rec.MatchRule.Fields(msg) {
			if f.Value == "" || !fieldAllowed(rec, f) {
				continue
			}
			hits := rec.Patterns.Scan(p.scanText(rec, f))
			if len(hits) == 0 {
				continue
			}
			items := hitItems(hits)
			matches = append(matches, ListMatch{
				No:       rec.No,
				Name:     rec.Name,
				Field:    f.Name,
				RiskType: rec.RiskType,
				Items:    items,
				Spans:    spans(f.Value, items),
			})
		}
	}
	if len(matches) > 0 {
		if flags.Moderation {
			res.Verdict = VerdictReject
			res.RiskType = p.pickRisk(matches)
			res.Detail.Matched = matches
			res.Detail.FilteredText = maskText(msg.Text, matches)
		} else {
			log.Printf("[filter] request %s: moderation off for %s/%s, suppressing %d blacklist hits",
				msg.RequestID, msg.AppID, msg.ChannelID, len(matches))
		}
	}

	if flags.AI {
		p.escalate(ctx, msg, res, flags.Threshold)
	}
}

// escalate consults the external classifiers. Either one saying reject
// overwrites the verdict and risk type; neither can downgrade a REJECT.
func (p *Pipeline) escalate(ctx context.Context, msg *rule.Message, res *Result, threshold float64) {
	if msg.Text == "" {
		return
	}
	if p.ad != nil {
		sig, err := p.ad.Check(ctx, msg.AppID, msg.AccountID, msg.Text, threshold)
		if err != nil {
			metrics.ClassifierErrorsTotal.WithLabelValues("ad").Inc()
			log.Printf("[filter] request %s: ad classifier: %v", msg.RequestID, err)
		} else if sig.Reject {
			res.Verdict = VerdictReject
			res.RiskType = rule.RiskAdLuring
			return
		}
	}
	if p.llm != nil {
		var window []string
		if p.hist != nil {
			window = p.hist.Texts(msg.SpeakerKey())
		}
		sig, err := p.llm.Review(ctx, msg.AppID, msg.Text, window)
		if err != nil {
			metrics.ClassifierErrorsTotal.WithLabelValues("llm").Inc()
			log.Printf("[filter] request %s: llm classifier: %v", msg.RequestID, err)
		} else if sig.Reject {
			res.Verdict = VerdictReject
			res.RiskType = rule.RiskAdLuring
		}
	}
}

// pickRisk chooses the displayed risk type uniformly among the matched
// lists. A pure nickname hit reports the dedicated nickname risk code.
func (p *Pipeline) pickRisk(matches []ListMatch) rule.RiskType {
	nicknameOnly := true
	for _, m := range matches {
		if m.Field != rule.FieldNickname {
			nicknameOnly = false
			break
		}
	}
	if nicknameOnly {
		return rule.RiskNickname
	}

	p.mu.Lock()
	i := p.rng.Intn(len(matches))
	p.mu.Unlock()
	return matches[i].RiskType
}

// fieldAllowed applies the list's language scope. Identifier fields are
// never gated; free-text fields need a prediction inside the list's
// configured codes when the scope is SPECIFIC.
func fieldAllowed(rec *cache.ListRecord, f rule.Field) bool {
	if !f.HasLanguage {
		return true
	}
	return rec.LanguageAllowed(f.Language)
}

// scanText returns the text the pattern set is scanned against: the
// lowered raw field for literal lists, the tokenized form for semantic.
func (p *Pipeline) scanText(rec *cache.ListRecord, f rule.Field) string {
	if rec.MatchMode == rule.MatchModeSemantic {
		return p.tok.Tokenize(f.Value, f.Language)
	}
	return strings.ToLower(f.Value)
}

// hitItems returns the distinct raw entry texts behind a scan's hits, in
// first-hit order.
func hitItems(hits []patternset.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	var items []string
	for _, h := range hits {
		if _, dup := seen[h.Raw]; dup {
			continue
		}
		seen[h.Raw] = struct{}{}
		items = append(items, h.Raw)
	}
	return items
}

// spans locates every case-insensitive occurrence of the matched items
// in the un-tokenized source field, as rune offsets.
func spans(field string, items []string) []Span {
	lower := strings.ToLower(field)
	var out []Span
	for _, item := range items {
		needle := strings.ToLower(item)
		if needle == "" {
			continue
		}
		from := 0
		for {
			i := strings.Index(lower[from:], needle)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, Span{
				Start: utf8.RuneCountInString(field[:start]),
				End:   utf8.RuneCountInString(field[:start+len(needle)]),
			})
			from = start + 1
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// maskText stars out the matched items inside the text field for the
// operator-facing filtered rendition. Only text-field matches contribute.
func maskText(text string, matches []ListMatch) string {
	masked := text
	for _, m := range matches {
		if m.Field != rule.FieldText {
			continue
		}
		for _, item := range m.Items {
			if item == "" {
				continue
			}
			stars := strings.Repeat("*", utf8.RuneCountInString(item))
			masked = replaceFold(masked, item, stars)
		}
	}
	return masked
}

// replaceFold is strings.ReplaceAll with ASCII-agnostic case folding on
// the needle, preserving the unmatched portions byte for byte.
func replaceFold(s, needle, repl string) string {
	lowerS := strings.ToLower(s)
	lowerN := strings.ToLower(needle)
	if lowerN == "" {
		return s
	}
	var b strings.Builder
	from := 0
	for {
		i := strings.Index(lowerS[from:], lowerN)
		if i < 0 {
			b.WriteString(s[from:])
			return b.String()
		}
		start := from + i
		b.WriteString(s[from:start])
		b.WriteString(repl)
		from = start + len(lowerN)
	}
}
