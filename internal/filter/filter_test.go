package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/classifier"
	"github.com/riskguard/filter-app/internal/history"
	"github.com/riskguard/filter-app/internal/patternset"
	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/tokenizer"
)

// fixedSnapshot hands out one pre-built snapshot.
type fixedSnapshot struct {
	snap *cache.Snapshot
}

func (f fixedSnapshot) Snapshot() *cache.Snapshot { return f.snap }

type snapshotBuilder struct {
	snap *cache.Snapshot
	tok  *tokenizer.Tokenizer
}

func newSnapshotBuilder() *snapshotBuilder {
	b := &snapshotBuilder{snap: cache.NewSnapshot(), tok: tokenizer.New()}
	b.snap.Apps["game1"] = struct{}{}
	return b
}

func (b *snapshotBuilder) addList(no string, t rule.ListType, mr rule.MatchRule, mm rule.MatchMode, risk rule.RiskType, entries ...string) *cache.ListRecord {
	ps := patternset.New()
	for _, e := range entries {
		ps.Add(cache.EntryPattern(b.tok, mm, e, ""), e)
	}
	ps.Finalize()
	rec := &cache.ListRecord{
		No:            no,
		Name:          "list " + no,
		Type:          t,
		MatchRule:     mr,
		MatchMode:     mm,
		RiskType:      risk,
		Status:        rule.StatusOn,
		LanguageScope: rule.LanguageScopeAll,
		Patterns:      ps,
	}
	b.snap.Lists[no] = rec
	b.bind(cache.TierGlobal, t, no)
	return rec
}

func (b *snapshotBuilder) bind(tier string, t rule.ListType, no string) {
	rec, ok := b.snap.Scopes[tier]
	if !ok {
		rec = &cache.ScopeRecord{Lists: make(map[rule.ListType][]string)}
		b.snap.Scopes[tier] = rec
	}
	rec.Lists[t] = append(rec.Lists[t], no)
}

func newTestPipeline(b *snapshotBuilder, opts ...Option) *Pipeline {
	opts = append([]Option{WithRandSeed(1)}, opts...)
	return New(fixedSnapshot{b.snap}, opts...)
}

func msg(text string) *rule.Message {
	return &rule.Message{
		AppID:     "game1",
		ChannelID: "lobby",
		AccountID: "acct1",
		Text:      text,
	}
}

func TestEvaluate_UnknownApp(t *testing.T) {
	p := newTestPipeline(newSnapshotBuilder())

	m := msg("hello")
	m.AppID = "unregistered"
	_, err := p.Evaluate(context.Background(), m)
	if !errors.Is(err, ErrUnknownApp) {
		t.Fatalf("err = %v, want ErrUnknownApp", err)
	}
}

func TestEvaluate_DefaultPass(t *testing.T) {
	p := newTestPipeline(newSnapshotBuilder())

	res, err := p.Evaluate(context.Background(), msg("perfectly fine message"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass || res.RiskType != rule.RiskNormal {
		t.Errorf("verdict = %s/%d, want PASS/normal", res.Verdict, res.RiskType)
	}
	if res.RequestID == "" {
		t.Error("request id must be assigned")
	}
}

func TestEvaluate_BlacklistRejects(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "bad")
	p := newTestPipeline(b)

	res, err := p.Evaluate(context.Background(), msg("this is Bad indeed"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject || res.RiskType != rule.RiskAbuse {
		t.Fatalf("verdict = %s/%d, want REJECT/abuse", res.Verdict, res.RiskType)
	}
	if len(res.Detail.Matched) != 1 || res.Detail.Matched[0].Items[0] != "bad" {
		t.Errorf("matched = %+v", res.Detail.Matched)
	}
	if len(res.Detail.Matched[0].Spans) != 1 || res.Detail.Matched[0].Spans[0].Start != 8 {
		t.Errorf("spans = %+v, want the offset of \"Bad\"", res.Detail.Matched[0].Spans)
	}
	if res.Detail.FilteredText != "this is *** indeed" {
		t.Errorf("FilteredText = %q", res.Detail.FilteredText)
	}
}

func TestEvaluate_WhitelistShortCircuits(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("wl", rule.ListTypeWhitelist, rule.MatchText, rule.MatchModeLiteral, rule.RiskNormal, "hello")
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "hello world")
	p := newTestPipeline(b)

	res, err := p.Evaluate(context.Background(), msg("hello world"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass || res.RiskType != rule.RiskNormal {
		t.Fatalf("verdict = %s/%d, whitelist must win over blacklist overlap", res.Verdict, res.RiskType)
	}
	if len(res.Detail.Matched) != 1 || res.Detail.Matched[0].No != "wl" {
		t.Errorf("matched = %+v, want whitelist evidence", res.Detail.Matched)
	}
}

func TestEvaluate_IgnoreStrippingPrecedesBlacklist(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("ig", rule.ListTypeIgnore, rule.MatchText, rule.MatchModeLiteral, rule.RiskNormal, "xx")
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "bad")
	p := newTestPipeline(b)

	m := msg("xxbad")
	res, err := p.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject {
		t.Fatalf("verdict = %s, stripping xx must still expose bad", res.Verdict)
	}
	if m.Text != "bad" {
		t.Errorf("message text after stripping = %q, want %q", m.Text, "bad")
	}
}

func TestEvaluate_IgnoreStripsAllOccurrences(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("ig", rule.ListTypeIgnore, rule.MatchText, rule.MatchModeLiteral, rule.RiskNormal, "zz")
	p := newTestPipeline(b)

	m := msg("zzhellozz zzagain")
	if _, err := p.Evaluate(context.Background(), m); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if m.Text != "hello again" {
		t.Errorf("stripped text = %q, want every occurrence removed", m.Text)
	}
}

func TestEvaluate_IgnoreStripsAnyCase(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("ig", rule.ListTypeIgnore, rule.MatchText, rule.MatchModeLiteral, rule.RiskNormal, "badge")
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "bad")
	p := newTestPipeline(b)

	m := msg("Badge")
	res, err := p.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if m.Text != "" {
		t.Errorf("stripped text = %q, want empty", m.Text)
	}
	if res.Verdict != VerdictPass {
		t.Errorf("verdict = %s, want PASS after strip", res.Verdict)
	}
}

func TestEvaluate_LanguageGating(t *testing.T) {
	b := newSnapshotBuilder()
	rec := b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "badword")
	rec.LanguageScope = rule.LanguageScopeSpecific
	rec.LanguageCodes = []string{"ja"}
	p := newTestPipeline(b)

	m := msg("contains badword here")
	m.Languages.Text = "zh"
	res, err := p.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass {
		t.Fatalf("verdict = %s, a ja-only list must not match a zh field", res.Verdict)
	}

	m = msg("contains badword here")
	m.Languages.Text = "ja"
	res, err = p.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject {
		t.Errorf("verdict = %s, the ja field must match", res.Verdict)
	}

	// No prediction at all also skips a SPECIFIC list.
	m = msg("contains badword here")
	res, err = p.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass {
		t.Errorf("verdict = %s, an unpredicted field must not match a SPECIFIC list", res.Verdict)
	}
}

func TestEvaluate_SemanticMatchesVariants(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeSemantic, rule.RiskAd, "Buy Gold")
	p := newTestPipeline(b)

	res, err := p.Evaluate(context.Background(), msg("please BUY   gold now"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject {
		t.Errorf("verdict = %s, tokenized variant must match", res.Verdict)
	}
}

func TestEvaluate_SentinelOverridesEverything(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("wl", rule.ListTypeWhitelist, rule.MatchText, rule.MatchModeLiteral, rule.RiskNormal, "hello")
	b.snap.Sentinel.Accounts = map[string][]string{"game1_acct1": {"bot-farm"}}
	p := newTestPipeline(b)

	res, err := p.Evaluate(context.Background(), msg("hello"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject || res.RiskType != rule.RiskBlackAccount {
		t.Fatalf("verdict = %s/%d, want REJECT/black-account", res.Verdict, res.RiskType)
	}
	if res.Detail.SentinelRule != "bot-farm" {
		t.Errorf("SentinelRule = %q", res.Detail.SentinelRule)
	}
}

func TestEvaluate_SentinelIP(t *testing.T) {
	b := newSnapshotBuilder()
	b.snap.Sentinel.IPs = map[string][]string{"game1_10.0.0.9": {"proxy-pool"}}
	p := newTestPipeline(b)

	m := msg("anything")
	m.IP = "10.0.0.9"
	res, err := p.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject || res.RiskType != rule.RiskBlackIP {
		t.Errorf("verdict = %s/%d, want REJECT/black-ip", res.Verdict, res.RiskType)
	}
}

func TestEvaluate_ModerationOffSuppressesBlacklist(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "bad")
	off := false
	b.snap.Scopes[cache.TierApp("game1")] = &cache.ScopeRecord{
		Lists:      map[rule.ListType][]string{},
		Moderation: &off,
	}
	p := newTestPipeline(b)

	res, err := p.Evaluate(context.Background(), msg("bad"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass {
		t.Errorf("verdict = %s, a disabled gate silently drops blacklist hits", res.Verdict)
	}
	if len(res.Detail.Matched) != 0 {
		t.Errorf("matched = %+v, suppressed hits must not surface", res.Detail.Matched)
	}
}

func TestEvaluate_NicknameOnlyHitReportsNicknameRisk(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchNickname, rule.MatchModeLiteral, rule.RiskAbuse, "rudename")
	p := newTestPipeline(b)

	m := msg("clean text")
	m.Nickname = "RudeName99"
	res, err := p.Evaluate(context.Background(), m)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject || res.RiskType != rule.RiskNickname {
		t.Errorf("verdict = %s/%d, want REJECT/nickname-risk", res.Verdict, res.RiskType)
	}
}

func TestEvaluate_RiskChoiceIsSeeded(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("bl1", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "bad")
	b.addList("bl2", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAd, "bad")

	first := newTestPipeline(b)
	res1, err := first.Evaluate(context.Background(), msg("bad"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second := newTestPipeline(b)
	res2, err := second.Evaluate(context.Background(), msg("bad"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if res1.RiskType != res2.RiskType {
		t.Errorf("same seed produced different risk types: %d vs %d", res1.RiskType, res2.RiskType)
	}
	if res1.RiskType != rule.RiskAbuse && res1.RiskType != rule.RiskAd {
		t.Errorf("risk type %d is not one of the matched lists'", res1.RiskType)
	}
	if len(res1.Detail.Matched) != 2 {
		t.Errorf("matched = %+v, both lists must report", res1.Detail.Matched)
	}
}

// fakeSignal implements both classifier interfaces with canned answers.
type fakeSignal struct {
	reject bool
	err    error
	calls  int
}

func (f *fakeSignal) Check(context.Context, string, string, string, float64) (classifier.Signal, error) {
	f.calls++
	return classifier.Signal{Reject: f.reject}, f.err
}

func (f *fakeSignal) Review(context.Context, string, string, []string) (classifier.Signal, error) {
	f.calls++
	return classifier.Signal{Reject: f.reject}, f.err
}

func aiOn(b *snapshotBuilder) {
	on := true
	b.snap.Scopes[cache.TierApp("game1")] = &cache.ScopeRecord{
		Lists: map[rule.ListType][]string{},
		AI:    &on,
	}
}

func TestEvaluate_AIEscalatesPass(t *testing.T) {
	b := newSnapshotBuilder()
	aiOn(b)
	ad := &fakeSignal{reject: true}
	p := newTestPipeline(b, WithClassifiers(ad, nil))

	res, err := p.Evaluate(context.Background(), msg("looks clean but is bait"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject || res.RiskType != rule.RiskAdLuring {
		t.Errorf("verdict = %s/%d, want REJECT/ad-luring", res.Verdict, res.RiskType)
	}
	if ad.calls != 1 {
		t.Errorf("ad classifier calls = %d", ad.calls)
	}
}

func TestEvaluate_AINeverDowngradesReject(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "bad")
	aiOn(b)
	clean := &fakeSignal{reject: false}
	p := newTestPipeline(b, WithClassifiers(clean, clean))

	res, err := p.Evaluate(context.Background(), msg("bad"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictReject {
		t.Errorf("verdict = %s, a clean AI signal must not downgrade a REJECT", res.Verdict)
	}
}

func TestEvaluate_AIErrorIsNoSignal(t *testing.T) {
	b := newSnapshotBuilder()
	aiOn(b)
	broken := &fakeSignal{err: errors.New("timeout")}
	p := newTestPipeline(b, WithClassifiers(broken, broken))

	res, err := p.Evaluate(context.Background(), msg("anything"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass {
		t.Errorf("verdict = %s, classifier errors are no-signal", res.Verdict)
	}
}

func TestEvaluate_AIOffSkipsClassifiers(t *testing.T) {
	b := newSnapshotBuilder()
	ad := &fakeSignal{reject: true}
	p := newTestPipeline(b, WithClassifiers(ad, nil))

	res, err := p.Evaluate(context.Background(), msg("anything"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass || ad.calls != 0 {
		t.Errorf("verdict = %s, calls = %d; default AI=off must skip classifiers", res.Verdict, ad.calls)
	}
}

func TestEvaluate_HistoryRecordsInspectedText(t *testing.T) {
	b := newSnapshotBuilder()
	hist := history.NewBuffer()
	p := newTestPipeline(b, WithHistory(hist))

	for _, text := range []string{"one", "two", "three"} {
		if _, err := p.Evaluate(context.Background(), msg(text)); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}
	got := hist.Texts("game1_acct1")
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Errorf("history = %v", got)
	}
}

// panicChecker blows up mid-pipeline to exercise the recover boundary.
type panicChecker struct{}

func (panicChecker) Check(context.Context, string, string, string, float64) (classifier.Signal, error) {
	panic("classifier went sideways")
}

func TestEvaluate_FailsOpenOnPanic(t *testing.T) {
	b := newSnapshotBuilder()
	b.addList("bl", rule.ListTypeBlacklist, rule.MatchText, rule.MatchModeLiteral, rule.RiskAbuse, "bad")
	aiOn(b)
	p := newTestPipeline(b, WithClassifiers(panicChecker{}, nil))

	res, err := p.Evaluate(context.Background(), msg("bad"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Verdict != VerdictPass || res.RiskType != rule.RiskNormal {
		t.Errorf("verdict = %s/%d, pipeline must fail open to PASS", res.Verdict, res.RiskType)
	}
	if res.Description == "" {
		t.Error("description must still be filled on the recovered path")
	}
}
