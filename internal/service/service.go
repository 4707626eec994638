// Package service wires the catalog, the serving cache, and the filter
// pipeline into the operations the outer surfaces call: Evaluate on the
// read path, ApplyMutation on the write path, and the Reconcile/Rebuild
// maintenance entry points.
package service

import (
	"context"
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/catalog"
	"github.com/riskguard/filter-app/internal/filter"
	"github.com/riskguard/filter-app/internal/metrics"
	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/tokenizer"
)

// Reconciler cadence. The jitter sleep desynchronizes multiple service
// instances against the cache backend.
const (
	DefaultReconcileInterval = 5 * time.Minute
	maxReconcileJitter       = 5 * time.Second
)

// Service is the orchestrator around one catalog and one serving cache.
type Service struct {
	catalog  *catalog.Store
	cache    *cache.Cache
	pipeline *filter.Pipeline
	tok      *tokenizer.Tokenizer
	interval time.Duration
}

// New builds a service. A zero interval falls back to the default
// reconcile cadence.
func New(cat *catalog.Store, c *cache.Cache, pipeline *filter.Pipeline, tok *tokenizer.Tokenizer, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if tok == nil {
		tok = tokenizer.New()
	}
	return &Service{
		catalog:  cat,
		cache:    c,
		pipeline: pipeline,
		tok:      tok,
		interval: interval,
	}
}

// Cache exposes the serving cache for collaborating packages.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Evaluate runs one message through the filter pipeline and records the
// outcome metrics.
func (s *Service) Evaluate(ctx context.Context, msg *rule.Message) (*filter.Result, error) {
	start := time.Now()
	res, err := s.pipeline.Evaluate(ctx, msg)
	metrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if res.Verdict == filter.VerdictReject {
		metrics.EvaluationsTotal.WithLabelValues("reject").Inc()
	} else {
		metrics.EvaluationsTotal.WithLabelValues("pass").Inc()
	}
	return res, nil
}

// Reconcile runs one cache reconciliation pass and updates the cache
// gauges.
func (s *Service) Reconcile(ctx context.Context) error {
	if err := s.cache.Reconcile(ctx); err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.ReconcileRunsTotal.WithLabelValues("ok").Inc()

	snap := s.cache.Snapshot()
	metrics.CachedLists.Set(float64(len(snap.Lists)))
	metrics.CachedScopes.Set(float64(len(snap.Scopes)))
	if lists, scopes, err := s.cache.Store().QueueSizes(ctx); err == nil {
		metrics.PendingQueueSize.WithLabelValues("lists").Set(float64(lists))
		metrics.PendingQueueSize.WithLabelValues("scopes").Set(float64(scopes))
	}
	return nil
}

// Rebuild recomputes the entire Redis projection from the catalog, then
// reloads the local snapshot from the fresh projection.
func (s *Service) Rebuild(ctx context.Context) error {
	if err := cache.Rebuild(ctx, s.cache.Store(), s.catalog, s.tok); err != nil {
		return err
	}
	return s.cache.Load(ctx)
}

// StartReconciler runs the periodic reconcile loop until ctx is done.
// Each tick sleeps a random jitter before running so replicas spread out.
func (s *Service) StartReconciler(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			log.Println("[reconciler] loop stopped")
			return
		case <-ticker.C:
			jitter := time.Duration(rng.Int63n(int64(maxReconcileJitter)))
			select {
			case <-ctx.Done():
				log.Println("[reconciler] loop stopped")
				return
			case <-time.After(jitter):
			}
			if err := s.Reconcile(ctx); err != nil {
				log.Printf("[reconciler] run failed: %v", err)
			}
		}
	}
}

// tiersFor expands a list spec's scope into its cache tier keys.
func tiersFor(spec *catalog.ListSpec) []string {
	switch spec.Scope {
	case rule.ScopeGlobal:
		return []string{cache.TierGlobal}
	case rule.ScopeApp:
		tiers := make([]string, 0, len(spec.AppIDs))
		for _, app := range spec.AppIDs {
			tiers = append(tiers, cache.TierApp(app))
		}
		return tiers
	case rule.ScopeAppChannel:
		var tiers []string
		for _, app := range spec.AppIDs {
			for _, ch := range spec.ChannelIDs {
				tiers = append(tiers, cache.TierAppChannel(app, ch))
			}
		}
		return tiers
	}
	return nil
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func boolFlag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func recordFor(no string, spec *catalog.ListSpec) *cache.ListRecord {
	return &cache.ListRecord{
		No:            no,
		Name:          spec.Name,
		Type:          spec.Type,
		MatchRule:     spec.MatchRule,
		MatchMode:     spec.MatchMode,
		Suggestion:    spec.Suggestion,
		RiskType:      spec.RiskType,
		Status:        spec.Status,
		LanguageScope: spec.LanguageScope,
		LanguageCodes: append([]string(nil), spec.LanguageCodes...),
	}
}

// logCacheErr reports a failed cache projection. The SQL commit is
// authoritative; the entity stays queued and reconciliation or the next
// rebuild heals the cache.
func logCacheErr(op string, err error) {
	if err != nil {
		log.Printf("[service] cache projection %s: %v", op, err)
	}
}
