package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/catalog"
	"github.com/riskguard/filter-app/internal/classifier"
	"github.com/riskguard/filter-app/internal/filter"
	"github.com/riskguard/filter-app/internal/history"
	"github.com/riskguard/filter-app/internal/messaging"
	"github.com/riskguard/filter-app/internal/metrics"
	"github.com/riskguard/filter-app/internal/protocol"
	"github.com/riskguard/filter-app/internal/ratelimit"
	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/service"
	"github.com/riskguard/filter-app/internal/tokenizer"
)

// publishFlood short-circuits a throttled request with a flood verdict,
// without running the pipeline.
func publishFlood(natsClient *messaging.Client, msg *rule.Message) {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	res := filter.Result{
		RequestID:   msg.RequestID,
		Verdict:     filter.VerdictReject,
		RiskType:    rule.RiskFlood,
		Description: rule.RiskFlood.Description(),
	}
	payload, err := json.Marshal(res)
	if err != nil {
		log.Printf("[filterd] failed to marshal flood result: %v", err)
		return
	}
	if err := natsClient.PublishResult(res.RequestID, payload); err != nil {
		log.Printf("[filterd] failed to publish flood result: %v", err)
	}
	if err := natsClient.PublishDecision(payload); err != nil {
		log.Printf("[filterd] failed to publish flood decision: %v", err)
	}
}

func main() {
	log.Println("Starting filter service...")

	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	databaseURL := "postgres://localhost:5432/filter?sslmode=disable"
	if v := os.Getenv("DATABASE_URL"); v != "" {
		databaseURL = v
	}
	migrationsURL := "file://migrations"
	if v := os.Getenv("MIGRATIONS_URL"); v != "" {
		migrationsURL = v
	}
	listenAddr := ":9090"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}
	reconcileInterval := service.DefaultReconcileInterval
	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			reconcileInterval = d
		}
	}
	pendingWindow := cache.DefaultWindow
	if v := os.Getenv("PENDING_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			pendingWindow = d
		}
	}
	adDetectURL := os.Getenv("AD_DETECT_URL")
	llmURL := os.Getenv("LLM_URL")

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- Postgres ---
	db, err := catalog.Open(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := catalog.Migrate(db, migrationsURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	cat := catalog.NewStore(db)
	limiter := ratelimit.NewLimiter(rdb)
	serving := cache.NewCache(cache.NewStore(rdb), pendingWindow)
	tok := tokenizer.New()
	hist := history.NewBuffer()
	pipeline := filter.New(serving,
		filter.WithTokenizer(tok),
		filter.WithHistory(hist),
		filter.WithClassifiers(classifier.NewAdDetector(adDetectURL), classifier.NewLLM(llmURL)),
	)
	svc := service.New(cat, serving, pipeline, tok, reconcileInterval)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Seed the snapshot from the existing Redis projection before taking
	// traffic. An empty cache just means an empty snapshot until the
	// first rebuild.
	if err := serving.Load(ctx); err != nil {
		log.Fatalf("failed to load serving cache: %v", err)
	}
	snap := serving.Snapshot()
	log.Printf("[cache] loaded %d lists, %d scope tiers, %d apps",
		len(snap.Lists), len(snap.Scopes), len(snap.Apps))

	go svc.StartReconciler(ctx)

	err = natsClient.SubscribeChecks(func(data []byte) {
		var req protocol.CheckRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[filterd] failed to unmarshal request: %v", err)
			return
		}

		msg := req.Message()

		// Flood guard ahead of evaluation. The limiter fails open, so a
		// Redis hiccup never blocks the request.
		if msg.AccountID != "" {
			if ok, _ := limiter.Allow(ctx, msg.SpeakerKey(), ratelimit.RuleSpeaker); !ok {
				publishFlood(natsClient, msg)
				return
			}
		}
		if msg.IP != "" {
			if ok, _ := limiter.Allow(ctx, msg.IP, ratelimit.RuleIP); !ok {
				publishFlood(natsClient, msg)
				return
			}
		}

		res, err := svc.Evaluate(ctx, msg)
		if err != nil {
			payload, _ := json.Marshal(protocol.CheckError{RequestID: msg.RequestID, Error: err.Error()})
			if pubErr := natsClient.PublishResult(msg.RequestID, payload); pubErr != nil {
				log.Printf("[filterd] failed to publish error: %v", pubErr)
			}
			return
		}

		payload, err := json.Marshal(res)
		if err != nil {
			log.Printf("[filterd] failed to marshal result: %v", err)
			return
		}
		if err := natsClient.PublishResult(res.RequestID, payload); err != nil {
			log.Printf("[filterd] failed to publish result: %v", err)
		}
		if err := natsClient.PublishDecision(payload); err != nil {
			log.Printf("[filterd] failed to publish decision: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to checks: %v", err)
	}

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	log.Printf("Filter service running")
	log.Printf("  redis_addr:         %s", redisAddr)
	log.Printf("  nats_url:           %s", natsConfig.URL)
	log.Printf("  listen_addr:        %s", listenAddr)
	log.Printf("  reconcile_interval: %s", reconcileInterval)
	log.Printf("  pending_window:     %s", pendingWindow)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown: %v", err)
	}
	natsClient.Close()
	rdb.Close()
	db.Close()
}
