// Command rebuild recomputes the entire Redis projection from the SQL
// catalog: every pattern set is re-tokenized, every scope tier is
// recomputed, and the previous projection is overwritten wholesale.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/catalog"
	"github.com/riskguard/filter-app/internal/tokenizer"
)

func main() {
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

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	db, err := catalog.Open(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	if err := catalog.Migrate(db, migrationsURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	ctx := context.Background()
	store := cache.NewStore(rdb)
	start := time.Now()
	if err := cache.Rebuild(ctx, store, catalog.NewStore(db), tokenizer.New()); err != nil {
		log.Fatalf("rebuild failed: %v", err)
	}

	snap, err := store.LoadAll(ctx)
	if err != nil {
		log.Fatalf("failed to read back projection: %v", err)
	}
	log.Printf("rebuild complete in %s: %d lists, %d scope tiers, %d apps",
		time.Since(start).Round(time.Millisecond),
		len(snap.Lists), len(snap.Scopes), len(snap.Apps))
}
