package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/riskguard/filter-app/internal/protocol"
	"github.com/riskguard/filter-app/loadtest/client"
	"github.com/riskguard/filter-app/loadtest/stats"
)

// samplePhrases mixes clean chatter with strings likely to hit a
// configured blacklist, so a seeded rule set produces both verdicts.
var samplePhrases = []string{
	"hello there, anyone up for a run?",
	"gg wp that was close",
	"selling rare mount cheap whisper me",
	"buy gold now best price",
	"meet at the north gate in five",
	"free level boost click my profile",
	"does anyone know the raid schedule",
	"lfg heroic, need one healer",
}

// runCheck implements the sustained evaluation load test. N workers each
// act as a distinct speaker submitting messages at a fixed rate and
// awaiting the verdict, so the reported latency is the full NATS round
// trip through the pipeline.
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	natsURL := fs.String("nats", "nats://localhost:4222", "NATS server URL")
	metricsURL := fs.String("metrics", "http://localhost:9090/metrics", "Filter service metrics URL")
	appID := fs.String("app", "game1", "App id the requests carry (must be registered)")
	channelID := fs.String("channel", "lobby", "Channel id the requests carry")
	workers := fs.Int("workers", 50, "Number of concurrent speakers")
	rate := fs.Duration("rate", 200*time.Millisecond, "Delay between one speaker's messages")
	duration := fs.Duration("duration", 30*time.Second, "Test duration")
	timeout := fs.Duration("timeout", 5*time.Second, "Per-verdict wait timeout")
	fs.Parse(args)

	fmt.Printf("Check test: %d speakers against %s (rate=%s, duration=%s)\n",
		*workers, *natsURL, *rate, *duration)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, 2*time.Second)
	scraper.Start(ctx)
	collector.SetScraper(scraper)

	checker, err := client.New(*natsURL)
	if err != nil {
		fmt.Printf("connect: %v\n", err)
		return
	}
	defer checker.Close()

	// Progress line once per second.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				passes, rejects, errors := collector.Counts()
				fmt.Printf("  [check] verdicts: %d (reject: %d)  errors: %d\n",
					passes+rejects, rejects, errors)
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			account := fmt.Sprintf("load-%04d", worker)

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(*rate):
				}

				req := protocol.CheckRequest{
					AppID:     *appID,
					ChannelID: *channelID,
					AccountID: account,
					Nickname:  "Loader" + account,
					Text:      samplePhrases[rng.Intn(len(samplePhrases))],
				}
				res, latency, err := checker.Check(ctx, req, *timeout)
				if err != nil {
					if ctx.Err() == nil {
						collector.AddError()
					}
					continue
				}
				collector.AddVerdict(res.Verdict, latency)
			}
		}(w)
	}

	wg.Wait()
	scraper.Stop()
	collector.Report()
}
