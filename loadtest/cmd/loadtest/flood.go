package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/riskguard/filter-app/internal/protocol"
	"github.com/riskguard/filter-app/loadtest/client"
	"github.com/riskguard/filter-app/loadtest/stats"
)

// runFlood implements the flood guard test. A handful of speakers submit
// messages far faster than the per-speaker cap, and the test counts how
// many of their verdicts come back as flood rejections versus ordinary
// passes. A healthy guard shows the first window's worth passing and the
// rest rejected.
func runFlood(args []string) {
	fs := flag.NewFlagSet("flood", flag.ExitOnError)
	natsURL := fs.String("nats", "nats://localhost:4222", "NATS server URL")
	appID := fs.String("app", "game1", "App id the requests carry (must be registered)")
	channelID := fs.String("channel", "lobby", "Channel id the requests carry")
	speakers := fs.Int("speakers", 3, "Number of flooding speakers")
	messages := fs.Int("messages", 100, "Messages each speaker submits")
	timeout := fs.Duration("timeout", 5*time.Second, "Per-verdict wait timeout")
	fs.Parse(args)

	fmt.Printf("Flood test: %d speakers x %d messages against %s\n",
		*speakers, *messages, *natsURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	checker, err := client.New(*natsURL)
	if err != nil {
		fmt.Printf("connect: %v\n", err)
		return
	}
	defer checker.Close()

	var mu sync.Mutex
	floodRejects := 0

	var wg sync.WaitGroup
	for s := 0; s < *speakers; s++ {
		wg.Add(1)
		go func(speaker int) {
			defer wg.Done()
			account := fmt.Sprintf("flooder-%02d", speaker)

			for i := 0; i < *messages; i++ {
				if ctx.Err() != nil {
					return
				}
				req := protocol.CheckRequest{
					AppID:     *appID,
					ChannelID: *channelID,
					AccountID: account,
					Text:      fmt.Sprintf("spam burst %d from %s", i, account),
				}
				res, latency, err := checker.Check(ctx, req, *timeout)
				if err != nil {
					if ctx.Err() == nil {
						collector.AddError()
					}
					continue
				}
				collector.AddVerdict(res.Verdict, latency)
				if res.RiskType == 400 {
					mu.Lock()
					floodRejects++
					mu.Unlock()
				}
			}
		}(s)
	}

	wg.Wait()
	collector.Report()

	mu.Lock()
	fmt.Printf("Flood rejections: %d of %d submissions\n", floodRejects, (*speakers)*(*messages))
	mu.Unlock()
	if floodRejects == 0 {
		fmt.Println("WARNING: no flood rejections observed; is the guard configured?")
	}
}
