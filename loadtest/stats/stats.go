// Package stats provides a goroutine-safe metrics collector that
// aggregates verdict latencies from the load test clients and prints a
// summary report with percentile distributions.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates measurements from many client goroutines. All
// methods are goroutine-safe.
type Collector struct {
	mu        sync.Mutex
	latencies []time.Duration
	passes    int
	rejects   int
	errors    int
	startTime time.Time
	scraper   *Scraper
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetScraper attaches a Prometheus scraper. When set, Report also prints
// the server-side metrics it collected.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddVerdict records one completed check with its round-trip latency.
func (c *Collector) AddVerdict(verdict string, d time.Duration) {
	c.mu.Lock()
	c.latencies = append(c.latencies, d)
	if verdict == "REJECT" {
		c.rejects++
	} else {
		c.passes++
	}
	c.mu.Unlock()
}

// AddError increments the error counter.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Counts returns the current pass/reject/error totals.
func (c *Collector) Counts() (passes, rejects, errors int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.passes, c.rejects, c.errors
}

// Report prints a formatted summary: totals, throughput, and the verdict
// latency percentile distribution.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)
	total := c.passes + c.rejects

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:   %s\n", elapsed.Round(time.Second))
	fmt.Printf("Verdicts:   %d (pass: %d, reject: %d)\n", total, c.passes, c.rejects)
	fmt.Printf("Errors:     %d\n", c.errors)
	if total > 0 && elapsed > 0 {
		fmt.Printf("Throughput: %.1f checks/s\n", float64(total)/elapsed.Seconds())
	}

	if len(c.latencies) > 0 {
		fmt.Println("\n--- Verdict Latency ---")
		printPercentiles(c.latencies)
	}

	if c.scraper != nil {
		c.scraper.Report()
	}

	fmt.Println()
}

// printPercentiles sorts the given durations and prints avg, p50, p95,
// p99, and max values along with the sample count.
func printPercentiles(durations []time.Duration) {
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	n := len(durations)
	p50 := durations[n/2]
	p95 := durations[int(math.Ceil(float64(n)*0.95))-1]
	p99 := durations[int(math.Ceil(float64(n)*0.99))-1]

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	avg := sum / time.Duration(n)

	fmt.Printf("  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		avg.Round(time.Microsecond),
		p50.Round(time.Microsecond),
		p95.Round(time.Microsecond),
		p99.Round(time.Microsecond),
		durations[n-1].Round(time.Microsecond),
		n,
	)
}
