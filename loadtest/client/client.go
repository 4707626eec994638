// Package client provides a reusable load test client for the filter
// service. It talks NATS the same way real producers do: publish a check
// request to filter.check, then wait for the verdict on the per-request
// result subject.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/riskguard/filter-app/internal/messaging"
	"github.com/riskguard/filter-app/internal/protocol"
)

// Checker submits check requests and collects verdicts. It is safe for
// concurrent use; each Check uses its own result subscription.
type Checker struct {
	conn *nats.Conn
}

// New connects to NATS at the given URL.
func New(url string) (*Checker, error) {
	conn, err := nats.Connect(url, nats.Name("filter-loadtest"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Checker{conn: conn}, nil
}

// Check publishes one request and waits for its verdict. The returned
// duration is the request-to-verdict round trip. A missing RequestID is
// assigned before publishing so the result subject is known up front.
func (c *Checker) Check(ctx context.Context, req protocol.CheckRequest, timeout time.Duration) (protocol.CheckResult, time.Duration, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	sub, err := c.conn.SubscribeSync(messaging.SubjectResult + "." + req.RequestID)
	if err != nil {
		return protocol.CheckResult{}, 0, fmt.Errorf("subscribe result: %w", err)
	}
	defer sub.Unsubscribe()

	payload, err := json.Marshal(req)
	if err != nil {
		return protocol.CheckResult{}, 0, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	if err := c.conn.Publish(messaging.SubjectCheck, payload); err != nil {
		return protocol.CheckResult{}, 0, fmt.Errorf("publish check: %w", err)
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	msg, err := sub.NextMsgWithContext(waitCtx)
	if err != nil {
		return protocol.CheckResult{}, 0, fmt.Errorf("await result: %w", err)
	}
	latency := time.Since(start)

	var res protocol.CheckResult
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return protocol.CheckResult{}, latency, fmt.Errorf("unmarshal result: %w", err)
	}
	if res.Verdict == "" {
		var checkErr protocol.CheckError
		if json.Unmarshal(msg.Data, &checkErr) == nil && checkErr.Error != "" {
			return res, latency, fmt.Errorf("service error: %s", checkErr.Error)
		}
	}
	return res, latency, nil
}

// Fire publishes a request without waiting for the verdict. Used by the
// flood scenario where the interesting signal is on the server side.
func (c *Checker) Fire(req protocol.CheckRequest) error {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.conn.Publish(messaging.SubjectCheck, payload)
}

// Close flushes pending publishes and closes the connection.
func (c *Checker) Close() {
	c.conn.Flush()
	c.conn.Close()
}
