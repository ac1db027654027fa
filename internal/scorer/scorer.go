// Package scorer continuously re-evaluates egress proxy health.
package scorer

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/zulandar/stagehand/internal/config"
	"github.com/zulandar/stagehand/internal/models"
	"github.com/zulandar/stagehand/internal/store"
	"gorm.io/gorm"
)

// Verdict is the outcome of one probe.
type Verdict struct {
	Status     string
	Score      float64
	FailStreak int
}

// Classify turns a probe outcome into a health verdict. Request errors and
// timeouts are dead on the spot. Non-success responses count toward a fail
// streak and flag the proxy once the streak reaches threshold; below the
// threshold the proxy is only warned, so one bad response never removes an
// endpoint from the pool on its own.
func Classify(probeErr error, statusCode int, latency time.Duration, prevStreak, threshold int) Verdict {
	if probeErr != nil {
		return Verdict{Status: models.ProxyDead, Score: 0, FailStreak: prevStreak + 1}
	}
	if statusCode >= 400 {
		streak := prevStreak + 1
		status := models.ProxyWarning
		if streak >= threshold {
			status = models.ProxyFlagged
		}
		return Verdict{Status: status, Score: 0, FailStreak: streak}
	}

	score := 100 - float64(latency.Milliseconds())/10
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Verdict{Status: models.ProxyActive, Score: score, FailStreak: 0}
}

// Probe issues one bounded request against the reachability target through
// the proxy and returns the response code and elapsed time.
func Probe(ctx context.Context, proxy *models.Proxy, targetURL string, timeout time.Duration) (int, time.Duration, error) {
	proxyURL, err := url.Parse(proxy.Server())
	if err != nil {
		return 0, 0, fmt.Errorf("scorer: proxy url %s: %w", proxy.ID, err)
	}
	if proxy.Username != "" {
		proxyURL.User = url.UserPassword(proxy.Username, proxy.Password)
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("scorer: build probe request: %w", err)
	}

	started := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(started)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return resp.StatusCode, latency, nil
}

// RunDaemon runs the prober loop. Each tick fetches a batch of proxies,
// probes them through the configured target and persists every verdict.
// A slow cycle delays the next tick rather than overlapping it. The loop
// only exits when ctx is cancelled.
func RunDaemon(ctx context.Context, db *gorm.DB, cfg config.ProberConfig, out io.Writer) error {
	if db == nil {
		return fmt.Errorf("scorer: db is required")
	}
	if out == nil {
		out = io.Discard
	}

	fmt.Fprintf(out, "Prober starting (every %s, target %s)\n", cfg.Interval.Std(), cfg.TargetURL)

	ticker := time.NewTicker(cfg.Interval.Std())
	defer ticker.Stop()

	for {
		if err := runCycle(ctx, db, cfg); err != nil {
			log.Printf("scorer cycle error: %v", err)
		}

		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "Prober stopped.\n")
			return nil
		case <-ticker.C:
		}
	}
}

// runCycle probes one batch of proxies and persists the verdicts.
func runCycle(ctx context.Context, db *gorm.DB, cfg config.ProberConfig) error {
	proxies, err := store.ProxyBatch(db, cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range proxies {
		p := &proxies[i]
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		code, latency, probeErr := Probe(ctx, p, cfg.TargetURL, cfg.Timeout.Std())
		v := Classify(probeErr, code, latency, p.FailStreak, cfg.FailThreshold)
		if err := store.UpdateProxyHealth(db, p.ID, v.Status, v.Score, v.FailStreak); err != nil {
			log.Printf("scorer: persist verdict for %s: %v", p.ID, err)
			continue
		}
		if v.Status != p.Status {
			log.Printf("scorer: proxy %s %s -> %s (score %.0f)", p.ID, p.Status, v.Status, v.Score)
		}
	}
	return nil
}
