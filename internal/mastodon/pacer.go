package mastodon

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxRateLimitWait = 5 * time.Minute

// pacer spreads requests: a local token bucket plus the server's own
// X-RateLimit-* hints. When the server reports an exhausted budget, requests
// wait for the advertised reset (capped at maxWait).
type pacer struct {
	lim     *rate.Limiter
	maxWait time.Duration
	now     func() time.Time

	mu       sync.Mutex
	resumeAt time.Time
}

func newPacer(perSec float64, burst int) *pacer {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), max(1, burst))
	}
	return &pacer{lim: lim, maxWait: maxRateLimitWait, now: time.Now}
}

func (p *pacer) Wait(ctx context.Context) error {
	if err := p.lim.Wait(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	until := p.resumeAt
	p.mu.Unlock()

	d := until.Sub(p.now())
	if d <= 0 {
		return nil
	}
	if d > p.maxWait {
		d = p.maxWait
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Observe records rate-limit headers from a response.
func (p *pacer) Observe(h http.Header) {
	remaining := h.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	n, err := strconv.Atoi(remaining)
	if err != nil || n > 0 {
		return
	}
	reset := parseRateLimitReset(h.Get("X-RateLimit-Reset"), p.now())

	p.mu.Lock()
	if reset.After(p.resumeAt) {
		p.resumeAt = reset
	}
	p.mu.Unlock()
}

// parseRateLimitReset parses Mastodon's ISO 8601 reset header.
// Falls back to one minute from now if missing or invalid.
func parseRateLimitReset(v string, now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(ts, 0)
	}
	return now.Add(time.Minute)
}
