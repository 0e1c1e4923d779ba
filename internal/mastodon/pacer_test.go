package mastodon

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitReset(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{name: "iso8601", in: "2024-05-01T12:05:00.000Z", want: time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)},
		{name: "unix", in: "1714565100", want: time.Unix(1714565100, 0)},
		{name: "empty", in: "", want: now.Add(time.Minute)},
		{name: "garbage", in: "soon", want: now.Add(time.Minute)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseRateLimitReset(tc.in, now); !got.Equal(tc.want) {
				t.Fatalf("parseRateLimitReset(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestPacerObserveOnlyWhenExhausted(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := newPacer(0, 0)
	p.now = func() time.Time { return now }

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "3")
	h.Set("X-RateLimit-Reset", "2024-05-01T12:05:00Z")
	p.Observe(h)
	if !p.resumeAt.IsZero() {
		t.Fatalf("resumeAt set with budget left: %v", p.resumeAt)
	}

	h.Set("X-RateLimit-Remaining", "0")
	p.Observe(h)
	want := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	if !p.resumeAt.Equal(want) {
		t.Fatalf("resumeAt = %v, want %v", p.resumeAt, want)
	}
}

func TestPacerWaitHonorsContext(t *testing.T) {
	p := newPacer(0, 0)
	p.resumeAt = time.Now().Add(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err == nil {
		t.Fatal("expected context error while paused")
	}
}

func TestPacerWaitCapped(t *testing.T) {
	p := newPacer(0, 0)
	p.maxWait = 10 * time.Millisecond
	p.resumeAt = time.Now().Add(time.Hour)

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("wait not capped")
	}
}
