package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hype/internal/boost"
	logx "hype/pkg/logx"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.ObserveDecision("a.example", boost.Boost)
	c.ObserveDecision("a.example", boost.Boost)
	c.ObserveDecision("a.example", boost.SkipFiltered)
	c.ObserveSourceFailure("b.example", boost.StageFetch)

	start := time.Unix(1700000000, 0)
	c.ObserveCycle(&boost.CycleReport{
		Started:  start,
		Finished: start.Add(3 * time.Second),
		Sources: []boost.SourceReport{
			{Source: boost.Source{Name: "b.example"}, Err: errors.New("down")},
		},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.decisions.WithLabelValues("a.example", "boost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("a.example", "skip_filtered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failures.WithLabelValues("b.example", "fetch")))
	assert.Equal(t, float64(start.Add(3*time.Second).Unix()), testutil.ToFloat64(c.lastCycle))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lastFailed))
	assert.Equal(t, 1, testutil.CollectAndCount(c.cycleDuration))
}

func get(t *testing.T, h http.Handler, path string, hdr http.Header) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	b, _ := io.ReadAll(rec.Body)
	return rec.Code, string(b)
}

func TestHandlerRoutes(t *testing.T) {
	c := NewCollector()
	c.ObserveDecision("a.example", boost.Boost)

	var healthErr error
	s := NewServer(Config{Enabled: true}, c, func() error { return healthErr }, logx.Nop())
	h := s.Handler()

	code, body := get(t, h, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `hype_decisions_total{decision="boost",source="a.example"} 1`)

	code, body = get(t, h, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	healthErr = errors.New("login lost")
	code, body = get(t, h, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "login lost")

	code, _ = get(t, h, "/debug/pprof/", nil)
	assert.Equal(t, http.StatusNotFound, code, "pprof disabled by default")
}

func TestHandlerRequiresToken(t *testing.T) {
	s := NewServer(Config{Enabled: true, Token: "s3cret", Pprof: true}, NewCollector(), nil, logx.Nop())
	h := s.Handler()

	code, _ := get(t, h, "/metrics", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = get(t, h, "/metrics", http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = get(t, h, "/metrics", http.Header{"Authorization": {"Bearer s3cret"}})
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, h, "/healthz?token=s3cret", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := get(t, h, "/debug/pprof/?token=s3cret", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(body, "goroutine"))
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(Config{Enabled: true, Addr: "127.0.0.1:0"}, NewCollector(), nil, logx.Nop())
	require.NoError(t, s.Start(context.Background()))

	var addr string
	require.Eventually(t, func() bool {
		addr = s.Addr()
		return addr != ""
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.Empty(t, s.Addr())
}

func TestServerRefusesInsecureBind(t *testing.T) {
	s := NewServer(Config{Enabled: true, Addr: "0.0.0.0:0"}, NewCollector(), nil, logx.Nop())
	require.Error(t, s.Start(context.Background()))

	disabled := NewServer(Config{}, NewCollector(), nil, logx.Nop())
	require.NoError(t, disabled.Start(context.Background()))
	assert.Empty(t, disabled.Addr())
}
