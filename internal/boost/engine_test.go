package boost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	logx "hype/pkg/logx"
)

type fakeTimeline struct {
	posts []TrendingPost
	err   error
	limit int
}

func (t *fakeTimeline) TrendingStatuses(_ context.Context, limit int) ([]TrendingPost, error) {
	t.limit = limit
	return t.posts, t.err
}

type fakeDialer struct {
	timelines map[string]*fakeTimeline
	openErr   map[string]error
	opened    []string
}

func (d *fakeDialer) Open(_ context.Context, server string) (Timeline, error) {
	d.opened = append(d.opened, server)
	if err := d.openErr[server]; err != nil {
		return nil, err
	}
	tl, ok := d.timelines[server]
	if !ok {
		return nil, fmt.Errorf("dial %s: no such host", server)
	}
	return tl, nil
}

// fakeHome resolves URIs from a table and flips Reblogged on boost, like a real server.
type fakeHome struct {
	host      string
	posts     map[string]*LocalPost
	searchErr map[string]error
	reblogErr error
	searched  []string
	reblogged []string
}

func (h *fakeHome) Host() string { return h.host }

func (h *fakeHome) SearchStatuses(_ context.Context, uri string) ([]LocalPost, error) {
	h.searched = append(h.searched, uri)
	if err := h.searchErr[uri]; err != nil {
		return nil, err
	}
	p, ok := h.posts[uri]
	if !ok {
		return nil, nil
	}
	return []LocalPost{*p}, nil
}

func (h *fakeHome) Reblog(_ context.Context, id string) error {
	if h.reblogErr != nil {
		return h.reblogErr
	}
	h.reblogged = append(h.reblogged, id)
	for _, p := range h.posts {
		if p.ID == id {
			p.Reblogged = true
		}
	}
	return nil
}

func trending(uris ...string) *fakeTimeline {
	tl := &fakeTimeline{}
	for i, u := range uris {
		tl.posts = append(tl.posts, TrendingPost{URI: u, Rank: i})
	}
	return tl
}

func newTestEngine(d Dialer) (*Engine, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewEngine(d, logx.NewWriter(&buf, "DEBUG")), &buf
}

func decisions(sr SourceReport) []Decision {
	out := make([]Decision, 0, len(sr.Items))
	for _, it := range sr.Items {
		out = append(out, it.Decision)
	}
	return out
}

func TestRunCycleTruncatesToLimitInRankOrder(t *testing.T) {
	d := &fakeDialer{timelines: map[string]*fakeTimeline{
		"a.example": trending("https://a.example/1", "https://a.example/2", "https://a.example/3"),
	}}
	home := &fakeHome{host: "home.example", posts: map[string]*LocalPost{
		"https://a.example/1": {ID: "101", AccountAcct: "alice@a.example"},
		"https://a.example/2": {ID: "102", AccountAcct: "bob@b.example"},
		"https://a.example/3": {ID: "103", AccountAcct: "carol@a.example"},
	}}
	e, _ := newTestEngine(d)

	rep := e.RunCycle(context.Background(), home, []Source{{Name: "a.example", Limit: 2}}, NewFilterSet())

	require.Len(t, rep.Sources, 1)
	sr := rep.Sources[0]
	require.NoError(t, sr.Err)
	require.Equal(t, 3, sr.Fetched)
	require.Equal(t, []string{"https://a.example/1", "https://a.example/2"}, home.searched)
	require.Equal(t, []string{"101", "102"}, home.reblogged)
	require.Equal(t, []Decision{Boost, Boost}, decisions(sr))
	require.Equal(t, 2, sr.Items[1].Index)
	require.Equal(t, 2, sr.Items[1].Total)
	require.Equal(t, 2, d.timelines["a.example"].limit)
}

func TestRunCycleSkipReasons(t *testing.T) {
	d := &fakeDialer{timelines: map[string]*fakeTimeline{
		"a.example": trending("u1", "u2", "u3", "u4", "u5"),
	}}
	home := &fakeHome{host: "home.example", posts: map[string]*LocalPost{
		"u1": {ID: "1", AccountAcct: "user@spam.example"},
		"u2": {ID: "2", AccountAcct: "user@spam.example", Reblogged: true},
		"u3": {ID: "3", AccountAcct: "user@ok.example", Reblogged: true},
		// u4 is unknown to the home server
		"u5": {ID: "5", AccountAcct: "user@OK.example"},
	}}
	e, buf := newTestEngine(d)

	rep := e.RunCycle(context.Background(), home, []Source{{Name: "a.example", Limit: 10}}, NewFilterSet("Spam.Example"))

	sr := rep.Sources[0]
	require.NoError(t, sr.Err)
	require.Equal(t,
		[]Decision{SkipFiltered, SkipAlreadyBoosted, SkipAlreadyBoosted, SkipUnresolved, Boost},
		decisions(sr))
	require.Equal(t, []string{"5"}, home.reblogged)
	require.Equal(t, 4, sr.Items[3].Index, "counter advances past unresolved posts")

	c := rep.Counts()
	require.Equal(t, Counts{Boosted: 1, AlreadyBoosted: 2, Filtered: 1, Unresolved: 1}, c)
	require.Equal(t, 5, c.Considered())

	out := buf.String()
	require.Contains(t, out, "a.example: 1/5 ignore")
	require.Contains(t, out, "a.example: 4/5 could not find post by uri")
	require.Contains(t, out, "a.example: 5/5 boost")
	require.Contains(t, out, `"level":"warn"`)
}

func TestRunCycleFiltersByAuthorOriginNotSource(t *testing.T) {
	// Fetched from an allowed server but authored on a filtered one.
	d := &fakeDialer{timelines: map[string]*fakeTimeline{"good.example": trending("u1")}}
	home := &fakeHome{host: "home.example", posts: map[string]*LocalPost{
		"u1": {ID: "1", AccountAcct: "troll@spam.example"},
	}}
	e, _ := newTestEngine(d)

	rep := e.RunCycle(context.Background(), home, []Source{{Name: "good.example", Limit: 5}}, NewFilterSet("spam.example"))
	require.Equal(t, []Decision{SkipFiltered}, decisions(rep.Sources[0]))
	require.Empty(t, home.reblogged)

	// And a filtered source does not block posts authored elsewhere.
	d.timelines["spam.example"] = trending("u2")
	home.posts["u2"] = &LocalPost{ID: "2", AccountAcct: "friend@good.example"}
	rep = e.RunCycle(context.Background(), home, []Source{{Name: "spam.example", Limit: 5}}, NewFilterSet("spam.example"))
	require.Equal(t, []Decision{Boost}, decisions(rep.Sources[0]))
	require.Equal(t, []string{"2"}, home.reblogged)
}

func TestRunCycleIsolatesSourceFailures(t *testing.T) {
	d := &fakeDialer{
		timelines: map[string]*fakeTimeline{
			"down.example":   {err: errors.New("connection refused")},
			"broken.example": trending("b1", "b2"),
			"ok.example":     trending("o1"),
		},
		openErr: map[string]error{"nodns.example": errors.New("no such host")},
	}
	home := &fakeHome{
		host: "home.example",
		posts: map[string]*LocalPost{
			"b1": {ID: "b1", AccountAcct: "x@broken.example"},
			"o1": {ID: "o1", AccountAcct: "y@ok.example"},
		},
		searchErr: map[string]error{"b2": errors.New("502 bad gateway")},
	}
	e, buf := newTestEngine(d)

	rep := e.RunCycle(context.Background(), home, []Source{
		{Name: "down.example", Limit: 3},
		{Name: "nodns.example", Limit: 3},
		{Name: "broken.example", Limit: 3},
		{Name: "ok.example", Limit: 3},
	}, NewFilterSet())

	require.Len(t, rep.Sources, 4)
	require.Equal(t, StageFetch, rep.Sources[0].FailedStage())
	require.Equal(t, StageFetch, rep.Sources[1].FailedStage())
	require.Equal(t, StageResolve, rep.Sources[2].FailedStage())
	require.Equal(t, []Decision{Boost}, decisions(rep.Sources[2]), "items before the failure are kept")
	require.NoError(t, rep.Sources[3].Err)
	require.Equal(t, []string{"b1", "o1"}, home.reblogged)
	require.Len(t, rep.Failed(), 3)

	var se *SourceError
	require.ErrorAs(t, rep.Sources[0].Err, &se)
	require.Equal(t, "down.example", se.Source)
	require.Contains(t, buf.String(), "down.example: could not process instance")
	require.Contains(t, buf.String(), "connection refused")
}

func TestRunCycleReblogFailureEndsSource(t *testing.T) {
	d := &fakeDialer{timelines: map[string]*fakeTimeline{"a.example": trending("u1", "u2")}}
	home := &fakeHome{
		host: "home.example",
		posts: map[string]*LocalPost{
			"u1": {ID: "1", AccountAcct: "a@a.example"},
			"u2": {ID: "2", AccountAcct: "b@a.example"},
		},
		reblogErr: errors.New("429 too many requests"),
	}
	e, _ := newTestEngine(d)

	rep := e.RunCycle(context.Background(), home, []Source{{Name: "a.example", Limit: 2}}, NewFilterSet())
	sr := rep.Sources[0]
	require.Equal(t, StageReblog, sr.FailedStage())
	require.Empty(t, sr.Items)
	require.Equal(t, []string{"u1"}, home.searched)
}

func TestRunCycleIdempotentOnSecondRun(t *testing.T) {
	d := &fakeDialer{timelines: map[string]*fakeTimeline{"a.example": trending("u1", "u2")}}
	home := &fakeHome{host: "home.example", posts: map[string]*LocalPost{
		"u1": {ID: "1", AccountAcct: "a@a.example"},
		"u2": {ID: "2", AccountAcct: "b"},
	}}
	e, _ := newTestEngine(d)
	src := []Source{{Name: "a.example", Limit: 5}}

	first := e.RunCycle(context.Background(), home, src, NewFilterSet())
	require.Equal(t, 2, first.Counts().Boosted)

	second := e.RunCycle(context.Background(), home, src, NewFilterSet())
	require.Equal(t, 0, second.Counts().Boosted)
	require.Equal(t, 2, second.Counts().AlreadyBoosted)
	require.Len(t, home.reblogged, 2)
	require.NotEqual(t, first.ID, second.ID)
}

func TestRunCycleZeroLimitSkipsFetch(t *testing.T) {
	d := &fakeDialer{timelines: map[string]*fakeTimeline{"a.example": trending("u1")}}
	home := &fakeHome{host: "home.example"}
	e, _ := newTestEngine(d)

	rep := e.RunCycle(context.Background(), home, []Source{{Name: "a.example", Limit: 0}}, NewFilterSet())
	require.NoError(t, rep.Sources[0].Err)
	require.Empty(t, rep.Sources[0].Items)
	require.Empty(t, d.opened)
}

func TestRunCycleCanceledContextSkipsRemainingSources(t *testing.T) {
	d := &fakeDialer{timelines: map[string]*fakeTimeline{"a.example": trending("u1")}}
	home := &fakeHome{host: "home.example"}
	e, _ := newTestEngine(d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := e.RunCycle(ctx, home, []Source{{Name: "a.example", Limit: 1}, {Name: "b.example", Limit: 1}}, NewFilterSet())
	require.Len(t, rep.Sources, 2)
	for _, sr := range rep.Sources {
		require.ErrorIs(t, sr.Err, context.Canceled)
	}
	require.Empty(t, d.opened)
}

type recordingObserver struct {
	decisions []string
	failures  []string
	cycles    int
}

func (o *recordingObserver) ObserveDecision(source string, d Decision) {
	o.decisions = append(o.decisions, source+"/"+d.String())
}

func (o *recordingObserver) ObserveSourceFailure(source string, stage Stage) {
	o.failures = append(o.failures, source+"/"+string(stage))
}

func (o *recordingObserver) ObserveCycle(*CycleReport) { o.cycles++ }

func TestRunCycleNotifiesObserver(t *testing.T) {
	d := &fakeDialer{timelines: map[string]*fakeTimeline{
		"a.example": trending("u1", "missing"),
		"b.example": {err: errors.New("timeout")},
	}}
	home := &fakeHome{host: "home.example", posts: map[string]*LocalPost{
		"u1": {ID: "1", AccountAcct: "a@a.example"},
	}}
	obs := &recordingObserver{}
	e := NewEngine(d, logx.Nop(), WithObserver(obs))

	e.RunCycle(context.Background(), home, []Source{{Name: "a.example", Limit: 5}, {Name: "b.example", Limit: 5}}, nil)

	require.Equal(t, []string{"a.example/boost", "a.example/skip_unresolved"}, obs.decisions)
	require.Equal(t, []string{"b.example/fetch"}, obs.failures)
	require.Equal(t, 1, obs.cycles)
}

func TestSourceErrorMessage(t *testing.T) {
	err := &SourceError{Source: "a.example", Stage: StageFetch, Err: errors.New("boom")}
	require.True(t, strings.HasPrefix(err.Error(), "a.example: fetch:"))
	require.ErrorContains(t, fmt.Errorf("wrapped: %w", err), "boom")
}
