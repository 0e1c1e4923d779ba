// Package boost reconciles remote trending posts with the bot's home server
// and boosts the ones policy allows.
package boost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	logx "hype/pkg/logx"
)

// Observer receives decisions and source failures as they happen.
type Observer interface {
	ObserveDecision(source string, d Decision)
	ObserveSourceFailure(source string, stage Stage)
	ObserveCycle(r *CycleReport)
}

type Engine struct {
	log    logx.Logger
	dialer Dialer
	obs    Observer
	now    func() time.Time
}

type Option func(*Engine)

func WithObserver(o Observer) Option { return func(e *Engine) { e.obs = o } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(dialer Dialer, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{log: log, dialer: dialer, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunCycle processes every source in order and never fails as a whole: a
// source's error is recorded in its SourceReport and the next source runs.
func (e *Engine) RunCycle(ctx context.Context, home Home, sources []Source, filtered FilterSet) *CycleReport {
	rep := &CycleReport{
		ID:      uuid.NewString(),
		Started: e.now(),
		Sources: make([]SourceReport, 0, len(sources)),
	}
	e.log.Info("run boost", logx.String("cycle", rep.ID), logx.Int("sources", len(sources)))

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			rep.Sources = append(rep.Sources, SourceReport{Source: src, Err: err})
			continue
		}
		sr := e.runSource(ctx, home, src, filtered)
		if sr.Err != nil {
			e.log.Error(fmt.Sprintf("%s: could not process instance", src.Name),
				logx.String("source", src.Name),
				logx.String("stage", string(sr.FailedStage())),
				logx.Err(sr.Err),
			)
			if e.obs != nil {
				e.obs.ObserveSourceFailure(src.Name, sr.FailedStage())
			}
		}
		rep.Sources = append(rep.Sources, sr)
	}

	rep.Finished = e.now()
	c := rep.Counts()
	e.log.Info("boost finished",
		logx.String("cycle", rep.ID),
		logx.Int("boosted", c.Boosted),
		logx.Int("already_boosted", c.AlreadyBoosted),
		logx.Int("filtered", c.Filtered),
		logx.Int("unresolved", c.Unresolved),
		logx.Int("failed_sources", c.FailedSources),
		logx.Duration("took", rep.Duration()),
	)
	if e.obs != nil {
		e.obs.ObserveCycle(rep)
	}
	return rep
}

func (e *Engine) runSource(ctx context.Context, home Home, src Source, filtered FilterSet) SourceReport {
	start := e.now()
	sr := SourceReport{Source: src}

	posts, err := e.fetch(ctx, src)
	if err != nil {
		sr.Err = &SourceError{Source: src.Name, Stage: StageFetch, Err: err}
		sr.Took = e.now().Sub(start)
		return sr
	}
	sr.Fetched = len(posts)
	if len(posts) > src.Limit {
		posts = posts[:src.Limit]
	}

	total := len(posts)
	sr.Items = make([]ItemOutcome, 0, total)
	for i, p := range posts {
		out := ItemOutcome{Index: i + 1, Total: total, URI: p.URI}
		progress := fmt.Sprintf("%s: %d/%d", src.Name, out.Index, total)

		found, err := home.SearchStatuses(ctx, p.URI)
		if err != nil {
			sr.Err = &SourceError{Source: src.Name, Stage: StageResolve, Err: err}
			break
		}
		if len(found) == 0 {
			out.Decision = SkipUnresolved
			sr.Items = append(sr.Items, out)
			e.observe(src.Name, out.Decision)
			e.log.Warn(progress+" could not find post by uri",
				logx.String("source", src.Name),
				logx.String("uri", p.URI),
				logx.String("decision", out.Decision.String()),
			)
			continue
		}

		local := found[0]
		out.LocalID = local.ID
		out.Acct = local.AccountAcct
		out.Decision = Decide(&local, home.Host(), filtered)
		if out.Decision == Boost {
			if err := home.Reblog(ctx, local.ID); err != nil {
				sr.Err = &SourceError{Source: src.Name, Stage: StageReblog, Err: err}
				break
			}
		}
		sr.Items = append(sr.Items, out)
		e.observe(src.Name, out.Decision)
		e.log.Info(progress+" "+out.Decision.Label(),
			logx.String("source", src.Name),
			logx.String("decision", out.Decision.String()),
			logx.String("acct", local.AccountAcct),
		)
	}
	sr.Took = e.now().Sub(start)
	return sr
}

// fetch returns the source's trending list in rank order. A non-positive
// limit considers nothing and skips the request.
func (e *Engine) fetch(ctx context.Context, src Source) ([]TrendingPost, error) {
	if src.Limit <= 0 {
		return nil, nil
	}
	if e.dialer == nil {
		return nil, fmt.Errorf("no dialer configured")
	}
	tl, err := e.dialer.Open(ctx, src.Name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name, err)
	}
	posts, err := tl.TrendingStatuses(ctx, src.Limit)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (e *Engine) observe(source string, d Decision) {
	if e.obs != nil {
		e.obs.ObserveDecision(source, d)
	}
}
