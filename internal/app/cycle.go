package app

import (
	"context"
	"errors"
	"fmt"

	"hype/internal/boost"
	"hype/internal/storage"
	logx "hype/pkg/logx"
)

var errAllSourcesFailed = errors.New("every source failed")

// cycle is the scheduled job. It reads the config snapshot current at start,
// so a reload never changes a cycle halfway through.
func (a *App) cycle(ctx context.Context) error {
	cfg := a.cfgm.Get()
	rep := a.engine.RunCycle(ctx, homeAccount{c: a.home}, sources(cfg), boost.NewFilterSet(cfg.FilteredInstances...))

	a.mu.Lock()
	a.lastCycle = rep
	a.mu.Unlock()

	// Journal writes use a fresh context: a timed-out cycle is still worth recording.
	if err := a.store.AppendRun(context.WithoutCancel(ctx), runRecord(rep)); err != nil {
		a.log.Warn("run journal append failed", logx.String("cycle", rep.ID), logx.Err(err))
	}

	if n := len(rep.Sources); n > 0 && len(rep.Failed()) == n {
		return fmt.Errorf("cycle %s: %w", rep.ID, errAllSourcesFailed)
	}
	return nil
}

func runRecord(rep *boost.CycleReport) storage.RunRecord {
	c := rep.Counts()
	r := storage.RunRecord{
		ID:             rep.ID,
		Started:        rep.Started,
		Finished:       rep.Finished,
		Sources:        len(rep.Sources),
		Boosted:        c.Boosted,
		AlreadyBoosted: c.AlreadyBoosted,
		Filtered:       c.Filtered,
		Unresolved:     c.Unresolved,
	}
	for _, sr := range rep.Failed() {
		r.FailedSources = append(r.FailedSources, storage.FailedEntry{
			Source: sr.Source.Name,
			Stage:  string(sr.FailedStage()),
			Error:  sr.Err.Error(),
		})
	}
	return r
}

// health backs /healthz: unhealthy before Start completes, while stopping,
// and when the last cycle failed on every source.
func (a *App) health() error {
	a.mu.Lock()
	started, rep := a.started, a.lastCycle
	a.mu.Unlock()

	if !started {
		return errors.New("starting")
	}
	if a.sup != nil && a.sup.Context().Err() != nil {
		return errors.New("stopping")
	}
	if rep != nil {
		if n := len(rep.Sources); n > 0 && len(rep.Failed()) == n {
			return fmt.Errorf("last cycle %s: %w", rep.ID, errAllSourcesFailed)
		}
	}
	return nil
}
