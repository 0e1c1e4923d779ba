package app

import (
	"context"
	"strings"

	"hype/internal/config"
	"hype/internal/task/scheduler"
	logx "hype/pkg/logx"
)

// reloadLoop applies published config snapshots until ctx is done or sub closes.
// Sources and filters need no action here: each cycle reads the current snapshot.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	ch := config.SummarizeConfigChange(oldCfg, newCfg)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range ch.RestartRequired {
		a.log.Warn(s+" config changed; restart required for changes to take effect", logx.String("section", s))
	}

	if ch.Has("logging") {
		a.logs.Apply(loggingConfig(newCfg))
	}

	if ch.Has("schedule") {
		err := a.sched.AddSchedule(scheduleName, newCfg.ScheduleSpec(), newCfg.CycleTimeoutDuration(), scheduler.Options{}, a.cycle)
		if err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.String("spec", newCfg.ScheduleSpec()), logx.Err(err))
		} else {
			a.log.Info("boost rescheduled", logx.String("spec", newCfg.ScheduleSpec()))
		}
	}

	if ch.Has("subscribed_instances") {
		keep := make(map[string]bool, len(newCfg.SubscribedInstances))
		for _, in := range newCfg.SubscribedInstances {
			keep[strings.ToLower(strings.TrimSpace(in.Name))] = true
		}
		for _, in := range oldCfg.SubscribedInstances {
			if name := strings.ToLower(strings.TrimSpace(in.Name)); !keep[name] {
				a.dialer.Forget(name)
				a.log.Debug("source unsubscribed", logx.String("source", name))
			}
		}
	}

	a.log.Info("config reloaded", fields...)
}
