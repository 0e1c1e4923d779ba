package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "hype/pkg/logx"
)

// AddSchedule parses schedule and registers either a cron or interval job.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, opt Options, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, opt, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, opt, job)
	default:
		return fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, opt Options, job Job) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	return s.add(name, &scheduleDef{spec: spec, sched: sched, timeout: timeout, job: job, opt: opt})
}

// AddInterval registers job every `every`, measured from registration (or Start).
func (s *Service) AddInterval(name string, every, timeout time.Duration, opt Options, job Job) error {
	if every <= 0 {
		return fmt.Errorf("schedule %q: interval must be > 0", name)
	}
	spec := "@every " + every.String()
	return s.add(name, &scheduleDef{spec: spec, sched: cron.Every(every), timeout: timeout, job: job, opt: opt})
}

// add upserts by name. A running previous definition finishes before the
// replacement can start.
func (s *Service) add(name string, def *scheduleDef) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if def.job == nil {
		return errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl, replaced := s.slots[name]
	if !replaced {
		sl = &slot{name: name}
		chain := cron.NewChain(cron.Recover(cronLogger{log: s.log}), cron.DelayIfStillRunning(cronLogger{log: s.log}))
		sl.wrapped = chain.Then(cron.FuncJob(func() { s.run(sl) }))
		s.slots[name] = sl
		s.order = append(s.order, name)
	}
	sl.def.Store(def)

	if s.c != nil {
		if sl.entryID != 0 {
			s.c.Remove(sl.entryID)
		}
		sl.entryID = s.c.Schedule(def.sched, sl.wrapped)
		if def.opt.RunImmediately {
			s.fireLocked(sl)
		}
		e := s.c.Entry(sl.entryID)
		s.log.Debug("schedule registered",
			logx.String("name", name),
			logx.String("spec", def.spec),
			logx.Duration("timeout", def.timeout),
			logx.Bool("replaced", replaced),
			logx.Time("next", e.Next),
		)
	}
	return nil
}

// Remove unschedules name. It returns true if something was removed. A run
// already in flight is not interrupted.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[name]
	if !ok {
		return false
	}
	if s.c != nil && sl.entryID != 0 {
		s.c.Remove(sl.entryID)
	}
	delete(s.slots, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.log.Debug("schedule removed", logx.String("name", name))
	return true
}
