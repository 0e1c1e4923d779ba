package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "hype/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		slots:  map[string]*slot{},
	}
}

// Start begins triggering registered schedules and fires RunImmediately jobs.
// Runs derive their context from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	for _, name := range s.order {
		sl := s.slots[name]
		sl.entryID = s.c.Schedule(sl.def.Load().sched, sl.wrapped)
	}
	s.c.Start()
	for _, name := range s.order {
		if sl := s.slots[name]; sl.def.Load().opt.RunImmediately {
			s.fireLocked(sl)
		}
	}
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.order)))
}

// Stop stops triggering and waits for in-flight runs until ctx is done, then
// cancels whatever is still running.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	for _, sl := range s.slots {
		sl.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	s.log.Info("stop requested")

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.immediate.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop grace expired; cancelling in-flight runs", logx.Duration("waited", time.Since(start)))
	}
	cancel()
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// fireLocked runs sl once, outside its schedule. Call with s.mu held and the
// service running.
func (s *Service) fireLocked(sl *slot) {
	s.immediate.Add(1)
	go func() {
		defer s.immediate.Done()
		sl.wrapped.Run()
	}()
}

func (s *Service) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// run executes the current definition of sl. The DelayIfStillRunning wrapper
// guarantees only one run per slot at a time.
func (s *Service) run(sl *slot) {
	def := sl.def.Load()
	if def == nil {
		return
	}
	ctx := s.runContext()
	if ctx.Err() != nil {
		return
	}
	if def.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, def.timeout)
		defer cancel()
	}

	start := time.Now()
	sl.mu.Lock()
	sl.busy = true
	sl.mu.Unlock()

	var err error
	defer func() {
		took := time.Since(start)
		res := RunResult{Started: start, Took: took}
		if err != nil {
			res.Err = err.Error()
		}
		sl.mu.Lock()
		sl.busy = false
		sl.runs++
		sl.last = res
		sl.mu.Unlock()
		if err != nil {
			s.log.Warn("run failed", logx.String("schedule", sl.name), logx.Duration("took", took), logx.Err(err))
		} else {
			s.log.Debug("run finished", logx.String("schedule", sl.name), logx.Duration("took", took))
		}
	}()

	s.log.Debug("run started", logx.String("schedule", sl.name))
	err = def.job(ctx)
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	snap := Snapshot{Running: s.c != nil, Timezone: loc.String()}
	for _, name := range s.order {
		sl := s.slots[name]
		def := sl.def.Load()
		it := ScheduleInfo{Name: name, Spec: def.spec, Timeout: def.timeout}
		if s.c != nil && sl.entryID != 0 {
			e := s.c.Entry(sl.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		sl.mu.Lock()
		it.Running = sl.busy
		it.Runs = sl.runs
		it.Last = sl.last
		sl.mu.Unlock()
		snap.Schedules = append(snap.Schedules, it)
	}
	return snap
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's internal logging into logx. Its chatter
// ("wake", "run", "added") goes to trace; recovered panics to error.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "delay" {
		l.log.Info("run delayed by previous run", kvFields(keysAndValues)...)
		return
	}
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
