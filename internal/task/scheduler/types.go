package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "hype/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
}

// Job is the unit of work. ctx carries the per-run timeout, if any.
type Job func(ctx context.Context) error

type Options struct {
	// RunImmediately fires the job once at Start (or at registration, when
	// the service is already running) in addition to its schedule.
	RunImmediately bool
}

// scheduleDef is one registration of a name. It is immutable once built.
type scheduleDef struct {
	spec    string // cron spec or "@every <d>"
	sched   cron.Schedule
	timeout time.Duration
	job     Job
	opt     Options
}

// slot is the per-name state that survives re-registration. wrapped is built
// once, so every trigger for the name shares one DelayIfStillRunning lock.
type slot struct {
	name    string
	def     atomic.Pointer[scheduleDef]
	wrapped cron.Job
	entryID cron.EntryID

	mu   sync.Mutex
	last RunResult
	runs uint64
	busy bool
}

// RunResult describes the most recent completed run.
type RunResult struct {
	Started time.Time
	Took    time.Duration
	Err     string
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	slots  map[string]*slot
	order  []string

	// ctx parents every run; cancel aborts in-flight runs on forced stop.
	ctx    context.Context
	cancel context.CancelFunc
	// immediate tracks RunImmediately runs, which cron's own waiter doesn't see.
	immediate sync.WaitGroup
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Runs    uint64
	Last    RunResult
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
