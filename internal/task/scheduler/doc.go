// Package scheduler runs named jobs on cron or fixed-interval schedules.
//
// Each job runs at most once at a time: a trigger that fires while the
// previous run is still in flight waits for it to finish (robfig/cron's
// DelayIfStillRunning). Re-registering a name replaces its schedule but keeps
// that guarantee across the replacement.
package scheduler
