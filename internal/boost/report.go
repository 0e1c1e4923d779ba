package boost

import (
	"errors"
	"fmt"
	"time"
)

// Stage names the step of a source's processing that failed.
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageResolve Stage = "resolve"
	StageReblog  Stage = "reblog"
)

// SourceError is a failure that ended one source's processing for a cycle.
type SourceError struct {
	Source string
	Stage  Stage
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ItemOutcome records the decision for one trending post.
// Index is 1-based, matching the progress line counter.
type ItemOutcome struct {
	Index    int
	Total    int
	URI      string
	LocalID  string
	Acct     string
	Decision Decision
}

type SourceReport struct {
	Source  Source
	Fetched int // length of the trending list before truncation
	Items   []ItemOutcome
	Err     error
	Took    time.Duration
}

// FailedStage returns the stage that ended the source, or "" on success.
func (r SourceReport) FailedStage() Stage {
	var se *SourceError
	if errors.As(r.Err, &se) {
		return se.Stage
	}
	return ""
}

type CycleReport struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Sources  []SourceReport
}

// Counts tallies decisions across all sources.
type Counts struct {
	Boosted        int
	AlreadyBoosted int
	Filtered       int
	Unresolved     int
	FailedSources  int
}

func (c Counts) Considered() int {
	return c.Boosted + c.AlreadyBoosted + c.Filtered + c.Unresolved
}

func (r *CycleReport) Counts() Counts {
	var c Counts
	for _, sr := range r.Sources {
		if sr.Err != nil {
			c.FailedSources++
		}
		for _, it := range sr.Items {
			switch it.Decision {
			case Boost:
				c.Boosted++
			case SkipAlreadyBoosted:
				c.AlreadyBoosted++
			case SkipFiltered:
				c.Filtered++
			case SkipUnresolved:
				c.Unresolved++
			}
		}
	}
	return c
}

// Failed returns the reports of sources that ended with an error.
func (r *CycleReport) Failed() []SourceReport {
	var out []SourceReport
	for _, sr := range r.Sources {
		if sr.Err != nil {
			out = append(out, sr)
		}
	}
	return out
}

func (r *CycleReport) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
