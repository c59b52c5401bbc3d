package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geolyze/geolyze_server/internal/model"
)

// Poller watches one job until it reaches a terminal state. The loop
// is strictly sequential: one fetch in flight at a time, the next one
// scheduled a fixed interval after the previous one returned. Multiple
// jobs are watched by independent Poller instances; there is no shared
// state between them.

// ErrPollFailure a status fetch failed at the transport or decode
// level. The observation channel broke; it says nothing about whether
// the analysis itself failed.
var ErrPollFailure = errors.New("status check failed")

const DefaultInterval = 3 * time.Second

// Snapshot one observed state of the watched job.
type Snapshot struct {
	JobID    string
	Status   string
	Progress int
	Message  string
	Error    string
}

// FetchFunc retrieves the job's current state. Implementations must
// honor ctx cancellation.
type FetchFunc func(ctx context.Context) (*Snapshot, error)

type Poller struct {
	fetch    FetchFunc
	interval time.Duration

	// OnUpdate is invoked after every applied observation.
	OnUpdate func(*Snapshot)
	// OnCompleted is invoked exactly once, when the job is first
	// observed completed. The sequential loop stops right after, so no
	// extra guard is needed.
	OnCompleted func(*Snapshot)

	// failureIdx the success-path index at which a failure was
	// detected, derived from the last non-terminal observation.
	failureIdx int
}

func New(fetch FetchFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetch:      fetch,
		interval:   interval,
		failureIdx: 0, // pending is assumed before the first poll
	}
}

// Run polls until a terminal observation, a fetch failure, or ctx
// cancellation. The first fetch is issued immediately. On success the
// terminal snapshot is returned; a failed job is a normal outcome, not
// an error. A fetch failure returns ErrPollFailure. When ctx is
// canceled, a scheduled fetch never fires and an in-flight fetch's
// result is discarded without callbacks.
func (p *Poller) Run(ctx context.Context) (*Snapshot, error) {
	timer := time.NewTimer(0) // immediate first fetch
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		snap, err := p.fetch(ctx)

		// Teardown during the round trip: discard the result.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPollFailure, err)
		}

		if !model.IsTerminalStatus(snap.Status) {
			// Skipped intermediate statuses are normal; the engine may
			// outrun the polling interval.
			if idx := model.StatusIndex(snap.Status); idx > p.failureIdx {
				p.failureIdx = idx
			}
		}

		if p.OnUpdate != nil {
			p.OnUpdate(snap)
		}

		switch snap.Status {
		case model.StatusCompleted:
			if p.OnCompleted != nil {
				p.OnCompleted(snap)
			}
			return snap, nil
		case model.StatusFailed:
			return snap, nil
		}

		timer.Reset(p.interval)
	}
}

// FailureIndex the success-path index at which failure was detected;
// meaningful after Run returned a failed snapshot.
func (p *Poller) FailureIndex() int {
	return p.failureIdx
}
