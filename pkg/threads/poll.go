package threads

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type pollState int

const (
	statePending pollState = iota
	stateTerminal
	stateTimedOut
)

func (s pollState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateTerminal:
		return "terminal"
	case stateTimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("pollState(%d)", int(s))
}

// Pending reports whether a run status is still being worked on.
func Pending(status string) bool {
	return status == "queued" || status == "in_progress"
}

func classify(status string, elapsed, ceiling time.Duration) pollState {
	if !Pending(status) {
		return stateTerminal
	}
	if elapsed > ceiling {
		return stateTimedOut
	}
	return statePending
}

// poll re-fetches run every pollInterval until it leaves the pending set or
// the ceiling passes. The returned run is the last one observed.
func (d *Driver) poll(ctx context.Context, threadID string, run *Run) (*Run, pollState, error) {
	start := d.now()
	polls := 0
	for {
		state := classify(run.Status, d.now().Sub(start), d.pollTimeout)
		if state != statePending {
			d.logger.Debug("poll finished",
				zap.Stringer("state", state),
				zap.Int("polls", polls),
			)
			return run, state, nil
		}

		if err := d.sleep(ctx, d.pollInterval); err != nil {
			return nil, state, fmt.Errorf("%s: %w", StagePollRun, err)
		}

		next, err := d.fetchRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, state, err
		}
		polls++
		run = next
	}
}
