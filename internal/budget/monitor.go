package budget

import "time"

// Monitor checks loop usage against the limits of one session. It is owned by
// the session's control goroutine and is not safe for concurrent use.
type Monitor struct {
	limits    Limits
	startTime time.Time
}

// NewMonitor starts tracking a session with the given limits.
func NewMonitor(limits Limits) *Monitor {
	return &Monitor{limits: limits, startTime: time.Now()}
}

// Limits returns the limits the monitor enforces.
func (m *Monitor) Limits() Limits {
	return m.limits
}

// CheckIteration reports ErrExceeded once iteration has reached the cap, i.e.
// no further goal may be dequeued.
func (m *Monitor) CheckIteration(iteration int) error {
	if iteration >= m.limits.MaxIterations {
		return ErrExceeded{Kind: KindIterations, Usage: iteration, Limit: m.limits.MaxIterations}
	}
	return nil
}

// CheckGoals reports ErrExceeded when the tracked goal count is over the cap.
func (m *Monitor) CheckGoals(total int) error {
	if total > m.limits.MaxGoals {
		return ErrExceeded{Kind: KindGoals, Usage: total, Limit: m.limits.MaxGoals}
	}
	return nil
}

// AdmitGoals decides whether proposed new goals fit next to the existing ones.
// existing excludes the goal currently being processed, which is counted here.
func (m *Monitor) AdmitGoals(existing, proposed int) error {
	total := existing + 1 + proposed
	if total > m.limits.MaxGoals {
		return ErrExceeded{Kind: KindGoals, Usage: total, Limit: m.limits.MaxGoals}
	}
	return nil
}

// CanSearch reports whether a goal with the given attempt count may search again.
func (m *Monitor) CanSearch(attempted, available int) bool {
	return attempted < available && attempted < m.limits.MaxSearchesPerGoal
}

// Elapsed returns the time since the monitor was created.
func (m *Monitor) Elapsed() time.Duration {
	return time.Since(m.startTime)
}
