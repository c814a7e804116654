package timer

import "time"

// State is the lifecycle phase of a timer entry.
type State string

const (
	// StateRunning means the countdown is active and a deferred callback is armed.
	StateRunning State = "running"
	// StatePaused means the countdown is frozen; Remaining is authoritative.
	StatePaused State = "paused"
	// StateStopped is terminal: the user stopped the timer before it fired.
	StateStopped State = "stopped"
	// StateCompleted is terminal: the user confirmed the fired timer.
	StateCompleted State = "completed"
)

// Key identifies the single timer a user may run per chat.
type Key struct {
	UserID int64
	ChatID int64
}

// entry is the in-memory record of one countdown timer.
// While State is running EndsAt is authoritative for remaining time and
// handle holds the armed callback; while paused Remaining is authoritative
// and no callback is pending.
type entry struct {
	owner     int64
	chat      int64
	ownerName string
	label     string
	planned   time.Duration

	startedAt time.Time
	endsAt    time.Time
	remaining time.Duration
	pausedAt  time.Time

	state State

	// persisted flips false->true exactly once per entry; it is never reset.
	persisted bool

	// gen ties the armed callback to this arming; a fired callback whose gen
	// no longer matches belongs to a superseded timer and must do nothing.
	gen    uint64
	handle *time.Timer
}

// Snapshot is a read-only copy of an entry handed to collaborators.
type Snapshot struct {
	Owner     int64
	Chat      int64
	OwnerName string
	Label     string
	Planned   time.Duration
	StartedAt time.Time
	EndsAt    time.Time
	PausedAt  time.Time
	Remaining time.Duration
	State     State
	Persisted bool
}

func (e *entry) snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Owner:     e.owner,
		Chat:      e.chat,
		OwnerName: e.ownerName,
		Label:     e.label,
		Planned:   e.planned,
		StartedAt: e.startedAt,
		EndsAt:    e.endsAt,
		PausedAt:  e.pausedAt,
		State:     e.state,
		Persisted: e.persisted,
	}
	switch e.state {
	case StateRunning:
		s.Remaining = e.endsAt.Sub(now)
		if s.Remaining < 0 {
			s.Remaining = 0
		}
	case StatePaused:
		s.Remaining = e.remaining
	}
	return s
}

// elapsed computes the studied time at now, clamped to [0, planned].
func (e *entry) elapsed(now time.Time) time.Duration {
	var d time.Duration
	switch e.state {
	case StatePaused:
		d = e.planned - e.remaining
	default:
		end := now
		if end.After(e.endsAt) {
			end = e.endsAt
		}
		d = end.Sub(e.startedAt)
	}
	if d < 0 {
		d = 0
	}
	if d > e.planned {
		d = e.planned
	}
	return d
}
