package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/focusbot/core/logger"
)

const component = "service.timers"

var (
	// ErrNoActiveTimer is returned when no entry exists for the key or the
	// entry is terminal.
	ErrNoActiveTimer = errors.New("timer: no active timer")
	// ErrNotOwner is returned when the requester does not own the entry.
	ErrNotOwner = errors.New("timer: not the timer owner")
	// ErrAlreadySaved is returned on a duplicate completion submission.
	ErrAlreadySaved = errors.New("timer: session already saved")
	// ErrStaleTimer is returned when an interaction references a superseded
	// timer (the prompt belongs to an earlier arming of the same key).
	ErrStaleTimer = errors.New("timer: timer superseded")
	// ErrNotPaused is returned when resume is requested while not paused.
	ErrNotPaused = errors.New("timer: timer is not paused")
)

// Session is the durable record produced when a timer is stopped or
// completed with enough elapsed time.
type Session struct {
	Owner     int64
	Chat      int64
	Username  string
	Label     string
	Elapsed   time.Duration
	StartedAt time.Time
	Completed bool
}

// SessionStore persists finished sessions. The service calls SaveSession at
// most once per entry.
type SessionStore interface {
	SaveSession(ctx context.Context, s Session) (string, error)
}

// Prompter delivers the completion prompt when a running timer fires.
// Delivery errors are logged by the service and never propagated.
type Prompter interface {
	PromptCompletion(ctx context.Context, snap Snapshot) error
}

// Config tunes the timer service.
type Config struct {
	// DefaultDuration is applied when the start input has no duration token.
	DefaultDuration time.Duration
	// MinSavable is the minimum elapsed time worth persisting.
	MinSavable time.Duration
}

// Service owns the registry of active timers and enforces the state machine
// around them. All mutations happen under a single mutex, which also guards
// the persisted flag so a stop racing a completion cannot double-save.
type Service struct {
	mu      sync.Mutex
	entries map[Key]*entry
	nextGen uint64

	store  SessionStore
	prompt Prompter
	cfg    Config

	now   func() time.Time
	after func(d time.Duration, fn func()) *time.Timer
}

// NewService builds a timer service with injected collaborators.
func NewService(cfg Config, store SessionStore, prompt Prompter) *Service {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	if cfg.MinSavable <= 0 {
		cfg.MinSavable = time.Minute
	}
	return &Service{
		entries: make(map[Key]*entry),
		store:   store,
		prompt:  prompt,
		cfg:     cfg,
		now:     time.Now,
		after:   time.AfterFunc,
	}
}

// StartParams describes a start-timer command.
type StartParams struct {
	Owner     int64
	Chat      int64
	OwnerName string
	Label     string
	Duration  time.Duration
}

// StartResult reports the created entry and whether it replaced an older one.
type StartResult struct {
	Snapshot
	Replaced bool
}

// Start creates a running entry for (owner, chat) and arms the deferred
// callback. An existing entry under the same key is silently replaced; its
// pending callback is cancelled first so a stale notifier cannot fire for
// the superseded timer.
func (s *Service) Start(ctx context.Context, p StartParams) (StartResult, error) {
	if p.Duration <= 0 {
		p.Duration = s.cfg.DefaultDuration
	}

	s.mu.Lock()
	key := Key{UserID: p.Owner, ChatID: p.Chat}
	replaced := false
	if old, ok := s.entries[key]; ok {
		s.disarmLocked(old)
		delete(s.entries, key)
		replaced = true
	}

	now := s.now()
	e := &entry{
		owner:     p.Owner,
		chat:      p.Chat,
		ownerName: p.OwnerName,
		label:     p.Label,
		planned:   p.Duration,
		startedAt: now,
		endsAt:    now.Add(p.Duration),
		state:     StateRunning,
	}
	s.entries[key] = e
	s.armLocked(key, e, p.Duration)
	snap := e.snapshot(now)
	s.mu.Unlock()

	logger.Info(ctx, component, "timer.started",
		slog.Int64("user_id", p.Owner),
		slog.Int64("chat_id", p.Chat),
		slog.String("label", logger.SanitizeLimit(p.Label, 128)),
		slog.Int64("planned_s", int64(p.Duration/time.Second)),
		slog.Bool("collapsed", replaced),
	)
	return StartResult{Snapshot: snap, Replaced: replaced}, nil
}

// Pause freezes a running timer and cancels its pending callback. Pausing an
// already paused timer is a no-op and re-returns the current snapshot.
func (s *Service) Pause(ctx context.Context, key Key, requester, startedUnix int64) (Snapshot, error) {
	s.mu.Lock()
	e, err := s.lookupLocked(key, requester, startedUnix)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if !active(e) {
		s.mu.Unlock()
		return Snapshot{}, ErrNoActiveTimer
	}
	now := s.now()
	if e.state == StatePaused {
		snap := e.snapshot(now)
		s.mu.Unlock()
		return snap, nil
	}
	s.disarmLocked(e)
	e.remaining = e.endsAt.Sub(now)
	if e.remaining < 0 {
		e.remaining = 0
	}
	e.pausedAt = now
	e.state = StatePaused
	snap := e.snapshot(now)
	s.mu.Unlock()

	logger.Info(ctx, component, "timer.paused",
		slog.Int64("user_id", key.UserID),
		slog.Int64("chat_id", key.ChatID),
		slog.Int64("remaining_s", int64(snap.Remaining/time.Second)),
	)
	return snap, nil
}

// Resume rearms a paused timer for its remaining duration.
func (s *Service) Resume(ctx context.Context, key Key, requester, startedUnix int64) (Snapshot, error) {
	s.mu.Lock()
	e, err := s.lookupLocked(key, requester, startedUnix)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if !active(e) {
		s.mu.Unlock()
		return Snapshot{}, ErrNoActiveTimer
	}
	if e.state != StatePaused {
		s.mu.Unlock()
		return Snapshot{}, ErrNotPaused
	}
	now := s.now()
	e.endsAt = now.Add(e.remaining)
	e.state = StateRunning
	e.pausedAt = time.Time{}
	s.armLocked(key, e, e.remaining)
	e.remaining = 0
	snap := e.snapshot(now)
	s.mu.Unlock()

	logger.Info(ctx, component, "timer.resumed",
		slog.Int64("user_id", key.UserID),
		slog.Int64("chat_id", key.ChatID),
		slog.Int64("remaining_s", int64(snap.Remaining/time.Second)),
	)
	return snap, nil
}

// FinishResult reports the outcome of a stop or completion interaction.
type FinishResult struct {
	Snapshot
	Elapsed   time.Duration
	Saved     bool
	SessionID string
	// SaveErr is set when persistence failed; the entry is still finalized
	// so the save is attempted at most once.
	SaveErr error
}

// Stop cancels the timer, persists the session when it is long enough, and
// removes the entry from the registry regardless of outcome.
func (s *Service) Stop(ctx context.Context, key Key, requester, startedUnix int64) (FinishResult, error) {
	s.mu.Lock()
	e, err := s.lookupLocked(key, requester, startedUnix)
	if err != nil {
		s.mu.Unlock()
		return FinishResult{}, err
	}
	if !active(e) {
		s.mu.Unlock()
		return FinishResult{}, ErrNoActiveTimer
	}
	now := s.now()
	s.disarmLocked(e)
	elapsed := e.elapsed(now)

	res := FinishResult{Elapsed: elapsed}
	save := elapsed >= s.cfg.MinSavable && !e.persisted
	if save {
		e.persisted = true
	}
	e.state = StateStopped
	delete(s.entries, key)
	res.Snapshot = e.snapshot(now)
	s.mu.Unlock()

	if save {
		res.Saved, res.SessionID, res.SaveErr = s.persist(ctx, res.Snapshot, elapsed, false)
	}

	logger.Info(ctx, component, "timer.stopped",
		slog.Int64("user_id", key.UserID),
		slog.Int64("chat_id", key.ChatID),
		slog.Int64("elapsed_s", int64(elapsed/time.Second)),
		slog.Bool("saved", res.Saved),
	)
	return res, nil
}

// Complete finalizes an entry after the notifier fired. Both confirm-complete
// and confirm-incomplete log the session when it is long enough; confirmed
// only marks whether the task itself was finished. Duplicate submissions are
// rejected with ErrAlreadySaved.
func (s *Service) Complete(ctx context.Context, key Key, requester, startedUnix int64, confirmed bool) (FinishResult, error) {
	s.mu.Lock()
	e, err := s.lookupLocked(key, requester, startedUnix)
	if err != nil {
		s.mu.Unlock()
		return FinishResult{}, err
	}
	if e.persisted {
		s.mu.Unlock()
		return FinishResult{}, ErrAlreadySaved
	}
	now := s.now()
	s.disarmLocked(e)
	elapsed := e.elapsed(now)

	res := FinishResult{Elapsed: elapsed}
	if elapsed < s.cfg.MinSavable {
		e.state = StateStopped
		delete(s.entries, key)
		res.Snapshot = e.snapshot(now)
		s.mu.Unlock()
		return res, nil
	}
	e.persisted = true
	e.state = StateCompleted
	res.Snapshot = e.snapshot(now)
	s.mu.Unlock()

	res.Saved, res.SessionID, res.SaveErr = s.persist(ctx, res.Snapshot, elapsed, confirmed)

	logger.Info(ctx, component, "timer.completed",
		slog.Int64("user_id", key.UserID),
		slog.Int64("chat_id", key.ChatID),
		slog.Int64("elapsed_s", int64(elapsed/time.Second)),
		slog.Bool("saved", res.Saved),
	)
	return res, nil
}

// Status returns the caller's active timer, if any.
func (s *Service) Status(key Key) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || (e.state != StateRunning && e.state != StatePaused) {
		return Snapshot{}, ErrNoActiveTimer
	}
	return e.snapshot(s.now()), nil
}

// ActiveCount reports how many non-terminal entries are registered.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.state == StateRunning || e.state == StatePaused {
			n++
		}
	}
	return n
}

// Shutdown cancels every pending callback. In-flight timers are lost by
// design; only stopped/completed sessions are durable.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		s.disarmLocked(e)
	}
	s.entries = make(map[Key]*entry)
}

func (s *Service) lookupLocked(key Key, requester, startedUnix int64) (*entry, error) {
	e, ok := s.entries[key]
	if !ok {
		return nil, ErrNoActiveTimer
	}
	if e.owner != requester {
		return nil, ErrNotOwner
	}
	if startedUnix != 0 && e.startedAt.Unix() != startedUnix {
		return nil, ErrStaleTimer
	}
	return e, nil
}

func active(e *entry) bool {
	return e.state == StateRunning || e.state == StatePaused
}

// armLocked schedules the one-shot callback. Callers must hold s.mu and must
// never arm while a previous handle is still pending.
func (s *Service) armLocked(key Key, e *entry, d time.Duration) {
	s.nextGen++
	gen := s.nextGen
	e.gen = gen
	if d < 0 {
		d = 0
	}
	e.handle = s.after(d, func() { s.fire(key, gen) })
}

// disarmLocked cancels the pending callback if present; cancelling an
// already-fired or absent handle is a no-op.
func (s *Service) disarmLocked(e *entry) {
	if e.handle != nil {
		e.handle.Stop()
		e.handle = nil
	}
	e.gen = 0
}

// fire runs when the countdown elapses. It re-validates that the entry still
// exists, belongs to this arming, and is still running; otherwise it does
// nothing. The entry stays registered awaiting a completion interaction.
func (s *Service) fire(key Key, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen || e.state != StateRunning {
		s.mu.Unlock()
		return
	}
	e.handle = nil
	snap := e.snapshot(s.now())
	s.mu.Unlock()

	ctx := context.Background()
	if s.prompt == nil {
		return
	}
	if err := s.prompt.PromptCompletion(ctx, snap); err != nil {
		// Orphaned until the owner interacts with the entry again.
		logger.Error(ctx, component, "timer.prompt_failed",
			slog.Int64("user_id", key.UserID),
			slog.Int64("chat_id", key.ChatID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.Info(ctx, component, "timer.fired",
		slog.Int64("user_id", key.UserID),
		slog.Int64("chat_id", key.ChatID),
		slog.String("label", logger.SanitizeLimit(snap.Label, 128)),
	)
}

func (s *Service) persist(ctx context.Context, snap Snapshot, elapsed time.Duration, completed bool) (bool, string, error) {
	if s.store == nil {
		return false, "", nil
	}
	id, err := s.store.SaveSession(ctx, Session{
		Owner:     snap.Owner,
		Chat:      snap.Chat,
		Username:  snap.OwnerName,
		Label:     snap.Label,
		Elapsed:   elapsed,
		StartedAt: snap.StartedAt,
		Completed: completed,
	})
	if err != nil {
		logger.Error(ctx, component, "session.save_failed",
			slog.Int64("user_id", snap.Owner),
			slog.Int64("chat_id", snap.Chat),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return false, "", err
	}
	return true, id, nil
}
