package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu    sync.Mutex
	saved []Session
	err   error
}

func (f *fakeStore) SaveSession(_ context.Context, s Session) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, s)
	return "session-1", nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakePrompter struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (f *fakePrompter) PromptCompletion(_ context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

func (f *fakePrompter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snaps)
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

type harness struct {
	svc    *Service
	store  *fakeStore
	prompt *fakePrompter
	now    time.Time
	armed  []scheduled
}

func newHarness(cfg Config) *harness {
	h := &harness{
		store:  &fakeStore{},
		prompt: &fakePrompter{},
		now:    time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(cfg, h.store, h.prompt)
	h.svc.now = func() time.Time { return h.now }
	h.svc.after = func(d time.Duration, fn func()) *time.Timer {
		h.armed = append(h.armed, scheduled{delay: d, fn: fn})
		return time.NewTimer(time.Hour)
	}
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) start(t *testing.T, owner, chat int64, label string, d time.Duration) StartResult {
	t.Helper()
	res, err := h.svc.Start(context.Background(), StartParams{
		Owner: owner, Chat: chat, OwnerName: "alice", Label: label, Duration: d,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return res
}

// fireLast simulates the deferred callback of the most recent arming.
func (h *harness) fireLast() {
	h.armed[len(h.armed)-1].fn()
}

var testKey = Key{UserID: 7, ChatID: -100}

func TestPauseResumeRoundTrip(t *testing.T) {
	h := newHarness(Config{})
	h.start(t, testKey.UserID, testKey.ChatID, "reading", 25*time.Minute)

	h.advance(5 * time.Minute)
	snap, err := h.svc.Pause(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if snap.State != StatePaused || snap.Remaining != 20*time.Minute {
		t.Fatalf("after pause: state=%s remaining=%s", snap.State, snap.Remaining)
	}

	h.advance(40 * time.Minute)
	snap, err = h.svc.Resume(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if snap.State != StateRunning {
		t.Fatalf("after resume: state=%s", snap.State)
	}
	if got := snap.EndsAt.Sub(h.now); got != 20*time.Minute {
		t.Fatalf("remaining after resume = %s, want 20m", got)
	}
	if len(h.armed) != 2 || h.armed[1].delay != 20*time.Minute {
		t.Fatalf("resume did not rearm for the paused remainder: %+v", h.armed)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	h := newHarness(Config{})
	h.start(t, testKey.UserID, testKey.ChatID, "x", 10*time.Minute)
	h.advance(time.Minute)
	if _, err := h.svc.Pause(context.Background(), testKey, testKey.UserID, 0); err != nil {
		t.Fatalf("pause: %v", err)
	}
	h.advance(time.Minute)
	snap, err := h.svc.Pause(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("second pause: %v", err)
	}
	if snap.Remaining != 9*time.Minute {
		t.Fatalf("second pause changed remaining: %s", snap.Remaining)
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	h := newHarness(Config{})
	h.start(t, testKey.UserID, testKey.ChatID, "x", 10*time.Minute)
	if _, err := h.svc.Resume(context.Background(), testKey, testKey.UserID, 0); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume while running: %v", err)
	}
}

func TestStopWhilePausedUsesPauseTimeElapsed(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Minute})
	h.start(t, testKey.UserID, testKey.ChatID, "essay", 25*time.Minute)
	h.advance(5 * time.Minute)
	if _, err := h.svc.Pause(context.Background(), testKey, testKey.UserID, 0); err != nil {
		t.Fatalf("pause: %v", err)
	}

	h.advance(30 * time.Minute)
	res, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Elapsed != 5*time.Minute {
		t.Fatalf("elapsed = %s, want 5m (frozen at pause)", res.Elapsed)
	}
	if !res.Saved || h.store.count() != 1 {
		t.Fatalf("session not saved: %+v", res)
	}
}

func TestStopClampsElapsedToPlanned(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Second})
	h.start(t, testKey.UserID, testKey.ChatID, "nap", time.Minute)
	h.advance(2 * time.Hour)
	res, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Elapsed != time.Minute {
		t.Fatalf("elapsed = %s, want clamp to 1m", res.Elapsed)
	}
}

func TestStopTooShortNotSaved(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Minute})
	h.start(t, testKey.UserID, testKey.ChatID, "blink", 25*time.Minute)
	h.advance(10 * time.Second)
	res, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Saved || h.store.count() != 0 {
		t.Fatalf("short session must not be saved: %+v", res)
	}
	if _, err := h.svc.Status(testKey); !errors.Is(err, ErrNoActiveTimer) {
		t.Fatalf("entry should be removed after stop: %v", err)
	}
}

func TestStopIsIdempotentOnPersistence(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Minute})
	h.start(t, testKey.UserID, testKey.ChatID, "work", 25*time.Minute)
	h.advance(10 * time.Minute)
	if _, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0); !errors.Is(err, ErrNoActiveTimer) {
		t.Fatalf("second stop: %v", err)
	}
	if h.store.count() != 1 {
		t.Fatalf("saved %d sessions, want exactly 1", h.store.count())
	}
}

func TestOwnershipRejectedWithoutMutation(t *testing.T) {
	h := newHarness(Config{})
	h.start(t, testKey.UserID, testKey.ChatID, "mine", 25*time.Minute)

	for name, op := range map[string]func() error{
		"pause": func() error {
			_, err := h.svc.Pause(context.Background(), testKey, 999, 0)
			return err
		},
		"stop": func() error {
			_, err := h.svc.Stop(context.Background(), testKey, 999, 0)
			return err
		},
		"complete": func() error {
			_, err := h.svc.Complete(context.Background(), testKey, 999, 0, true)
			return err
		},
	} {
		if err := op(); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("%s by stranger: %v", name, err)
		}
	}

	snap, err := h.svc.Status(testKey)
	if err != nil || snap.State != StateRunning {
		t.Fatalf("entry mutated by rejected commands: %+v, %v", snap, err)
	}
	if h.store.count() != 0 {
		t.Fatal("rejected command persisted a session")
	}
}

func TestNaturalFirePromptsAndCompleteSaves(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Second})
	h.start(t, testKey.UserID, testKey.ChatID, "test", 5*time.Second)

	h.advance(5 * time.Second)
	h.fireLast()
	if h.prompt.count() != 1 {
		t.Fatalf("prompt delivered %d times, want 1", h.prompt.count())
	}

	res, err := h.svc.Complete(context.Background(), testKey, testKey.UserID, 0, true)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Saved || res.Elapsed != 5*time.Second || res.SessionID != "session-1" {
		t.Fatalf("complete result: %+v", res)
	}
	if h.store.saved[0].Completed != true {
		t.Fatal("confirm-complete should mark the session completed")
	}

	if _, err := h.svc.Complete(context.Background(), testKey, testKey.UserID, 0, true); !errors.Is(err, ErrAlreadySaved) {
		t.Fatalf("duplicate completion: %v", err)
	}
	if h.store.count() != 1 {
		t.Fatalf("saved %d sessions, want exactly 1", h.store.count())
	}
}

func TestCompleteTooShortRejected(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Minute})
	h.start(t, testKey.UserID, testKey.ChatID, "test", 5*time.Second)
	h.advance(5 * time.Second)
	h.fireLast()

	res, err := h.svc.Complete(context.Background(), testKey, testKey.UserID, 0, false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Saved || h.store.count() != 0 {
		t.Fatalf("5s session with 60s threshold must not save: %+v", res)
	}
}

func TestFireAfterStopIsNoOp(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Second})
	h.start(t, testKey.UserID, testKey.ChatID, "x", time.Minute)
	h.advance(time.Minute)
	if _, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0); err != nil {
		t.Fatalf("stop: %v", err)
	}
	h.fireLast()
	if h.prompt.count() != 0 {
		t.Fatal("callback fired for a stopped timer")
	}
}

func TestStartReplacesAndCancelsOldCallback(t *testing.T) {
	h := newHarness(Config{})
	h.start(t, testKey.UserID, testKey.ChatID, "first", 10*time.Minute)
	h.advance(time.Minute)
	res := h.start(t, testKey.UserID, testKey.ChatID, "second", 20*time.Minute)
	if !res.Replaced {
		t.Fatal("second start should report replacement")
	}

	// The superseded arming fires late: it must not prompt.
	h.armed[0].fn()
	if h.prompt.count() != 0 {
		t.Fatal("stale callback prompted for a superseded timer")
	}

	snap, err := h.svc.Status(testKey)
	if err != nil || snap.Label != "second" {
		t.Fatalf("registry should hold the replacement: %+v, %v", snap, err)
	}
}

func TestStaleInteractionRejected(t *testing.T) {
	h := newHarness(Config{})
	first := h.start(t, testKey.UserID, testKey.ChatID, "first", 10*time.Minute)
	h.advance(time.Minute)
	h.start(t, testKey.UserID, testKey.ChatID, "second", 10*time.Minute)

	_, err := h.svc.Pause(context.Background(), testKey, testKey.UserID, first.StartedAt.Unix())
	if !errors.Is(err, ErrStaleTimer) {
		t.Fatalf("stale pause: %v", err)
	}
}

func TestPersistFailureFinalizesEntry(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Second})
	h.store.err = errors.New("db down")
	h.start(t, testKey.UserID, testKey.ChatID, "x", time.Minute)
	h.advance(time.Minute)

	res, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Saved || res.SaveErr == nil {
		t.Fatalf("expected persistence failure surfaced: %+v", res)
	}
	// At-most-one-attempt: entry is gone, nothing retries.
	if _, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0); !errors.Is(err, ErrNoActiveTimer) {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPromptFailureLeavesEntryInRegistry(t *testing.T) {
	h := newHarness(Config{MinSavable: time.Second})
	h.prompt.err = errors.New("telegram down")
	h.start(t, testKey.UserID, testKey.ChatID, "x", 5*time.Second)
	h.advance(5 * time.Second)
	h.fireLast()

	// Orphaned but recoverable: the owner can still stop it.
	res, err := h.svc.Stop(context.Background(), testKey, testKey.UserID, 0)
	if err != nil {
		t.Fatalf("stop after failed prompt: %v", err)
	}
	if !res.Saved {
		t.Fatalf("stop should persist despite failed prompt: %+v", res)
	}
}
