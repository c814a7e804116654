package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/focusbot/app/storage"
	"github.com/m3rciful/focusbot/app/timer"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{time.Minute, "1m"},
		{25 * time.Minute, "25m"},
		{90 * time.Minute, "1h 30m"},
		{2*time.Hour + 5*time.Minute, "2h 05m"},
		{-time.Minute, "0s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMentionEscapesName(t *testing.T) {
	got := Mention(42, "ann_marie")
	if !strings.Contains(got, "tg://user?id=42") {
		t.Fatalf("mention missing user link: %s", got)
	}
	if strings.Contains(got, "ann_marie") {
		t.Fatalf("underscore not escaped: %s", got)
	}
}

func TestStartedTextMentionsReplacement(t *testing.T) {
	res := timer.StartResult{
		Snapshot: timer.Snapshot{Label: "algebra", Planned: 25 * time.Minute},
		Replaced: true,
	}
	got := StartedText(res)
	if !strings.Contains(got, "Previous timer discarded") {
		t.Fatalf("replacement note missing: %s", got)
	}
	if !strings.Contains(got, "25m") {
		t.Fatalf("planned duration missing: %s", got)
	}

	res.Replaced = false
	if strings.Contains(StartedText(res), "Previous timer discarded") {
		t.Fatal("replacement note present for fresh start")
	}
}

func TestStoppedTextVariants(t *testing.T) {
	base := timer.FinishResult{
		Snapshot: timer.Snapshot{Label: "reading"},
		Elapsed:  10 * time.Minute,
	}

	saved := base
	saved.Saved = true
	if got := StoppedText(saved); !strings.Contains(got, "Session saved") {
		t.Fatalf("saved variant: %s", got)
	}

	failed := base
	failed.SaveErr = errDummy
	if got := StoppedText(failed); !strings.Contains(got, "Couldn't save") {
		t.Fatalf("save-failed variant: %s", got)
	}

	if got := StoppedText(base); !strings.Contains(got, "too short") {
		t.Fatalf("too-short variant: %s", got)
	}
}

func TestCompletedTextVariants(t *testing.T) {
	res := timer.FinishResult{
		Snapshot: timer.Snapshot{Label: "essay"},
		Elapsed:  25 * time.Minute,
		Saved:    true,
	}
	if got := CompletedText(res, true); !strings.Contains(got, "done") {
		t.Fatalf("confirmed variant: %s", got)
	}
	if got := CompletedText(res, false); !strings.Contains(got, "carried over") {
		t.Fatalf("carried-over variant: %s", got)
	}

	short := timer.FinishResult{
		Snapshot: timer.Snapshot{Label: "essay"},
		Elapsed:  30 * time.Second,
	}
	if got := CompletedText(short, true); !strings.Contains(got, "too short") {
		t.Fatalf("too-short variant: %s", got)
	}
}

func TestLeaderboardText(t *testing.T) {
	if got := LeaderboardText(nil, 7*24*time.Hour); !strings.Contains(got, "/focus") {
		t.Fatalf("empty leaderboard should suggest /focus: %s", got)
	}

	rows := []storage.LeaderboardRow{
		{UserID: 1, Username: "alice", Sessions: 4, TotalSeconds: 7200},
		{UserID: 2, Username: "", Sessions: 2, TotalSeconds: 3600},
	}
	got := LeaderboardText(rows, 7*24*time.Hour)
	if !strings.Contains(got, "🥇") {
		t.Fatalf("first place medal missing: %s", got)
	}
	if !strings.Contains(got, "alice") {
		t.Fatalf("username missing: %s", got)
	}
	if !strings.Contains(got, "user 2") {
		t.Fatalf("fallback name missing: %s", got)
	}
	if !strings.Contains(got, "2h 00m") {
		t.Fatalf("total time missing: %s", got)
	}
}

var errDummy = timerError("boom")

type timerError string

func (e timerError) Error() string { return string(e) }
