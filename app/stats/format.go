package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/focusbot/app/storage"
	"github.com/m3rciful/focusbot/app/timer"
	"github.com/m3rciful/focusbot/core/telegram/format"
)

// FormatDuration renders a duration in compact human form: "2h 05m", "25m",
// "45s". Sub-minute durations keep second precision, everything else is
// rounded down to whole minutes.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", h, m)
}

// Mention builds a Markdown mention that notifies the user.
func Mention(userID int64, name string) string {
	display := strings.TrimSpace(name)
	if display == "" {
		display = "you"
	}
	return fmt.Sprintf("[%s](tg://user?id=%d)", escape(display), userID)
}

// StartedText renders the reply to a successful start command.
func StartedText(res timer.StartResult) string {
	var b strings.Builder
	if res.Replaced {
		b.WriteString("Previous timer discarded.\n")
	}
	fmt.Fprintf(&b, "⏳ *%s* — %s\nStay focused, I'll ping you when time is up.",
		escape(res.Label), FormatDuration(res.Planned))
	return b.String()
}

// PausedText renders the paused-timer message.
func PausedText(snap timer.Snapshot) string {
	return fmt.Sprintf("⏸ *%s* paused — %s left.", escape(snap.Label), FormatDuration(snap.Remaining))
}

// ResumedText renders the resumed-timer message.
func ResumedText(snap timer.Snapshot) string {
	return fmt.Sprintf("▶️ *%s* resumed — %s left.", escape(snap.Label), FormatDuration(snap.Remaining))
}

// StoppedText renders the stop outcome, including the persistence caveats.
func StoppedText(res timer.FinishResult) string {
	switch {
	case res.Saved:
		return fmt.Sprintf("⏹ *%s* stopped after %s. Session saved.", escape(res.Label), FormatDuration(res.Elapsed))
	case res.SaveErr != nil:
		return fmt.Sprintf("⏹ *%s* stopped after %s. Couldn't save the session, stats may not reflect it.",
			escape(res.Label), FormatDuration(res.Elapsed))
	default:
		return fmt.Sprintf("⏹ *%s* stopped after %s — too short, not saved.", escape(res.Label), FormatDuration(res.Elapsed))
	}
}

// CompletionPromptText renders the message sent when a timer fires.
func CompletionPromptText(snap timer.Snapshot) string {
	return fmt.Sprintf("⏰ %s, time is up for *%s* (%s).\nDid you finish the task?",
		Mention(snap.Owner, snap.OwnerName), escape(snap.Label), FormatDuration(snap.Planned))
}

// CompletedText renders the completion outcome.
func CompletedText(res timer.FinishResult, confirmed bool) string {
	if !res.Saved && res.SaveErr == nil {
		return fmt.Sprintf("*%s* ran only %s — too short to save.", escape(res.Label), FormatDuration(res.Elapsed))
	}
	note := ""
	if res.SaveErr != nil {
		note = "\nCouldn't save the session, stats may not reflect it."
	}
	if confirmed {
		return fmt.Sprintf("✅ *%s* done — %s logged. Nice work!%s", escape(res.Label), FormatDuration(res.Elapsed), note)
	}
	return fmt.Sprintf("📝 *%s* — %s logged, task carried over.%s", escape(res.Label), FormatDuration(res.Elapsed), note)
}

// StatusText renders the /status reply for an active timer.
func StatusText(snap timer.Snapshot) string {
	state := "running"
	if snap.State == timer.StatePaused {
		state = "paused"
	}
	return fmt.Sprintf("*%s* is %s — %s left of %s.",
		escape(snap.Label), state, FormatDuration(snap.Remaining), FormatDuration(snap.Planned))
}

// UserStatsText renders the /stats reply.
func UserStatsText(name string, st storage.UserStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Stats for %s*\n", escape(name))
	fmt.Fprintf(&b, "Sessions: %d\n", st.Sessions)
	fmt.Fprintf(&b, "Total: %s\n", FormatDuration(time.Duration(st.TotalSeconds)*time.Second))
	fmt.Fprintf(&b, "Today: %s", FormatDuration(time.Duration(st.TodaySeconds)*time.Second))
	return b.String()
}

// LeaderboardText renders the /top reply.
func LeaderboardText(rows []storage.LeaderboardRow, window time.Duration) string {
	if len(rows) == 0 {
		return "No sessions logged here yet. Start one with /focus."
	}
	medals := []string{"🥇", "🥈", "🥉"}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 *Leaderboard — last %s*\n", FormatDuration(window))
	for i, row := range rows {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := row.Username
		if name == "" {
			name = fmt.Sprintf("user %d", row.UserID)
		}
		fmt.Fprintf(&b, "%s %s — %s (%d sessions)\n",
			rank, escape(name), FormatDuration(time.Duration(row.TotalSeconds)*time.Second), row.Sessions)
	}
	return strings.TrimRight(b.String(), "\n")
}

// escape neutralizes Markdown control characters in user-provided text.
func escape(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return out
}
