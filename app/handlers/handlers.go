package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/focusbot/app/config"
	"github.com/m3rciful/focusbot/app/stats"
	"github.com/m3rciful/focusbot/app/storage"
	"github.com/m3rciful/focusbot/app/timer"
	"github.com/m3rciful/focusbot/core/logger"
	tg "github.com/m3rciful/focusbot/core/telegram"
	"github.com/m3rciful/focusbot/core/telegram/callbacks"
	"github.com/m3rciful/focusbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/focusbot/core/telegram/helpers"
	"github.com/m3rciful/focusbot/core/telegram/keyboard"
)

const (
	cbPause      = "timer_pause"
	cbResume     = "timer_resume"
	cbStop       = "timer_stop"
	cbComplete   = "task_complete"
	cbIncomplete = "task_incomplete"
)

// Handlers binds bot commands and callbacks to the timer and stats services.
type Handlers struct {
	cfg    *config.Config
	timers *timer.Service
	store  *storage.Store
}

// New wires the handler set.
func New(cfg *config.Config, timers *timer.Service, store *storage.Store) *Handlers {
	return &Handlers{cfg: cfg, timers: timers, store: store}
}

// Register declares all commands and callbacks on the registry.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{Handler: h.Help, Description: "What this bot does"})
	reg.RegisterCommand("/help", commands.Command{Handler: h.Help, Description: "How to use the bot"})
	reg.RegisterCommand("/ping", commands.Command{Handler: h.Ping, Description: "Liveness check", Hidden: true})
	reg.RegisterCommand("/focus", commands.Command{
		Handler:     h.Focus,
		Description: "Start a study timer, e.g. /focus 25m algebra",
		Aliases:     []string{"timer"},
	})
	reg.RegisterCommand("/status", commands.Command{Handler: h.Status, Description: "Show your active timer"})
	reg.RegisterCommand("/stats", commands.Command{Handler: h.Stats, Description: "Your study statistics"})
	reg.RegisterCommand("/top", commands.Command{Handler: h.Top, Description: "Chat leaderboard"})
	reg.RegisterCommand("/debug", commands.Command{
		Handler:     h.Debug,
		Description: "Internal counters",
		AdminOnly:   true,
		Hidden:      true,
	})

	_ = reg.RegisterCallback(cbPause, h.CallbackPause)
	_ = reg.RegisterCallback(cbResume, h.CallbackResume)
	_ = reg.RegisterCallback(cbStop, h.CallbackStop)
	_ = reg.RegisterCallback(cbComplete, h.completionCallback(true))
	_ = reg.RegisterCallback(cbIncomplete, h.completionCallback(false))

	reg.SetTextFallback(h.UnknownText)
}

// Help replies with usage instructions.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendMD(c, strings.Join([]string{
		"*focusbot* — study timers for this chat.",
		"",
		"/focus `<duration> <label>` — start a countdown (`25m algebra`, `2h thesis`, `90s stretch`).",
		"/focus with no arguments starts a 25m timer.",
		"/status — your active timer.",
		"/stats — your totals.",
		"/top — chat leaderboard.",
		"",
		"One timer per person per chat; starting a new one replaces the old.",
	}, "\n"))
}

// Ping answers the liveness handshake.
func (h *Handlers) Ping(c tele.Context) error {
	return tghelpers.SendText(c, "pong")
}

// Focus starts (or replaces) the caller's timer in this chat.
func (h *Handlers) Focus(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "focus")
	user := c.Sender()
	if user == nil || c.Chat() == nil {
		return nil
	}

	payload := ""
	if c.Message() != nil {
		payload = c.Message().Payload
	}
	req := timer.ParseRequest(payload, displayName(user), h.defaultDuration())

	res, err := h.timers.Start(ctx, timer.StartParams{
		Owner:     user.ID,
		Chat:      c.Chat().ID,
		OwnerName: displayName(user),
		Label:     req.Label,
		Duration:  req.Duration,
	})
	if err != nil {
		return h.replyError(c, err)
	}
	return tghelpers.SendMD(c, stats.StartedText(res), controlKeyboard(res.Snapshot))
}

// Status shows the caller's active timer in this chat.
func (h *Handlers) Status(c tele.Context) error {
	user := c.Sender()
	if user == nil || c.Chat() == nil {
		return nil
	}
	snap, err := h.timers.Status(timer.Key{UserID: user.ID, ChatID: c.Chat().ID})
	if err != nil {
		return h.replyError(c, err)
	}
	return tghelpers.SendMD(c, stats.StatusText(snap), controlKeyboard(snap))
}

// Stats replies with the caller's personal totals.
func (h *Handlers) Stats(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "stats")
	user := c.Sender()
	if user == nil || c.Chat() == nil {
		return nil
	}
	st, err := h.store.StatsForUser(ctx, user.ID, c.Chat().ID)
	if err != nil {
		logger.Error(ctx, "service.stats", "stats.query_failed",
			slog.Int64("user_id", user.ID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return tghelpers.SendText(c, "Stats are unavailable right now, try again later.")
	}
	return tghelpers.SendMD(c, stats.UserStatsText(displayName(user), st))
}

// Top replies with the chat leaderboard over the configured window.
func (h *Handlers) Top(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "top")
	if c.Chat() == nil {
		return nil
	}
	window := time.Duration(h.cfg.Timer.LeaderboardDays) * 24 * time.Hour
	rows, err := h.store.Leaderboard(ctx, c.Chat().ID, time.Now().Add(-window), 10)
	if err != nil {
		logger.Error(ctx, "service.stats", "leaderboard.query_failed",
			slog.Int64("chat_id", c.Chat().ID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return tghelpers.SendText(c, "Stats are unavailable right now, try again later.")
	}
	return tghelpers.SendMD(c, stats.LeaderboardText(rows, window))
}

// Debug reports internal counters to the admin.
func (h *Handlers) Debug(c tele.Context) error {
	return tghelpers.SendText(c, fmt.Sprintf("active timers: %d", h.timers.ActiveCount()))
}

// UnknownText rejects text that matched no command.
func (h *Handlers) UnknownText(c tele.Context) error {
	return tghelpers.SendText(c, "Unknown command. Try /help.")
}

// AdminReject answers non-admin calls to admin-only commands.
func (h *Handlers) AdminReject(c tele.Context) error {
	return tghelpers.SendText(c, "This command is not available.")
}

// CallbackPause handles the pause button on a timer message.
func (h *Handlers) CallbackPause(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "timer_pause")
	key, startedUnix, err := callbackTarget(c)
	if err != nil {
		return tghelpers.SendText(c, "This button is no longer valid.")
	}
	snap, err := h.timers.Pause(ctx, key, c.Sender().ID, startedUnix)
	if err != nil {
		return h.replyError(c, err)
	}
	return tghelpers.EditOrSendMD(c, stats.PausedText(snap), controlKeyboard(snap))
}

// CallbackResume handles the resume button on a paused timer message.
func (h *Handlers) CallbackResume(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "timer_resume")
	key, startedUnix, err := callbackTarget(c)
	if err != nil {
		return tghelpers.SendText(c, "This button is no longer valid.")
	}
	snap, err := h.timers.Resume(ctx, key, c.Sender().ID, startedUnix)
	if err != nil {
		return h.replyError(c, err)
	}
	return tghelpers.EditOrSendMD(c, stats.ResumedText(snap), controlKeyboard(snap))
}

// CallbackStop handles the stop button; it finalizes and persists the session.
func (h *Handlers) CallbackStop(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "timer_stop")
	key, startedUnix, err := callbackTarget(c)
	if err != nil {
		return tghelpers.SendText(c, "This button is no longer valid.")
	}
	res, err := h.timers.Stop(ctx, key, c.Sender().ID, startedUnix)
	if err != nil {
		return h.replyError(c, err)
	}
	return tghelpers.EditOrSendMD(c, stats.StoppedText(res))
}

// completionCallback builds the confirm-complete / confirm-incomplete handler.
func (h *Handlers) completionCallback(confirmed bool) tele.HandlerFunc {
	name := cbIncomplete
	if confirmed {
		name = cbComplete
	}
	return func(c tele.Context) error {
		ctx := tghelpers.WithHandler(c, name)
		key, startedUnix, err := callbackTarget(c)
		if err != nil {
			return tghelpers.SendText(c, "This button is no longer valid.")
		}
		res, err := h.timers.Complete(ctx, key, c.Sender().ID, startedUnix, confirmed)
		if err != nil {
			return h.replyError(c, err)
		}
		return tghelpers.EditOrSendMD(c, stats.CompletedText(res, confirmed))
	}
}

// replyError maps domain errors to caller-visible explanations.
func (h *Handlers) replyError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, timer.ErrNoActiveTimer):
		return tghelpers.SendText(c, "You have no active timer here. Start one with /focus.")
	case errors.Is(err, timer.ErrNotOwner):
		return tghelpers.SendText(c, "That timer belongs to someone else.")
	case errors.Is(err, timer.ErrAlreadySaved):
		return tghelpers.SendText(c, "This session is already recorded.")
	case errors.Is(err, timer.ErrStaleTimer):
		return tghelpers.SendText(c, "That timer was replaced by a newer one.")
	case errors.Is(err, timer.ErrNotPaused):
		return tghelpers.SendText(c, "The timer is not paused.")
	default:
		ctx := tghelpers.BuildContext(c)
		logger.Error(ctx, "tg", "handler.unexpected",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return tghelpers.SendText(c, "Something went wrong, try again.")
	}
}

func (h *Handlers) defaultDuration() time.Duration {
	return time.Duration(h.cfg.Timer.DefaultDurationSeconds) * time.Second
}

// callbackTarget resolves which timer a button refers to. The payload pins
// the owner and the start instant so buttons of a superseded timer cannot
// act on its replacement.
func callbackTarget(c tele.Context) (timer.Key, int64, error) {
	owner, startedUnix, err := callbacks.PayloadTwoInt64(c, "|")
	if err != nil {
		return timer.Key{}, 0, fmt.Errorf("callback payload: %w", err)
	}
	if c.Chat() == nil {
		return timer.Key{}, 0, errors.New("callback without chat")
	}
	return timer.Key{UserID: owner, ChatID: c.Chat().ID}, startedUnix, nil
}

func callbackData(snap timer.Snapshot) string {
	return fmt.Sprintf("%d|%d", snap.Owner, snap.StartedAt.Unix())
}

func controlKeyboard(snap timer.Snapshot) *tele.ReplyMarkup {
	data := callbackData(snap)
	if snap.State == timer.StatePaused {
		return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
			{Text: "▶️ Resume", Unique: cbResume, Data: data},
			{Text: "⏹ Stop", Unique: cbStop, Data: data},
		})
	}
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "⏸ Pause", Unique: cbPause, Data: data},
		{Text: "⏹ Stop", Unique: cbStop, Data: data},
	})
}

func completionKeyboard(snap timer.Snapshot) *tele.ReplyMarkup {
	data := callbackData(snap)
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Done", Unique: cbComplete, Data: data},
		{Text: "➖ Not done", Unique: cbIncomplete, Data: data},
	})
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
