package handlers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/focusbot/app/stats"
	"github.com/m3rciful/focusbot/app/timer"
	"github.com/m3rciful/focusbot/core/logger"
	"github.com/m3rciful/focusbot/core/telegram/sender"
)

// ErrPrompterUnbound is returned when a timer fires before the bot is connected.
var ErrPrompterUnbound = errors.New("prompter: bot not bound")

// TelegramPrompter delivers the time-is-up message with its confirmation
// keyboard. It implements timer.Prompter. The bot handle only exists once
// the long poller is up, so the prompter starts unbound and is bound from
// the run-loop start hook.
type TelegramPrompter struct {
	bot  atomic.Pointer[tele.Bot]
	disp atomic.Pointer[sender.Dispatcher]
}

// NewPrompter returns an unbound prompter.
func NewPrompter() *TelegramPrompter {
	return &TelegramPrompter{}
}

// Bind attaches the live bot and outbound dispatcher.
func (p *TelegramPrompter) Bind(bot *tele.Bot, disp *sender.Dispatcher) {
	p.bot.Store(bot)
	p.disp.Store(disp)
}

// PromptCompletion sends the completion question to the timer's chat.
func (p *TelegramPrompter) PromptCompletion(ctx context.Context, snap timer.Snapshot) error {
	bot := p.bot.Load()
	if bot == nil {
		return ErrPrompterUnbound
	}

	text := stats.CompletionPromptText(snap)
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: completionKeyboard(snap)}
	run := func() error {
		_, err := bot.Send(&tele.Chat{ID: snap.Chat}, text, opts)
		return err
	}

	disp := p.disp.Load()
	if disp == nil {
		return run()
	}
	if err := disp.Enqueue(ctx, "prompt.completion", "sendMessage", run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", "prompt.completion"),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}
