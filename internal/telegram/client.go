// Package telegram sends phase-change alerts via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/mvrvdca/internal/models"
)

// botAPI is the subset of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client handles Telegram notifications.
type Client struct {
	bot    botAPI
	chatID int64

	mu     sync.RWMutex
	status func() string
}

var phaseEmoji = map[models.Phase]string{
	models.PhaseDataGathering: "📥",
	models.PhaseAccumulation:  "💎",
	models.PhaseRapidAscent:   "🚀",
	models.PhasePlateau:       "⚠️",
	models.PhaseDecline:       "🔴",
	models.PhaseTransition:    "🔄",
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return newClient(bot, chatIDInt), nil
}

func newClient(bot botAPI, chatID int64) *Client {
	return &Client{bot: bot, chatID: chatID}
}

// SetStatusFunc installs the callback that answers the /status command.
func (c *Client) SetStatusFunc(fn func() string) {
	c.mu.Lock()
	c.status = fn
	c.mu.Unlock()
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "status":
		c.mu.RLock()
		fn := c.status
		c.mu.RUnlock()
		if fn == nil {
			text = "No analysis running"
		} else {
			text = fn()
		}
	default:
		return
	}
	c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)) //nolint:errcheck
}

// sendMarkdownV2 makes a single delivery attempt.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Analyzer error*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Analyzer recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// Send delivers a phase-change signal.
func (c *Client) Send(sig models.Signal) error {
	return c.sendMarkdownV2(formatSignal(sig))
}

// formatSignal renders a phase-change signal as a Telegram MarkdownV2 message.
func formatSignal(sig models.Signal) string {
	var b strings.Builder

	emoji := phaseEmoji[sig.To]
	if emoji == "" {
		emoji = "🔔"
	}
	fmt.Fprintf(&b, "%s *Phase change: %s*\n", emoji, escapeMarkdownV2(sig.To.String()))
	fmt.Fprintf(&b, "_from %s_\n\n", escapeMarkdownV2(sig.From.String()))

	if !sig.Reading.ObservedAt.IsZero() {
		fmt.Fprintf(&b, "📅 Observed: %s\n", escapeMarkdownV2(sig.Reading.ObservedAt.Format("2006-01-02")))
	}
	fmt.Fprintf(&b, "Smoothed Z: *%s*\n", escapeMarkdownV2(fmt.Sprintf("%.2f", sig.Result.SmoothedZ)))
	fmt.Fprintf(&b, "Slope: %s\n", escapeMarkdownV2(fmt.Sprintf("%.4f", sig.Result.Slope)))
	fmt.Fprintf(&b, "Sell: *%s*\n", escapeMarkdownV2(fmt.Sprintf("%.2f%%", sig.Result.SellPercentage*100)))
	if sig.Reading.Price > 0 {
		fmt.Fprintf(&b, "Price: %s\n", escapeMarkdownV2(fmt.Sprintf("$%.2f", sig.Reading.Price)))
	}

	if sig.Advisory {
		b.WriteString("\n_Advisory only, no order placed_")
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
