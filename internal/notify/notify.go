// Package notify sends dashboard notifications via the Telegram Bot API.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/kalshideck/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendSettlement notifies one settled trade group.
func (c *Client) SendSettlement(group *models.TradeGroup) error {
	return c.sendMarkdownV2(formatSettlement(group))
}

// SendError sends a polling error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(pollErr error) error {
	text := fmt.Sprintf("⚠️ *Dashboard poll error*\n`%s`", escapeMarkdownV2(pollErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Dashboard recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// formatSettlement formats a settled group into a MarkdownV2 message.
func formatSettlement(group *models.TradeGroup) string {
	settled := group.Settled

	outcome := "⚪️ *Settled*"
	if settled.PnL != nil {
		if settled.PnL.Sign() >= 0 {
			outcome = "🟢 *Win*"
		} else {
			outcome = "🔴 *Loss*"
		}
	}

	message := fmt.Sprintf("%s %s\n", outcome, escapeMarkdownV2(group.MarketID))
	message += fmt.Sprintf("   %s × %d %s via %s\n",
		escapeMarkdownV2(strings.ToUpper(group.Side)),
		group.TotalQty,
		pluralContracts(group.TotalQty),
		escapeMarkdownV2(settled.Action),
	)

	if settled.PnL != nil {
		message += fmt.Sprintf("   P&L: %s\n", escapeMarkdownV2(fmt.Sprintf("$%s", settled.PnL.StringFixed(2))))
	}
	if settled.Fees != nil {
		message += fmt.Sprintf("   Fees: %s\n", escapeMarkdownV2(fmt.Sprintf("$%s", settled.Fees.StringFixed(2))))
	}

	settledAt := time.Unix(settled.TS, 0).UTC().Format("2006-01-02 15:04:05")
	message += fmt.Sprintf("   🕒 %s UTC", escapeMarkdownV2(settledAt))

	return message
}

func pluralContracts(n int) string {
	if n == 1 {
		return "contract"
	}
	return "contracts"
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
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
