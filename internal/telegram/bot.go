// Package telegram is the Telegram transport: long polling, owner
// pairing and the command surface.
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ilja/jarvis/internal/metrics"
	"github.com/rs/zerolog"
)

// maxMessageLength is Telegram's hard limit per message.
const maxMessageLength = 4096

// Bot wraps the Telegram API client and the update loop.
type Bot struct {
	api     *tgbotapi.BotAPI
	logger  zerolog.Logger
	metrics *metrics.Metrics

	handler UpdateHandler
	running bool
	updates tgbotapi.UpdatesChannel
}

// UpdateHandler processes one inbound update.
type UpdateHandler interface {
	HandleUpdate(update tgbotapi.Update) error
}

// Config holds bot configuration.
type Config struct {
	Token   string
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// New creates and authenticates the bot.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	bot := &Bot{
		api:     api,
		logger:  cfg.Logger.With().Str("component", "telegram").Logger(),
		metrics: cfg.Metrics,
	}

	bot.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return bot, nil
}

// SetHandler sets the update handler. Must be called before Start.
func (b *Bot) SetHandler(handler UpdateHandler) {
	b.handler = handler
}

// Start begins long polling for updates.
func (b *Bot) Start() error {
	if b.running {
		return fmt.Errorf("bot is already running")
	}
	if b.handler == nil {
		return fmt.Errorf("no update handler set")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	b.updates = b.api.GetUpdatesChan(u)
	b.running = true
	go b.processUpdates()

	b.logger.Info().Msg("Telegram bot started")
	return nil
}

// Stop stops the update loop.
func (b *Bot) Stop() error {
	if !b.running {
		return fmt.Errorf("bot is not running")
	}
	b.running = false
	b.api.StopReceivingUpdates()
	b.logger.Info().Msg("Telegram bot stopped")
	return nil
}

func (b *Bot) processUpdates() {
	for update := range b.updates {
		if !b.running {
			break
		}
		if b.metrics != nil && update.Message != nil {
			b.metrics.TelegramMessagesReceivedTotal.Inc()
		}
		if err := b.handler.HandleUpdate(update); err != nil {
			if b.metrics != nil {
				b.metrics.TelegramErrorsTotal.Inc()
			}
			b.logger.Error().
				Err(err).
				Int("update_id", update.UpdateID).
				Msg("Failed to handle update")
		}
	}
}

// SendMessage sends a text message, splitting anything over Telegram's
// length limit into consecutive messages.
func (b *Bot) SendMessage(chatID int64, text string) error {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		if b.metrics != nil {
			b.metrics.TelegramMessagesSentTotal.Inc()
		}
	}
	return nil
}

// SendPhoto sends an image from a local path with an optional caption.
func (b *Bot) SendPhoto(chatID int64, path, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	if b.metrics != nil {
		b.metrics.TelegramMessagesSentTotal.Inc()
	}
	return nil
}

// Info returns bot identity details.
func (b *Bot) Info() map[string]interface{} {
	return map[string]interface{}{
		"username": b.api.Self.UserName,
		"id":       b.api.Self.ID,
		"running":  b.running,
	}
}

// IsRunning reports whether the update loop is active.
func (b *Bot) IsRunning() bool {
	return b.running
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// newline boundaries.
func splitMessage(text string, limit int) []string {
	if text == "" {
		return []string{""}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}

		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
