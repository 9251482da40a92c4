package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ilja/jarvis/internal/assistant"
	"github.com/ilja/jarvis/pkg/audit"
	"github.com/ilja/jarvis/pkg/owner"
	"github.com/rs/zerolog"
)

// Handler routes Telegram updates: commands to the command table,
// everything else through the assistant pipeline. Access is owner-only;
// the first user to talk to the bot claims it.
type Handler struct {
	bot       *Bot
	assistant *assistant.Assistant
	owner     *owner.Store
	audit     *audit.Store
	commands  *Commands
	logger    zerolog.Logger
}

// NewHandler creates the update handler and registers the command set.
func NewHandler(bot *Bot, a *assistant.Assistant, ownerStore *owner.Store, auditStore *audit.Store) *Handler {
	h := &Handler{
		bot:       bot,
		assistant: a,
		owner:     ownerStore,
		audit:     auditStore,
		logger:    bot.logger.With().Str("module", "handler").Logger(),
	}
	h.commands = NewCommands(bot, h)
	return h
}

// Commands exposes the command table so the daemon can extend it.
func (h *Handler) Commands() *Commands {
	return h.commands
}

// requesterID is the stable identity string for a Telegram user.
func requesterID(userID int64) string {
	return fmt.Sprintf("telegram:%d", userID)
}

// HandleUpdate implements UpdateHandler.
func (h *Handler) HandleUpdate(update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil
	}

	identity := requesterID(msg.From.ID)

	// First caller becomes the owner. Everyone else is turned away.
	if !h.owner.Claimed() {
		if err := h.owner.Claim(identity, msg.From.UserName); err != nil {
			return fmt.Errorf("owner claim failed: %w", err)
		}
		h.logger.Info().
			Str("identity", identity).
			Str("username", msg.From.UserName).
			Msg("Owner paired")
		if err := h.bot.SendMessage(msg.Chat.ID,
			"👋 Hello! You are now my owner. Type /help to see what I can do."); err != nil {
			return err
		}
		if msg.IsCommand() && msg.Command() == "start" {
			return nil
		}
	} else if !h.owner.IsOwner(identity) {
		h.logger.Warn().
			Str("identity", identity).
			Msg("Message from non-owner ignored")
		if h.audit != nil {
			if _, err := h.audit.Append(context.Background(), audit.Record{
				Requester:  identity,
				Capability: "telegram.access",
				Outcome:    audit.OutcomeDenied,
				Error:      "not the owner",
			}); err != nil {
				h.logger.Error().Err(err).Msg("Access denial audit failed")
			}
		}
		return h.bot.SendMessage(msg.Chat.ID, "Sorry, I only answer to my owner.")
	}

	if msg.IsCommand() {
		return h.commands.HandleCommand(update)
	}

	return h.handleText(msg)
}

func (h *Handler) handleText(msg *tgbotapi.Message) error {
	if msg.Text == "" {
		return h.bot.SendMessage(msg.Chat.ID, "I can only handle text messages right now.")
	}

	reply := h.assistant.HandleMessage(context.Background(), requesterID(msg.From.ID), msg.Text)

	if reply.ScreenshotPath != "" {
		if err := h.bot.SendPhoto(msg.Chat.ID, reply.ScreenshotPath, reply.Text); err != nil {
			h.logger.Warn().Err(err).Str("path", reply.ScreenshotPath).
				Msg("Photo send failed, falling back to text")
			return h.bot.SendMessage(msg.Chat.ID, reply.Text)
		}
		return nil
	}

	return h.bot.SendMessage(msg.Chat.ID, reply.Text)
}
