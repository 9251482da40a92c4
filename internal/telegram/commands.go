package telegram

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Commands is the slash-command table. The daemon registers commands
// that need access to the registry and audit log; /start and /help are
// built in.
type Commands struct {
	bot      *Bot
	logger   zerolog.Logger
	handlers map[string]CommandFunc
}

// CommandFunc handles one command invocation.
type CommandFunc func(ctx CommandContext) error

// CommandContext contains command metadata.
type CommandContext struct {
	ChatID    int64
	MessageID int
	UserID    int64
	Username  string
	Command   string
	Args      []string
	RawArgs   string
}

// NewCommands creates the command table with the built-in commands.
func NewCommands(bot *Bot, h *Handler) *Commands {
	c := &Commands{
		bot:      bot,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]CommandFunc),
	}

	c.Register("start", func(ctx CommandContext) error {
		return c.SendResponse(ctx, "I'm online and listening. Tell me what to do, or type /help.")
	})
	c.Register("help", func(ctx CommandContext) error {
		return c.SendResponse(ctx, helpText(c))
	})

	return c
}

func helpText(c *Commands) string {
	var b strings.Builder
	b.WriteString("Talk to me in plain language, e.g. \"take a screenshot\" or \"open chrome\".\n")
	b.WriteString("Dangerous actions ask for a yes/no confirmation first.\n\nCommands:\n")
	for _, cmd := range c.RegisteredCommands() {
		b.WriteString("/" + cmd + "\n")
	}
	return b.String()
}

// HandleCommand processes one command update.
func (c *Commands) HandleCommand(update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return nil
	}

	ctx := CommandContext{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		Command:   msg.Command(),
		Args:      strings.Fields(msg.CommandArguments()),
		RawArgs:   msg.CommandArguments(),
	}

	c.logger.Debug().
		Int64("chat_id", ctx.ChatID).
		Str("command", ctx.Command).
		Strs("args", ctx.Args).
		Msg("Command received")

	handler, exists := c.handlers[ctx.Command]
	if !exists {
		return c.SendResponse(ctx, fmt.Sprintf("Unknown command: /%s", ctx.Command))
	}
	return handler(ctx)
}

// Register adds a command handler.
func (c *Commands) Register(command string, handler CommandFunc) {
	c.handlers[command] = handler
	c.logger.Info().Str("command", command).Msg("Command registered")
}

// SendResponse replies to the command's chat.
func (c *Commands) SendResponse(ctx CommandContext, text string) error {
	return c.bot.SendMessage(ctx.ChatID, text)
}

// RegisteredCommands returns the sorted command names.
func (c *Commands) RegisteredCommands() []string {
	names := make([]string, 0, len(c.handlers))
	for cmd := range c.handlers {
		names = append(names, cmd)
	}
	sort.Strings(names)
	return names
}

// SetCommands publishes the command list to Telegram's menu.
func (c *Commands) SetCommands() error {
	var commands []tgbotapi.BotCommand
	descriptions := map[string]string{
		"start":   "Pair with the assistant",
		"help":    "Show help",
		"status":  "Show system status",
		"modules": "List capability modules",
		"logs":    "Show recent action log",
	}
	for _, name := range c.RegisteredCommands() {
		desc := descriptions[name]
		if desc == "" {
			desc = name
		}
		commands = append(commands, tgbotapi.BotCommand{Command: name, Description: desc})
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := c.bot.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	return nil
}
