package telegram

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSplitMessage(t *testing.T) {
	t.Run("short message is one chunk", func(t *testing.T) {
		chunks := splitMessage("hello", maxMessageLength)
		assert.Equal(t, []string{"hello"}, chunks)
	})

	t.Run("empty message", func(t *testing.T) {
		chunks := splitMessage("", maxMessageLength)
		assert.Equal(t, []string{""}, chunks)
	})

	t.Run("long message splits", func(t *testing.T) {
		text := strings.Repeat("x", maxMessageLength+100)
		chunks := splitMessage(text, maxMessageLength)
		assert.Len(t, chunks, 2)
		assert.Len(t, chunks[0], maxMessageLength)
		assert.Equal(t, text, strings.Join(chunks, ""))
	})

	t.Run("prefers newline boundaries", func(t *testing.T) {
		line := strings.Repeat("a", 50) + "\n"
		text := strings.Repeat(line, 5)
		chunks := splitMessage(text, 120)
		assert.True(t, strings.HasSuffix(chunks[0], "\n"),
			"chunk should end at a line break, got %q tail", chunks[0][len(chunks[0])-5:])
		assert.Equal(t, text, strings.Join(chunks, ""))
	})
}

func TestRequesterID(t *testing.T) {
	assert.Equal(t, "telegram:12345", requesterID(12345))
}

func TestCommands_RegisteredCommandsSorted(t *testing.T) {
	c := &Commands{
		logger:   zerolog.Nop(),
		handlers: make(map[string]CommandFunc),
	}
	c.handlers["status"] = nil
	c.handlers["help"] = nil
	c.handlers["logs"] = nil

	assert.Equal(t, []string{"help", "logs", "status"}, c.RegisteredCommands())
}
