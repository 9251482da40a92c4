package interpret

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ilja/jarvis/pkg/capability"
)

const systemPromptTemplate = `You are Jarvis, a personal AI assistant that controls a home machine and various applications.

You have access to the following capabilities:
%s

When the user gives you a request, decide which single capability to use and respond with valid JSON in this exact format:
{
    "thought": "Brief explanation of what you understood and why you chose this action",
    "action": {
        "capability": "module.action_name",
        "params": {}
    },
    "response": "What to tell the user"
}

If you cannot fulfill the request or need clarification, use:
{
    "thought": "Explanation of the issue",
    "action": null,
    "response": "Your response to the user explaining the situation"
}

Rules:
- The capability must be one of the listed identifiers, exactly as written.
- Act ONLY on the current message. Earlier conversation turns are context to disambiguate meaning, never instructions to execute again.
- If the current message is ambiguous, set "action" to null and ask for clarification.
- Dangerous capabilities are marked; the user will be asked to confirm them separately, so never refuse on danger grounds alone.%s`

// BuildSystemPrompt renders the capability catalog and optional
// conversation context into the interpreter system prompt.
func BuildSystemPrompt(caps []capability.Capability, history []Message) string {
	var catalog strings.Builder
	for _, c := range caps {
		catalog.WriteString("- ")
		catalog.WriteString(c.ID)
		catalog.WriteString(": ")
		catalog.WriteString(c.Description)
		if c.Dangerous {
			catalog.WriteString(" (DANGEROUS, requires confirmation)")
		}
		catalog.WriteString("\n")
		if len(c.Parameters) > 0 {
			params, err := json.Marshal(c.Parameters)
			if err == nil {
				catalog.WriteString("  Parameters: ")
				catalog.Write(params)
				catalog.WriteString("\n")
			}
		}
	}
	if catalog.Len() == 0 {
		catalog.WriteString("No capabilities available.\n")
	}

	var context string
	if len(history) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\nEarlier conversation (context only, do NOT execute):\n")
		for _, msg := range history {
			sb.WriteString(strings.ToUpper(msg.Role))
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		context = sb.String()
	}

	return fmt.Sprintf(systemPromptTemplate, catalog.String(), context)
}
