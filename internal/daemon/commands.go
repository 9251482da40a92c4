package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ilja/jarvis/internal/telegram"
)

// registerTelegramCommands adds the slash commands that need access to
// the registry, audit log and daemon state.
func (d *Daemon) registerTelegramCommands() {
	commands := d.telegramHandler.Commands()

	commands.Register("status", func(ctx telegram.CommandContext) error {
		status := d.Status()
		var b strings.Builder
		b.WriteString("📊 Status\n")
		fmt.Fprintf(&b, "Running: %v\n", status.Running)
		fmt.Fprintf(&b, "Uptime: %s\n", status.Uptime.Round(time.Second))
		fmt.Fprintf(&b, "Modules: %d\n", status.Modules)
		if status.Owner != "" {
			fmt.Fprintf(&b, "Owner: %s\n", status.Owner)
		}
		return commands.SendResponse(ctx, b.String())
	})

	commands.Register("modules", func(ctx telegram.CommandContext) error {
		var b strings.Builder
		b.WriteString("🧩 Modules\n")
		for _, m := range d.registry.Modules() {
			state := "enabled"
			if !d.registry.Enabled(m.Name()) {
				state = "disabled"
			}
			fmt.Fprintf(&b, "%s (%s): %s, %d capabilities\n",
				m.Name(), state, m.Description(), len(m.Capabilities()))
		}
		return commands.SendResponse(ctx, b.String())
	})

	commands.Register("logs", func(ctx telegram.CommandContext) error {
		reqCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		records, err := d.auditStore.Recent(reqCtx, 10)
		if err != nil {
			return commands.SendResponse(ctx, "Could not read the audit log: "+err.Error())
		}
		if len(records) == 0 {
			return commands.SendResponse(ctx, "The audit log is empty.")
		}

		var b strings.Builder
		b.WriteString("📜 Recent actions\n")
		for _, rec := range records {
			fmt.Fprintf(&b, "%s %s: %s\n",
				rec.Timestamp.Format("Jan 2 15:04"), rec.Capability, rec.Outcome)
		}
		return commands.SendResponse(ctx, b.String())
	})
}
