package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/ilja/jarvis/internal/config"
	"github.com/ilja/jarvis/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show whether the Jarvis daemon is running and for how long.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessExists(pid) {
		fmt.Println("Status: stopped")
		return nil
	}

	fmt.Println("Status: running")
	fmt.Printf("PID: %d\n", pid)

	// The PID file is written at startup, so its age is the uptime.
	if info, err := os.Stat(pidFile); err == nil {
		fmt.Printf("Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
