package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/ilja/jarvis/internal/config"
	"github.com/ilja/jarvis/internal/daemon"
	"github.com/spf13/cobra"
)

var stopTimeout int

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Jarvis daemon",
	Long: `Stop the Jarvis daemon gracefully.
Sends SIGTERM and waits for it to shut down.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "seconds to wait before SIGKILL")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	pid, err := daemon.ReadPID(pidFile)
	if err != nil || !daemon.ProcessExists(pid) {
		fmt.Println("Daemon is not running")
		return nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.ProcessExists(pid) {
			fmt.Println("Daemon stopped")
			os.Remove(pidFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}
	os.Remove(pidFile)
	fmt.Println("Daemon killed")
	return nil
}
