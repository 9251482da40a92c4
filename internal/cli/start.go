package cli

import (
	"fmt"

	"github.com/ilja/jarvis/internal/config"
	"github.com/ilja/jarvis/internal/daemon"
	"github.com/ilja/jarvis/internal/logger"
	"github.com/spf13/cobra"
)

var (
	startBot  bool
	startHTTP bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Jarvis daemon",
	Long: `Start the Jarvis daemon. It connects the configured transports
(Telegram, HTTP gateway) and runs until interrupted.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startBot, "bot", true, "enable the Telegram transport")
	startCmd.Flags().BoolVar(&startHTTP, "http", false, "enable the HTTP gateway")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flags override the config when given explicitly.
	if cmd.Flags().Changed("bot") {
		cfg.Telegram.Enabled = startBot
	}
	if cmd.Flags().Changed("http") {
		cfg.Gateway.Enabled = startHTTP
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w\nRun 'jarvis configure' to create one", err)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if pid, err := daemon.ReadPID(pidFile); err == nil && daemon.ProcessExists(pid) {
		return fmt.Errorf("daemon is already running (pid %d)", pid)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}

	fmt.Println("Starting Jarvis daemon...")
	return d.Run()
}

func buildLogger(cfg *config.Config) (*logger.Logger, error) {
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.File = cfg.Logging.File
	logCfg.Redaction = cfg.Logging.Redaction
	logCfg.MaxSize = cfg.Logging.MaxSize
	logCfg.MaxAge = cfg.Logging.MaxAge
	logCfg.Compress = cfg.Logging.Compress
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	return logger.New(logCfg)
}
