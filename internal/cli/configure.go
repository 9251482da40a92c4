package cli

import (
	"fmt"
	"os"

	"github.com/ilja/jarvis/internal/config"
	"github.com/spf13/cobra"
)

var configureForce bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with sensible defaults.
Edit it afterwards to add your AI provider API key and Telegram bot token,
or supply the token via the JARVIS_TELEGRAM_BOT_TOKEN environment variable.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.AI.Profiles = []config.AIProfile{
		{ID: "default", Provider: "anthropic", APIKey: "", Priority: 1},
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration saved to: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add your AI provider API key under ai.profiles")
	fmt.Println("  2. Add your Telegram bot token under telegram.bot_token")
	fmt.Println("  3. Start the daemon: jarvis start")
	return nil
}
