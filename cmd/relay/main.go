// Package main provides the relay CLI: a policy-gated tool-loop assistant
// over Grok and Anthropic, with a terminal surface and a Telegram bot.
//
// # Basic Usage
//
// Run a tool-loop turn:
//
//	relay chat --toolloop "summarize notes/todo.md"
//
// Execute a single tool manually:
//
//	relay tool --tool read_file --path notes/todo.md
//
// Start the Telegram bot:
//
//	relay bot
//
// # Environment Variables
//
//   - GROK_API_KEY: xAI API key (required for the default provider)
//   - GROK_MODEL, GROK_BASE_URL: Grok model and endpoint overrides
//   - ANTHROPIC_API_KEY, ANTHROPIC_MODEL: Anthropic credentials (dev profile)
//   - TELEGRAM_BOT_TOKEN, TELEGRAM_ALLOWED_CHAT_IDS, TELEGRAM_ADMIN_CHAT_IDS
//   - TELEGRAM_RATE_LIMIT_SECONDS, TELEGRAM_APPROVAL_TTL_SECONDS
//   - TELEGRAM_SHOW_USAGE
//   - COST_<PROVIDER>_USD_PER_1M_IN|OUT: token pricing for cost estimates
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Policy-gated tool-loop assistant",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		buildChatCmd(),
		buildToolCmd(),
		buildSessionsCmd(),
		buildBotCmd(),
		buildHeartbeatCmd(),
	)
	return cmd
}
