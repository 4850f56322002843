package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Command Tree
// =============================================================================

// chatOptions carries the chat command's flag values.
type chatOptions struct {
	session         string
	dev             bool
	system          string
	toolloop        bool
	maxSteps        int
	maxStepsAlias   int
	maxToolCalls    int
	maxOutputTokens int
	yes             bool
	jsonOut         bool
	provider        string
	model           string
}

func buildChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Run one assistant turn, optionally with the tool loop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.session, "session", "", "Session id to load and persist (empty: ephemeral)")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "Use the dev profile (Anthropic, higher temperature)")
	cmd.Flags().StringVar(&opts.system, "system", "", "System prompt for the first turn")
	cmd.Flags().BoolVar(&opts.toolloop, "toolloop", false, "Let the model call tools in a bounded loop")
	cmd.Flags().IntVar(&opts.maxSteps, "steps", 8, "Maximum model calls per run")
	cmd.Flags().IntVar(&opts.maxStepsAlias, "maxSteps", 0, "Alias for --steps")
	cmd.Flags().IntVar(&opts.maxToolCalls, "maxToolCalls", 16, "Maximum tool calls per run")
	cmd.Flags().IntVar(&opts.maxOutputTokens, "maxOutputTokens", 1024, "Output token cap per model call")
	cmd.Flags().BoolVar(&opts.yes, "yes", false, "Auto-approve reads and listings; writes still confirm")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit the result as JSON")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Provider override (grok, anthropic)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model override")
	return cmd
}

func buildToolCmd() *cobra.Command {
	var (
		tool      string
		path      string
		content   string
		overwrite bool
		rawArgs   string
	)
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "Execute a single tool call through the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, tool, path, content, overwrite, rawArgs)
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "Tool name (read_file, list_dir, write_file, calculator, run_cmd)")
	cmd.Flags().StringVar(&path, "path", "", "Path argument")
	cmd.Flags().StringVar(&content, "content", "", "Content argument for write_file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Allow write_file to replace an existing file")
	cmd.Flags().StringVar(&rawArgs, "args", "", "Raw JSON arguments (overrides the other argument flags)")
	cmd.MarkFlagRequired("tool")
	return cmd
}

func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}
	cmd.AddCommand(
		buildSessionsListCmd(),
		buildSessionsExportCmd(),
		buildSessionsDeleteCmd(),
		buildSessionsPruneCmd(),
	)
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE:  runSessionsList,
	}
}

func buildSessionsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export one session as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsExport(cmd, args[0])
		},
	}
}

func buildSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete one session document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(cmd, args[0])
		},
	}
}

func buildSessionsPruneCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions not updated within a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsPrune(cmd, days)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Delete sessions older than this many days")
	return cmd
}

func buildBotCmd() *cobra.Command {
	var system string
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, system)
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "System prompt for fresh bot sessions")
	return cmd
}

func buildHeartbeatCmd() *cobra.Command {
	var (
		provider string
		model    string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Ping the provider path and report latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeartbeat(cmd, provider, model, jsonOut)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Provider override (grok, anthropic)")
	cmd.Flags().StringVar(&model, "model", "", "Model override")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the report as JSON")
	return cmd
}
