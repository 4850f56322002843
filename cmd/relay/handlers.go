package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/budget"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/heartbeat"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/internal/providers"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/telegram"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/internal/usage"
	"github.com/haasonsaas/relay/pkg/models"
)

// =============================================================================
// Wiring
// =============================================================================

// app holds the wired runtime shared by every command.
type app struct {
	cfg       *config.Config
	engine    *policy.Engine
	registry  *tools.Registry
	router    *providers.Router
	store     *sessions.Store
	estimator *usage.Estimator
	logger    *observability.Logger
	loop      *agent.Loop
}

// newApp loads configuration and wires the runtime. Provider adapters are
// registered only when their credentials are present; commands that need a
// missing provider fail at call time with a classified error.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(observability.Config{
		Level: "info",
		Path:  filepath.Join("logs", "app.log"),
	})
	if err != nil {
		return nil, err
	}

	engine := policy.NewEngine(root)
	registry := tools.DefaultRegistry(engine)

	router := providers.NewRouter()
	if strings.TrimSpace(cfg.GrokAPIKey) != "" {
		grok, err := providers.NewGrok(cfg.GrokAPIKey, cfg.GrokBaseURL, cfg.GrokModel)
		if err != nil {
			logger.Close()
			return nil, err
		}
		router.Register(grok)
	}
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		anthropic, err := providers.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			logger.Close()
			return nil, err
		}
		router.Register(anthropic)
	}

	store := sessions.NewStore(filepath.Join("data", "sessions"))
	estimator := usage.NewEstimator(cfg.CostRates)
	loop := agent.NewLoop(router, registry, logger)

	return &app{
		cfg:       cfg,
		engine:    engine,
		registry:  registry,
		router:    router,
		store:     store,
		estimator: estimator,
		logger:    logger,
		loop:      loop,
	}, nil
}

func (a *app) Close() {
	a.logger.Close()
}

// requireProviderFor checks credentials before a model-bound command runs, so
// the failure names the missing key instead of an unknown provider.
func (a *app) requireProviderFor(provider string, purpose models.Purpose) error {
	if provider == "" {
		provider = providers.DefaultProvider(purpose)
	}
	if provider == providers.ProviderAnthropic {
		if strings.TrimSpace(a.cfg.AnthropicAPIKey) == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY", config.ErrMissingEnv)
		}
		return nil
	}
	return a.cfg.RequireGrok()
}

// =============================================================================
// Chat
// =============================================================================

type chatResult struct {
	Text         string       `json:"text"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	FinishReason string       `json:"finish_reason"`
	Usage        models.Usage `json:"usage"`
	CostUSD      *float64     `json:"cost_usd,omitempty"`
	Session      string       `json:"session,omitempty"`
}

func runChat(cmd *cobra.Command, args []string, opts chatOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.maxStepsAlias > 0 {
		opts.maxSteps = opts.maxStepsAlias
	}
	purpose := models.PurposeDefault
	if opts.dev {
		purpose = models.PurposeDev
	}
	if err := a.requireProviderFor(opts.provider, purpose); err != nil {
		return err
	}

	var session *models.Session
	var history []models.Message
	if opts.session != "" {
		session, err = a.store.GetOrCreate(opts.session)
		if err != nil {
			return err
		}
		history = session.Messages
	}

	messages := append([]models.Message(nil), history...)
	if len(messages) == 0 && opts.system != "" {
		messages = append(messages, models.SystemMessage(opts.system))
	}
	messages = append(messages, models.UserMessage(strings.Join(args, " ")))

	req := &models.LlmRequest{
		Provider:        opts.provider,
		Model:           opts.model,
		Messages:        messages,
		MaxOutputTokens: opts.maxOutputTokens,
		Purpose:         purpose,
	}

	ctx := cmd.Context()
	var final *models.LlmResponse
	var usageTotal models.Usage

	if opts.toolloop {
		result, err := a.loop.Run(ctx, req, agent.RunOptions{
			Limits: budget.Limits{
				MaxSteps:     opts.maxSteps,
				MaxToolCalls: opts.maxToolCalls,
			},
			Approve: stdinApprover(cmd.InOrStdin(), cmd.ErrOrStderr(), opts.yes),
		})
		if err != nil {
			return err
		}
		final = result.Final
		usageTotal = result.Usage
		messages = result.Messages
	} else {
		// A plain turn never offers tools.
		resp, err := a.router.Chat(ctx, req)
		if err != nil {
			return err
		}
		final = resp
		usageTotal = resp.Usage
		messages = append(messages, resp.Message)
	}

	if session != nil {
		session.Messages = messages
		if err := a.store.Save(session); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		result := chatResult{
			Text:         final.Text,
			Provider:     final.Provider,
			Model:        final.Model,
			FinishReason: string(final.FinishReason),
			Usage:        usageTotal,
			Session:      opts.session,
		}
		if cost, ok := a.estimator.EstimateUSD(final.Provider, usageTotal); ok {
			result.CostUSD = &cost
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	fmt.Fprintln(out, final.Text)
	line := fmt.Sprintf("usage: %d in / %d out / %d total tokens",
		usageTotal.InputTokens, usageTotal.OutputTokens, usageTotal.TotalTokens)
	if cost, ok := a.estimator.EstimateUSD(final.Provider, usageTotal); ok {
		line += fmt.Sprintf(" (~$%.4f)", cost)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), line)
	return nil
}

// stdinApprover prompts on standard input for each tool call. With autoReads,
// read-classified tools pass without a prompt; writes always confirm.
func stdinApprover(in io.Reader, out io.Writer, autoReads bool) agent.ApproveFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, call models.ToolCall) (bool, error) {
		if autoReads && policy.ClassifyTool(call.Name) == policy.KindRead {
			return true, nil
		}
		preview := strings.TrimSpace(string(call.Arguments))
		if preview == "" {
			preview = "{}"
		}
		fmt.Fprintf(out, "Approve %s %s? [y/N] ", call.Name, preview)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			// EOF means no operator; treat as denial rather than aborting.
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// =============================================================================
// Manual Tool Execution
// =============================================================================

func runTool(cmd *cobra.Command, tool, path, content string, overwrite bool, rawArgs string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var argsJSON []byte
	if strings.TrimSpace(rawArgs) != "" {
		if !json.Valid([]byte(rawArgs)) {
			return fmt.Errorf("--args is not valid JSON")
		}
		argsJSON = []byte(rawArgs)
	} else {
		argsMap := map[string]any{}
		if path != "" {
			argsMap["path"] = path
		}
		if content != "" {
			argsMap["content"] = content
		}
		if overwrite {
			argsMap["overwrite"] = true
		}
		argsJSON, err = json.Marshal(argsMap)
		if err != nil {
			return err
		}
	}

	call := models.ToolCall{ID: uuid.NewString(), Name: tool, Arguments: argsJSON}
	result := a.registry.Execute(cmd.Context(), call, models.PurposeDefault)
	fmt.Fprintln(cmd.OutOrStdout(), result.JSON())
	if !result.OK {
		return errors.New(result.Error)
	}
	return nil
}

// =============================================================================
// Sessions
// =============================================================================

func runSessionsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMESSAGES\tSIZE\tUPDATED")
	for _, info := range infos {
		updated := "-"
		if !info.UpdatedAt.IsZero() {
			updated = info.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", info.ID, info.MessageCount, info.Size, updated)
	}
	return w.Flush()
}

func runSessionsExport(cmd *cobra.Command, id string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	markdown, err := a.store.ExportMarkdown(id)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), markdown)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, id string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Delete(id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s.\n", id)
	return nil
}

func runSessionsPrune(cmd *cobra.Command, days int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.store.PruneOlderThan(days)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
		return nil
	}
	for _, id := range deleted {
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s\n", id)
	}
	return nil
}

// =============================================================================
// Bot
// =============================================================================

func runBot(cmd *cobra.Command, system string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireTelegram(); err != nil {
		return err
	}
	if err := a.cfg.RequireGrok(); err != nil {
		return err
	}

	b := telegram.New(a.cfg.Telegram, a.loop, a.store, a.estimator, a.logger, telegram.Options{
		SystemPrompt: system,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(cmd.OutOrStdout(), "Bot running. Press Ctrl+C to stop.")
	return b.Run(ctx)
}

// =============================================================================
// Heartbeat
// =============================================================================

func runHeartbeat(cmd *cobra.Command, provider, model string, jsonOut bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireProviderFor(provider, models.PurposeHeartbeat); err != nil {
		return err
	}

	runner := heartbeat.NewRunner(a.router, a.logger)
	report, err := runner.Ping(cmd.Context(), provider, model)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	fmt.Fprintf(out, "%s from %s/%s in %dms (%d tokens)\n",
		strings.TrimSpace(report.Text), report.Provider, report.Model, report.Ms, report.Usage.TotalTokens)
	return nil
}
