// Package telegram runs the chat-bot surface: each Telegram chat maps to one
// session, turns are serialized per chat, and tool calls that need a human
// decision are confirmed through inline approve/deny buttons.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/budget"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/policy"
	"github.com/haasonsaas/relay/internal/sessions"
	"github.com/haasonsaas/relay/internal/usage"
	"github.com/haasonsaas/relay/pkg/models"
)

const (
	// queueDepth bounds how many turns a single chat may have waiting.
	queueDepth = 8

	// maxArgsPreview bounds the argument excerpt shown in approval prompts.
	maxArgsPreview = 300

	helpText = `I'm a relay assistant with file and shell tools.

Commands:
/help - this message
/id - show this chat's id
/reset - forget the conversation
/dev <text> - run with the dev profile (admins only)

Anything else is sent to the model.`
)

// Options tune one bot instance beyond what the environment provides.
type Options struct {
	SystemPrompt    string
	Limits          budget.Limits
	MaxOutputTokens int
	KeepLastN       int
}

// Bot is the Telegram front-end over the scheduler.
type Bot struct {
	cfg       config.Telegram
	loop      *agent.Loop
	store     *sessions.Store
	estimator *usage.Estimator
	logger    *observability.Logger
	opts      Options

	pending *pendingApprovals
	sends   *rate.Limiter

	mu       sync.Mutex
	lastSeen map[int64]time.Time
	queues   map[int64]chan func()

	api    *bot.Bot
	runCtx context.Context
}

// New wires a bot. The token is validated when Run connects.
func New(cfg config.Telegram, loop *agent.Loop, store *sessions.Store, estimator *usage.Estimator, logger *observability.Logger, opts Options) *Bot {
	if opts.Limits.MaxSteps <= 0 {
		opts.Limits = budget.Limits{MaxSteps: 8, MaxToolCalls: 16, MaxWrites: 4}
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = 1024
	}
	ttl := time.Duration(cfg.ApprovalTTLSeconds) * time.Second
	return &Bot{
		cfg:       cfg,
		loop:      loop,
		store:     store,
		estimator: estimator,
		logger:    logger,
		opts:      opts,
		pending:   newPendingApprovals(ttl),
		sends:     rate.NewLimiter(rate.Limit(1), 3),
		lastSeen:  make(map[int64]time.Time),
		queues:    make(map[int64]chan func()),
	}
}

// Run connects to Telegram and blocks on long polling until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	api, err := bot.New(b.cfg.BotToken,
		bot.WithDefaultHandler(b.handleMessage),
		bot.WithCallbackQueryDataHandler("approve:", bot.MatchTypePrefix, b.handleCallback),
		bot.WithCallbackQueryDataHandler("deny:", bot.MatchTypePrefix, b.handleCallback),
	)
	if err != nil {
		return fmt.Errorf("telegram: connect: %w", err)
	}
	b.api = api
	b.runCtx = ctx
	b.logger.Info(ctx, "bot_started", observability.Fields{})
	api.Start(ctx)
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}
	if !b.chatAllowed(chatID) {
		b.logger.Warn(ctx, "bot_unauthorized", observability.Fields{
			Details: map[string]any{"chat_id": chatID},
		})
		return
	}

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, chatID, text)
		return
	}

	if wait := b.cooldownRemaining(chatID); wait > 0 {
		b.sendText(ctx, chatID, fmt.Sprintf("⏳ Slow down — try again in %ds.", int(wait.Seconds())+1))
		return
	}
	b.touch(chatID)
	b.enqueue(chatID, text, models.PurposeDefault)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, text string) {
	cmd, rest, _ := strings.Cut(text, " ")
	// Strip the @botname suffix groups append to commands.
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	switch cmd {
	case "/start", "/help":
		b.sendText(ctx, chatID, helpText)
	case "/id":
		b.sendText(ctx, chatID, fmt.Sprintf("Chat id: %d", chatID))
	case "/reset":
		if err := b.store.Delete(sessionID(chatID)); err != nil {
			b.sendError(ctx, chatID, err)
			return
		}
		b.sendText(ctx, chatID, "Session reset.")
	case "/dev":
		if !b.chatAdmin(chatID) {
			b.sendText(ctx, chatID, "❗ Error: /dev requires admin access.")
			return
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			b.sendText(ctx, chatID, "Usage: /dev <text>")
			return
		}
		b.enqueue(chatID, rest, models.PurposeDev)
	default:
		b.sendText(ctx, chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	q := update.CallbackQuery
	if q == nil {
		return
	}
	if !b.chatAllowed(q.From.ID) {
		return
	}
	action, key, ok := strings.Cut(q.Data, ":")
	if !ok {
		return
	}
	approved := action == "approve"
	notice := "Denied."
	if approved {
		notice = "Approved."
	}
	if !b.pending.resolve(key, approved) {
		notice = "Expired."
	}
	b.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: q.ID,
		Text:            notice,
	})
}

// enqueue hands a turn to the chat's worker so turns for one session never
// interleave. A full queue is reported instead of dropped silently.
func (b *Bot) enqueue(chatID int64, text string, purpose models.Purpose) {
	queue := b.queue(chatID)
	job := func() { b.turn(b.runCtx, chatID, text, purpose) }
	select {
	case queue <- job:
	default:
		b.sendText(b.runCtx, chatID, "❗ Error: too many queued messages, try again shortly.")
	}
}

func (b *Bot) queue(chatID int64) chan func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[chatID]; ok {
		return q
	}
	q := make(chan func(), queueDepth)
	b.queues[chatID] = q
	go func() {
		for {
			select {
			case <-b.runCtx.Done():
				return
			case job := <-q:
				job()
			}
		}
	}()
	return q
}

// turn runs one full scheduler pass for a chat message and persists the
// updated session.
func (b *Bot) turn(ctx context.Context, chatID int64, text string, purpose models.Purpose) {
	id := sessionID(chatID)
	session, err := b.store.GetOrCreate(id)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	messages := append([]models.Message(nil), session.Messages...)
	if len(messages) == 0 && b.opts.SystemPrompt != "" {
		messages = append(messages, models.SystemMessage(b.opts.SystemPrompt))
	}
	messages = append(messages, models.UserMessage(text))

	req := &models.LlmRequest{
		Messages:        messages,
		MaxOutputTokens: b.opts.MaxOutputTokens,
		Purpose:         purpose,
	}

	start := time.Now()
	result, err := b.loop.Run(ctx, req, agent.RunOptions{
		Limits:    b.opts.Limits,
		KeepLastN: b.opts.KeepLastN,
		Approve:   b.approver(chatID),
	})
	if err != nil {
		b.logger.Error(ctx, "error", observability.Fields{
			Session: id, Purpose: string(purpose), Err: err,
			Ms: time.Since(start).Milliseconds(),
		})
		b.sendError(ctx, chatID, err)
		return
	}

	session.Messages = result.Messages
	if err := b.store.Save(session); err != nil {
		b.logger.Error(ctx, "error", observability.Fields{Session: id, Err: err})
	}

	reply := strings.TrimSpace(result.Final.Text)
	if reply == "" {
		reply = "(no output)"
	}
	if b.cfg.ShowUsage {
		reply += "\n\n" + b.usageLine(result.Final.Provider, result.Usage)
	}
	b.sendText(ctx, chatID, reply)
}

// approver gates tool calls for one chat: reads pass, writes require an admin
// chat, and everything else waits on an inline approve/deny button press.
func (b *Bot) approver(chatID int64) agent.ApproveFunc {
	return func(ctx context.Context, call models.ToolCall) (bool, error) {
		kind := policy.ClassifyTool(call.Name)
		if kind == policy.KindRead {
			return true, nil
		}
		if kind == policy.KindWrite && !b.chatAdmin(chatID) {
			return false, nil
		}

		key, ch := b.pending.create()
		prompt := fmt.Sprintf("🔧 Run %s?\n%s", call.Name, previewArgs(call.Arguments))
		markup := &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{{
				{Text: "✅ Approve", CallbackData: "approve:" + key},
				{Text: "❌ Deny", CallbackData: "deny:" + key},
			}},
		}
		if err := b.send(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        prompt,
			ReplyMarkup: markup,
		}); err != nil {
			b.pending.drop(key)
			return false, err
		}
		return b.pending.await(ctx, key, ch)
	}
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	for _, chunk := range chunkMessage(text, maxMessageChars) {
		if err := b.send(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			b.logger.Error(ctx, "error", observability.Fields{
				Err: err, Details: map[string]any{"chat_id": chatID},
			})
			return
		}
	}
}

func (b *Bot) send(ctx context.Context, params *bot.SendMessageParams) error {
	if err := b.sends.Wait(ctx); err != nil {
		return err
	}
	_, err := b.api.SendMessage(ctx, params)
	return err
}

func (b *Bot) sendError(ctx context.Context, chatID int64, err error) {
	b.sendText(ctx, chatID, "❗ Error: "+err.Error())
}

func (b *Bot) usageLine(provider string, u models.Usage) string {
	line := fmt.Sprintf("📊 %d in / %d out / %d total tokens", u.InputTokens, u.OutputTokens, u.TotalTokens)
	if cost, ok := b.estimator.EstimateUSD(provider, u); ok {
		line += fmt.Sprintf(" (~$%.4f)", cost)
	}
	return line
}

func (b *Bot) chatAllowed(chatID int64) bool {
	if len(b.cfg.AllowedChatIDs) == 0 {
		return true
	}
	return containsID(b.cfg.AllowedChatIDs, chatID)
}

func (b *Bot) chatAdmin(chatID int64) bool {
	return containsID(b.cfg.AdminChatIDs, chatID)
}

func (b *Bot) cooldownRemaining(chatID int64) time.Duration {
	if b.cfg.RateLimitSeconds <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	last, ok := b.lastSeen[chatID]
	if !ok {
		return 0
	}
	window := time.Duration(b.cfg.RateLimitSeconds) * time.Second
	if remaining := window - time.Since(last); remaining > 0 {
		return remaining
	}
	return 0
}

func (b *Bot) touch(chatID int64) {
	b.mu.Lock()
	b.lastSeen[chatID] = time.Now()
	b.mu.Unlock()
}

func sessionID(chatID int64) string {
	return fmt.Sprintf("tg-%d", chatID)
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func previewArgs(args []byte) string {
	preview := strings.TrimSpace(string(args))
	if preview == "" || preview == "{}" {
		return "(no arguments)"
	}
	if len(preview) > maxArgsPreview {
		preview = preview[:maxArgsPreview] + "…"
	}
	return preview
}
