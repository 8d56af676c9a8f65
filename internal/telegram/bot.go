// Package telegram is the chat transport: it receives webhook updates,
// feeds them through the conversation handler, and delivers replies.
// Proactive (scheduler-initiated) messages are throttled per user.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cookin/internal/config"
	"cookin/internal/conversation"
	"cookin/internal/messagelog"
	"cookin/internal/metrics"
	"cookin/internal/user"
)

// Bot wraps the Telegram API and the conversation handler.
type Bot struct {
	api          *tgbotapi.BotAPI
	handler      *conversation.Handler
	users        *user.Repository
	messages     *messagelog.Repository
	metricsStore *metrics.Store
	cfg          *config.Config
	logger       *slog.Logger
}

// NewBot initializes the Telegram bot and sets the webhook.
func NewBot(
	cfg *config.Config,
	handler *conversation.Handler,
	users *user.Repository,
	messages *messagelog.Repository,
	metricsStore *metrics.Store,
	logger *slog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("telegram bot authorized", "account", api.Self.UserName)

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.Info("telegram webhook set", "response", resp.Description)

	return &Bot{
		api:          api,
		handler:      handler,
		users:        users,
		messages:     messages,
		metricsStore: metricsStore,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// RegisterHandlers registers the webhook route on the mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn("failed to parse telegram update", "error", err)
		return
	}
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	go b.processMessage(update.Message)
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx := context.Background()

	if msg.Text == "/metrics" {
		if msg.From.ID != b.cfg.AdminTelegramID {
			b.deliver(ctx, msg.Chat.ID, userKey(msg.From.ID), "Access denied: admin only.")
			return
		}
		b.handleMetricsCommand(ctx, msg.Chat.ID)
		return
	}

	key := userKey(msg.From.ID)
	reply := b.handler.HandleInbound(ctx, key, msg.Text)
	b.deliver(ctx, msg.Chat.ID, key, reply)
}

// SendProactive delivers an assistant-initiated message, respecting the
// user's daily message cap. Replies to inbound messages are never
// throttled, only these.
func (b *Bot) SendProactive(ctx context.Context, key, text string) error {
	u, err := b.users.Get(ctx, key)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("unknown user %s", key)
	}

	count, err := b.messages.CountOutboundToday(ctx, key)
	if err != nil {
		return err
	}
	if u.MaxMessagesPerDay > 0 && count >= u.MaxMessagesPerDay {
		b.logger.Info("proactive message suppressed by daily cap",
			"user", key, "sent_today", count, "cap", u.MaxMessagesPerDay)
		return nil
	}

	chatID, err := chatIDFromKey(key)
	if err != nil {
		return err
	}
	b.deliver(ctx, chatID, key, text)
	return nil
}

// deliver sends the text in Telegram-sized chunks and logs it.
func (b *Bot) deliver(ctx context.Context, chatID int64, key, text string) {
	if text == "" {
		return
	}
	for _, chunk := range chunkText(text, maxMessageLen) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			b.logger.Error("failed to send telegram message", "chat", chatID, "error", err)
			return
		}
	}
	if err := b.messages.Log(ctx, key, messagelog.DirectionOutbound, text); err != nil {
		b.logger.Warn("failed to log outbound message", "user", key, "error", err)
	}
}

func (b *Bot) handleMetricsCommand(ctx context.Context, chatID int64) {
	usage, err := b.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		b.deliver(ctx, chatID, userKey(b.cfg.AdminTelegramID), "Error fetching metrics.")
		return
	}

	health := metrics.Snapshot(b.cfg.DatabasePath)

	var sb strings.Builder
	sb.WriteString("Usage & Health Report\n\n")
	sb.WriteString("Recent LLM activity:\n")
	if len(usage) == 0 {
		sb.WriteString("  no data yet\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("  %s: %d tokens (%d calls)\n",
			d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution))
	}
	sb.WriteString("\nSystem health:\n")
	sb.WriteString(fmt.Sprintf("  Uptime: %.1fh\n", health.UptimeHours))
	sb.WriteString(fmt.Sprintf("  Heap: %dMB alloc / %dMB sys\n", health.HeapAllocMB, health.HeapSysMB))
	sb.WriteString(fmt.Sprintf("  Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("  Database: %s\n", health.DatabaseSize))

	b.deliver(ctx, chatID, userKey(b.cfg.AdminTelegramID), sb.String())
}

// userKey is the stable identifier a Telegram account maps to in the
// user table.
func userKey(telegramID int64) string {
	return "tg:" + strconv.FormatInt(telegramID, 10)
}

func chatIDFromKey(key string) (int64, error) {
	raw, ok := strings.CutPrefix(key, "tg:")
	if !ok {
		return 0, fmt.Errorf("user %s has no telegram identity", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed telegram user key %s: %w", key, err)
	}
	return id, nil
}
