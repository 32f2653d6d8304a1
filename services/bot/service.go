package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"aimawatch-backend/lib/telegram"
	"aimawatch-backend/lib/timezone"
	"aimawatch-backend/lib/vault"
	"aimawatch-backend/services/checker"
	"aimawatch-backend/services/userstore"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/bot")

// API is the slice of the Bot API the front-end needs.
// *telegram.Client is the production implementation.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string) (telegram.Message, error)
	SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard telegram.InlineKeyboardMarkup) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int64) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error
}

var commandList = []string{"/start", "/status", "/stop", "/delete", "/help", "/cancel"}

type Service struct {
	api     API
	checker checker.Service
	store   userstore.Service

	// one live conversation per chat; updates arrive sequentially
	// from the poller, the mutex only guards the map itself
	mu            sync.Mutex
	conversations map[int64]*conversation
}

func NewService(api API, checkerService checker.Service, store userstore.Service) *Service {
	return &Service{
		api:           api,
		checker:       checkerService,
		store:         store,
		conversations: make(map[int64]*conversation),
	}
}

// HandleUpdate implements telegram.Handler. Message text never goes
// into spans, registration messages contain credentials.
func (s *Service) HandleUpdate(ctx context.Context, update telegram.Update) {
	ctx, span := tracer.Start(ctx, "HandleUpdate")
	defer span.End()

	switch {
	case update.MyChatMember != nil:
		span.SetAttributes(attribute.String("update", "my_chat_member"))
		s.handleChatMember(ctx, *update.MyChatMember)
	case update.CallbackQuery != nil:
		span.SetAttributes(attribute.String("update", "callback_query"))
		s.handleCallback(ctx, *update.CallbackQuery)
	case update.Message != nil:
		span.SetAttributes(attribute.String("update", "message"))
		s.handleMessage(ctx, *update.Message)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg telegram.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		s.handleCommand(ctx, msg, text)
		return
	}

	conv := s.conversation(chatID)
	if conv == nil {
		s.reply(ctx, chatID, "I didn't understand that. Use /help to see what I can do.")
		return
	}
	switch conv.state {
	case awaitingEmail:
		s.receiveEmail(ctx, chatID, conv, text)
	case awaitingPassword:
		s.receivePassword(ctx, chatID, conv, msg)
	}
}

func (s *Service) handleCommand(ctx context.Context, msg telegram.Message, text string) {
	chatID := msg.Chat.ID
	command, _, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")

	switch command {
	case "/start":
		firstName := ""
		if msg.From != nil {
			firstName = msg.From.FirstName
		}
		s.startRegistration(ctx, chatID, firstName)
	case "/cancel":
		s.cancelRegistration(ctx, chatID)
	case "/status":
		s.statusCommand(ctx, chatID)
	case "/stop":
		s.stopCommand(ctx, chatID)
	case "/delete":
		s.deleteCommand(ctx, chatID)
	case "/help":
		s.reply(ctx, chatID, helpText)
	default:
		s.unknownCommand(ctx, chatID, command)
	}
}

func (s *Service) statusCommand(ctx context.Context, chatID int64) {
	user, ok, err := s.store.Get(ctx, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load user", "chat_id", chatID, "err", err)
		s.reply(ctx, chatID, "Something went wrong. Please try again later.")
		return
	}
	if !ok {
		s.reply(ctx, chatID, "You haven't set up your credentials yet.\nUse /start to get started.")
		return
	}

	progress, err := s.api.SendMessage(ctx, chatID, "Checking... ⏳")
	if err != nil {
		slog.WarnContext(ctx, "failed to send progress message", "chat_id", chatID, "err", err)
		return
	}

	status, err := s.checker.CheckNow(ctx, user)
	now := timezone.Now()
	if errors.Is(err, vault.ErrDecrypt) {
		s.edit(ctx, chatID, progress.MessageID,
			"❌ Error decrypting your credentials.\nPlease set up again with /start")
		return
	}
	if err != nil {
		s.edit(ctx, chatID, progress.MessageID, fmt.Sprintf(
			"❌ Error: %s\n\nTime: %s",
			checker.HumanError(err), timezone.FormatRelative(now, now)))
		return
	}
	s.edit(ctx, chatID, progress.MessageID, fmt.Sprintf(
		"✅ Current Status:\n\n%s\n\nLast checked: %s",
		status.Text, timezone.FormatRelative(status.CheckedAt, now)))
}

func (s *Service) stopCommand(ctx context.Context, chatID int64) {
	_, ok, err := s.store.Get(ctx, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load user", "chat_id", chatID, "err", err)
		s.reply(ctx, chatID, "Something went wrong. Please try again later.")
		return
	}
	if !ok {
		s.reply(ctx, chatID, "You don't have any active monitoring.")
		return
	}

	err = s.store.SetPeriodic(ctx, chatID, false)
	if err != nil {
		slog.ErrorContext(ctx, "failed to disable periodic checks", "chat_id", chatID, "err", err)
		s.reply(ctx, chatID, "Something went wrong. Please try again later.")
		return
	}

	s.reply(ctx, chatID,
		"✅ Periodic checks disabled.\n\n"+
			"Your credentials are still saved.\n"+
			"You can check status anytime with /status\n"+
			"To re-enable periodic checks, use /start\n"+
			"To completely delete your data, use /delete")
}

func (s *Service) deleteCommand(ctx context.Context, chatID int64) {
	_, ok, err := s.store.Get(ctx, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load user", "chat_id", chatID, "err", err)
		s.reply(ctx, chatID, "Something went wrong. Please try again later.")
		return
	}
	if !ok {
		s.reply(ctx, chatID, "You don't have any data stored.")
		return
	}

	err = s.store.Delete(ctx, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete user", "chat_id", chatID, "err", err)
		s.reply(ctx, chatID, "Something went wrong. Please try again later.")
		return
	}
	slog.InfoContext(ctx, "user deleted their data", "chat_id", chatID)

	s.reply(ctx, chatID,
		"🗑️ Your data has been completely deleted.\n\n"+
			"All your credentials and settings have been removed from our database.\n\n"+
			"You can use /start again if you want to set up monitoring in the future.")
}

func (s *Service) unknownCommand(ctx context.Context, chatID int64, command string) {
	var mostSimilarity float64
	var mostSimilar string
	for _, known := range commandList {
		similarity := matchr.JaroWinkler(command, known, false)
		if similarity > mostSimilarity {
			mostSimilarity = similarity
			mostSimilar = known
		}
	}

	if mostSimilarity > 0.8 {
		s.reply(ctx, chatID, fmt.Sprintf("Unknown command. Did you mean %s?", mostSimilar))
		return
	}
	s.reply(ctx, chatID, "Unknown command. Use /help to see available commands.")
}

// handleChatMember deletes a user's row when they block or remove the
// bot. The notification channel is gone and stored credentials would
// only be a liability.
func (s *Service) handleChatMember(ctx context.Context, change telegram.ChatMemberUpdated) {
	oldStatus := change.OldChatMember.Status
	newStatus := change.NewChatMember.Status
	wasMember := oldStatus == "member" || oldStatus == "administrator"
	isGone := newStatus == "kicked" || newStatus == "left"
	if !wasMember || !isGone {
		return
	}

	chatID := change.From.ID
	_, ok, err := s.store.Get(ctx, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load user", "chat_id", chatID, "err", err)
		return
	}
	if !ok {
		return
	}

	err = s.store.Delete(ctx, chatID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete blocked user", "chat_id", chatID, "err", err)
		return
	}
	slog.InfoContext(ctx, "user blocked the bot, data deleted", "chat_id", chatID)
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	_, err := s.api.SendMessage(ctx, chatID, text)
	if err != nil {
		slog.WarnContext(ctx, "failed to send reply", "chat_id", chatID, "err", err)
	}
}

func (s *Service) edit(ctx context.Context, chatID int64, messageID int64, text string) {
	err := s.api.EditMessageText(ctx, chatID, messageID, text)
	if err != nil {
		slog.WarnContext(ctx, "failed to edit message", "chat_id", chatID, "err", err)
	}
}

const helpText = `🤖 AIMA Status Checker Bot

I help you monitor your AIMA application status automatically.

Available Commands:
/start - Set up your credentials and begin monitoring
/status - Check your application status right now
/stop - Disable automatic periodic checks
/delete - Permanently delete all your data
/help - Show this help message
/cancel - Cancel current operation

How It Works:
1️⃣ Use /start to securely save your AIMA credentials
2️⃣ Choose to enable periodic monitoring
3️⃣ Receive instant notifications when your status changes
4️⃣ Get scheduled updates at 10 AM and 7 PM (Lisbon time)

Privacy & Security:
🔒 Your credentials are encrypted before they are stored
🗑️ Use /delete to remove all your data anytime
🔄 Data is auto-deleted if you block the bot

Monitoring Schedule:
• Checks every hour with smart distribution
• Immediate notification on status changes
• Daily updates at 10 AM & 7 PM if no changes`
