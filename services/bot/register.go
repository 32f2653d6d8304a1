package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"aimawatch-backend/lib/aima"
	"aimawatch-backend/lib/telegram"
	"aimawatch-backend/lib/timezone"
)

type conversationState int

const (
	awaitingEmail conversationState = iota
	awaitingPassword
)

type conversation struct {
	state conversationState
	email string
}

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (s *Service) conversation(chatID int64) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[chatID]
}

func (s *Service) setConversation(chatID int64, conv *conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[chatID] = conv
}

func (s *Service) clearConversation(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, chatID)
}

func (s *Service) startRegistration(ctx context.Context, chatID int64, firstName string) {
	s.setConversation(chatID, &conversation{state: awaitingEmail})

	greeting := "Hello! 👋"
	if firstName != "" {
		greeting = fmt.Sprintf("Hello %s! 👋", firstName)
	}
	s.reply(ctx, chatID, greeting+"\n\n"+
		"I can help you check your AIMA application status automatically.\n\n"+
		"First, I need your AIMA login credentials.\n"+
		"🔒 Don't worry - they will be encrypted and stored securely.\n\n"+
		"Please send me your email address:\n\n"+
		"💡 Tip: Use /help to see all available commands")
}

func (s *Service) cancelRegistration(ctx context.Context, chatID int64) {
	if s.conversation(chatID) == nil {
		s.reply(ctx, chatID, "Nothing to cancel. Use /start to begin.")
		return
	}
	s.clearConversation(chatID)
	s.reply(ctx, chatID, "Setup cancelled. Use /start to begin again.")
}

func (s *Service) receiveEmail(ctx context.Context, chatID int64, conv *conversation, text string) {
	if !emailRegex.MatchString(text) {
		s.reply(ctx, chatID, "That doesn't look like a valid email address.\nPlease try again:")
		return
	}
	conv.email = text
	conv.state = awaitingPassword
	s.reply(ctx, chatID, "Great! Now please send me your password:")
}

func (s *Service) receivePassword(ctx context.Context, chatID int64, conv *conversation, msg telegram.Message) {
	creds := aima.Credentials{Email: conv.email, Password: msg.Text}
	s.clearConversation(chatID)

	// the password must not stay visible in the chat history
	err := s.api.DeleteMessage(ctx, chatID, msg.MessageID)
	if err != nil {
		slog.WarnContext(ctx, "failed to delete password message", "chat_id", chatID, "err", err)
	}

	progress, err := s.api.SendMessage(ctx, chatID, "Checking your credentials... ⏳")
	if err != nil {
		slog.WarnContext(ctx, "failed to send progress message", "chat_id", chatID, "err", err)
		return
	}

	status, err := s.checker.VerifyCredentials(ctx, creds)
	if err != nil {
		s.edit(ctx, chatID, progress.MessageID, fmt.Sprintf(
			"❌ Error: %s\n\nPlease check your credentials and try again with /start",
			verifyErrorText(err)))
		return
	}

	emailCipher, passwordCipher, err := s.checker.EncryptCredentials(chatID, creds)
	if err == nil {
		err = s.store.CreateOrUpdate(ctx, chatID, emailCipher, passwordCipher)
	}
	if err == nil {
		err = s.store.UpdateLastStatus(ctx, chatID, status.Text, status.CheckedAt)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to store credentials", "chat_id", chatID, "err", err)
		s.edit(ctx, chatID, progress.MessageID, "❌ Error saving your credentials. Please try again later.")
		return
	}

	s.edit(ctx, chatID, progress.MessageID, fmt.Sprintf(
		"✅ Status Retrieved Successfully!\n\n%s\n\nLast checked: %s",
		status.Text, timezone.FormatRelative(status.CheckedAt, timezone.Now())))

	keyboard := telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "Yes ✅", CallbackData: "periodic_yes"},
			{Text: "No ❌", CallbackData: "periodic_no"},
		}},
	}
	_, err = s.api.SendMessageWithKeyboard(ctx, chatID,
		"Would you like me to check your status periodically and notify you of any changes?",
		keyboard)
	if err != nil {
		slog.WarnContext(ctx, "failed to send periodic prompt", "chat_id", chatID, "err", err)
	}
}

func (s *Service) handleCallback(ctx context.Context, query telegram.CallbackQuery) {
	err := s.api.AnswerCallbackQuery(ctx, query.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to answer callback query", "err", err)
	}

	if query.Data != "periodic_yes" && query.Data != "periodic_no" {
		return
	}

	chatID := query.From.ID
	if query.Message != nil {
		chatID = query.Message.Chat.ID
	}
	enabled := query.Data == "periodic_yes"

	err = s.store.SetPeriodic(ctx, chatID, enabled)
	if err != nil {
		slog.ErrorContext(ctx, "failed to set periodic flag", "chat_id", chatID, "err", err)
		s.respondToCallback(ctx, chatID, query.Message, "❌ Error saving your preference. Please try again later.")
		return
	}

	if enabled {
		s.respondToCallback(ctx, chatID, query.Message, periodicEnabledText)
	} else {
		s.respondToCallback(ctx, chatID, query.Message, periodicDisabledText)
	}
}

// respondToCallback edits the message that carried the inline keyboard,
// falling back to a fresh message when it is unavailable.
func (s *Service) respondToCallback(ctx context.Context, chatID int64, msg *telegram.Message, text string) {
	if msg != nil {
		s.edit(ctx, chatID, msg.MessageID, text)
		return
	}
	s.reply(ctx, chatID, text)
}

func verifyErrorText(err error) string {
	switch aima.KindOf(err) {
	case aima.ErrLoginFailed:
		return "Invalid email or password"
	case aima.ErrTimeout:
		return "The AIMA portal took too long to respond"
	case aima.ErrTransport:
		return "Could not reach the AIMA portal"
	case aima.ErrTokenNotFound, aima.ErrStatusRegionNotFound:
		return "Could not read the AIMA status page"
	default:
		return "An unexpected error occurred"
	}
}

const periodicEnabledText = "✅ Periodic checks enabled!\n\n" +
	"I will check your status every hour and notify you immediately if there are any changes.\n" +
	"Additionally, I'll send you updates at 10 AM and 7 PM (Lisbon time) even if there's no change.\n\n" +
	"Commands:\n" +
	"/status - Check status now\n" +
	"/stop - Disable periodic checks\n" +
	"/delete - Delete all your data"

const periodicDisabledText = "Periodic checks disabled.\n\n" +
	"You can still check your status anytime with /status\n" +
	"To enable periodic checks later, use /start again."
