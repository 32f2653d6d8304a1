package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"aimawatch-backend/lib/aima"
	"aimawatch-backend/lib/telegram"
	"aimawatch-backend/lib/testutil"
	"aimawatch-backend/lib/timezone"
	"aimawatch-backend/lib/vault"
	"aimawatch-backend/services/checker"
	"aimawatch-backend/services/userstore"
	"aimawatch-backend/services/userstore/db"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiEvent struct {
	kind      string
	chatID    int64
	messageID int64
	text      string
}

type fakeAPI struct {
	mu        sync.Mutex
	events    []apiEvent
	nextMsgID int64
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID int64, text string) (telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.events = append(f.events, apiEvent{kind: "send", chatID: chatID, messageID: f.nextMsgID, text: text})
	return telegram.Message{MessageID: f.nextMsgID, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeAPI) SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard telegram.InlineKeyboardMarkup) (telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.events = append(f.events, apiEvent{kind: "keyboard", chatID: chatID, messageID: f.nextMsgID, text: text})
	return telegram.Message{MessageID: f.nextMsgID, Chat: telegram.Chat{ID: chatID}, Text: text}, nil
}

func (f *fakeAPI) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, apiEvent{kind: "edit", chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, chatID int64, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, apiEvent{kind: "delete", chatID: chatID, messageID: messageID})
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(ctx context.Context, callbackQueryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, apiEvent{kind: "answer"})
	return nil
}

func (f *fakeAPI) ofKind(kind string) []apiEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiEvent
	for _, event := range f.events {
		if event.kind == kind {
			out = append(out, event)
		}
	}
	return out
}

func (f *fakeAPI) lastOfKind(t *testing.T, kind string) apiEvent {
	events := f.ofKind(kind)
	require.NotEmpty(t, events, "no %q api calls recorded", kind)
	return events[len(events)-1]
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}

type scriptedExtractor struct {
	calls int
	check func(ctx context.Context, creds aima.Credentials) (aima.Status, error)
}

func (c *scriptedExtractor) Check(ctx context.Context, creds aima.Credentials) (aima.Status, error) {
	c.calls++
	return c.check(ctx, creds)
}

type nullNotifier struct{}

func (nullNotifier) SendMessage(ctx context.Context, chatID int64, text string) (telegram.Message, error) {
	return telegram.Message{}, nil
}

func unreachableCheck(ctx context.Context, creds aima.Credentials) (aima.Status, error) {
	return aima.Status{}, fmt.Errorf("the extractor should not run in this test")
}

type fixture struct {
	bot       *Service
	api       *fakeAPI
	store     userstore.Service
	extractor *scriptedExtractor
	msgID     int64
	ctx       context.Context
}

func setup(t *testing.T, check func(ctx context.Context, creds aima.Credentials) (aima.Status, error)) *fixture {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "bot",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	store := userstore.NewService(res.DB)
	extractor := &scriptedExtractor{check: check}
	checkerService := checker.NewService(extractor, store, nullNotifier{}, checker.Options{Secret: testSecret})
	api := &fakeAPI{}

	return &fixture{
		bot:       NewService(api, checkerService, store),
		api:       api,
		store:     store,
		extractor: extractor,
		ctx:       ctx,
	}
}

func (f *fixture) sendText(chatID int64, text string) {
	f.msgID++
	f.bot.HandleUpdate(f.ctx, telegram.Update{Message: &telegram.Message{
		MessageID: f.msgID,
		From:      &telegram.User{ID: chatID, FirstName: "Maria"},
		Chat:      telegram.Chat{ID: chatID},
		Text:      text,
	}})
}

func (f *fixture) pressButton(chatID int64, data string, keyboardMsgID int64) {
	f.bot.HandleUpdate(f.ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cbq-1",
		From: telegram.User{ID: chatID},
		Message: &telegram.Message{
			MessageID: keyboardMsgID,
			Chat:      telegram.Chat{ID: chatID},
		},
		Data: data,
	}})
}

func (f *fixture) registerUser(t *testing.T, chatID int64) {
	key := vault.DeriveKey(testSecret, chatID)
	emailCipher, err := vault.Encrypt(key, "maria@example.com")
	require.NoError(t, err)
	passwordCipher, err := vault.Encrypt(key, "hunter2")
	require.NoError(t, err)
	require.NoError(t, f.store.Create(f.ctx, chatID, emailCipher, passwordCipher))
}

func (f *fixture) mustGet(t *testing.T, chatID int64) userstore.User {
	user, ok, err := f.store.Get(f.ctx, chatID)
	require.NoError(t, err)
	require.True(t, ok)
	return user
}

func TestRegistrationFlow(t *testing.T) {
	f := setup(t, func(ctx context.Context, creds aima.Credentials) (aima.Status, error) {
		return aima.Status{Text: "Pedido em análise", CheckedAt: timezone.Now()}, nil
	})

	f.sendText(42, "/start")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "Hello Maria!")

	f.sendText(42, "not an email")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "doesn't look like a valid email")

	f.sendText(42, "maria@example.com")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "send me your password")

	f.api.reset()
	f.sendText(42, "hunter2")

	// the password message is wiped from the chat
	deletes := f.api.ofKind("delete")
	require.Len(t, deletes, 1)
	require.Equal(t, f.msgID, deletes[0].messageID)

	progress := f.api.ofKind("send")
	require.Len(t, progress, 1)
	require.Contains(t, progress[0].text, "Checking your credentials")

	edits := f.api.ofKind("edit")
	require.Len(t, edits, 1)
	require.Equal(t, progress[0].messageID, edits[0].messageID)
	require.Contains(t, edits[0].text, "✅ Status Retrieved Successfully!")
	require.Contains(t, edits[0].text, "Pedido em análise")

	prompt := f.api.lastOfKind(t, "keyboard")
	require.Contains(t, prompt.text, "periodically")

	// stored ciphertexts decrypt back to exactly what the user typed
	user := f.mustGet(t, 42)
	require.Equal(t, "Pedido em análise", user.LastStatus)
	require.False(t, user.PeriodicEnabled)
	key := vault.DeriveKey(testSecret, 42)
	email, err := vault.Decrypt(key, user.EmailCiphertext)
	require.NoError(t, err)
	require.Equal(t, "maria@example.com", email)
	password, err := vault.Decrypt(key, user.PasswordCiphertext)
	require.NoError(t, err)
	require.Equal(t, "hunter2", password)

	f.api.reset()
	f.pressButton(42, "periodic_yes", prompt.messageID)

	require.Len(t, f.api.ofKind("answer"), 1)
	confirm := f.api.lastOfKind(t, "edit")
	require.Equal(t, prompt.messageID, confirm.messageID)
	require.Contains(t, confirm.text, "Periodic checks enabled")
	require.Contains(t, confirm.text, "10 AM and 7 PM")
	require.True(t, f.mustGet(t, 42).PeriodicEnabled)
}

func TestRegistrationDecliningPeriodicChecks(t *testing.T) {
	f := setup(t, func(ctx context.Context, creds aima.Credentials) (aima.Status, error) {
		return aima.Status{Text: "Pendente", CheckedAt: timezone.Now()}, nil
	})

	f.sendText(42, "/start")
	f.sendText(42, "maria@example.com")
	f.sendText(42, "hunter2")
	prompt := f.api.lastOfKind(t, "keyboard")

	f.pressButton(42, "periodic_no", prompt.messageID)

	confirm := f.api.lastOfKind(t, "edit")
	require.Contains(t, confirm.text, "Periodic checks disabled")
	require.False(t, f.mustGet(t, 42).PeriodicEnabled)
}

func TestRegistrationRejectsBadCredentials(t *testing.T) {
	f := setup(t, func(ctx context.Context, creds aima.Credentials) (aima.Status, error) {
		return aima.Status{}, &aima.Error{Kind: aima.ErrLoginFailed, Detail: "redirected back to the login page"}
	})

	f.sendText(42, "/start")
	f.sendText(42, "maria@example.com")
	f.sendText(42, "wrong-password")

	edit := f.api.lastOfKind(t, "edit")
	require.Contains(t, edit.text, "❌ Error: Invalid email or password")
	require.Contains(t, edit.text, "try again with /start")

	// nothing was stored
	_, ok, err := f.store.Get(f.ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStatusCommand(t *testing.T) {
	f := setup(t, func(ctx context.Context, creds aima.Credentials) (aima.Status, error) {
		return aima.Status{Text: "Pendente", CheckedAt: timezone.Now()}, nil
	})
	f.registerUser(t, 42)

	f.sendText(42, "/status")

	require.Contains(t, f.api.lastOfKind(t, "send").text, "Checking... ⏳")
	edit := f.api.lastOfKind(t, "edit")
	require.Contains(t, edit.text, "✅ Current Status:")
	require.Contains(t, edit.text, "Pendente")
	require.Contains(t, edit.text, "Just now")

	require.Equal(t, "Pendente", f.mustGet(t, 42).LastStatus)
}

func TestStatusCommandWithoutRegistration(t *testing.T) {
	f := setup(t, unreachableCheck)

	f.sendText(42, "/status")

	require.Contains(t, f.api.lastOfKind(t, "send").text, "haven't set up your credentials")
	require.Zero(t, f.extractor.calls)
}

func TestStatusCommandDecryptFailure(t *testing.T) {
	f := setup(t, unreachableCheck)
	require.NoError(t, f.store.Create(f.ctx, 42, "junk", "more junk"))

	f.sendText(42, "/status")

	edit := f.api.lastOfKind(t, "edit")
	require.Contains(t, edit.text, "Error decrypting your credentials")
	require.Contains(t, edit.text, "/start")
	require.Zero(t, f.extractor.calls)
}

func TestStopCommand(t *testing.T) {
	f := setup(t, unreachableCheck)
	f.registerUser(t, 42)
	require.NoError(t, f.store.SetPeriodic(f.ctx, 42, true))

	f.sendText(42, "/stop")

	require.Contains(t, f.api.lastOfKind(t, "send").text, "Periodic checks disabled")
	require.False(t, f.mustGet(t, 42).PeriodicEnabled)
}

func TestDeleteCommand(t *testing.T) {
	f := setup(t, unreachableCheck)
	f.registerUser(t, 42)

	f.sendText(42, "/delete")

	require.Contains(t, f.api.lastOfKind(t, "send").text, "completely deleted")
	_, ok, err := f.store.Get(f.ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)

	f.sendText(42, "/delete")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "don't have any data")
}

func TestCancelCommand(t *testing.T) {
	f := setup(t, unreachableCheck)

	f.sendText(42, "/cancel")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "Nothing to cancel")

	f.sendText(42, "/start")
	f.sendText(42, "/cancel")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "Setup cancelled")

	// the conversation is gone, plain text gets the generic hint
	f.sendText(42, "maria@example.com")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "didn't understand")
}

func TestUnknownCommandSuggestion(t *testing.T) {
	f := setup(t, unreachableCheck)

	f.sendText(42, "/statsu")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "Did you mean /status?")

	f.sendText(42, "/frobnicate")
	require.Contains(t, f.api.lastOfKind(t, "send").text, "Use /help")
}

func TestBlockedUserIsDeleted(t *testing.T) {
	f := setup(t, unreachableCheck)
	f.registerUser(t, 42)

	f.bot.HandleUpdate(f.ctx, telegram.Update{MyChatMember: &telegram.ChatMemberUpdated{
		Chat:          telegram.Chat{ID: 42},
		From:          telegram.User{ID: 42},
		OldChatMember: telegram.ChatMember{Status: "member"},
		NewChatMember: telegram.ChatMember{Status: "kicked"},
	}})

	_, ok, err := f.store.Get(f.ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)

	// no goodbye message to a chat that just blocked us
	require.Empty(t, f.api.ofKind("send"))
}

func TestUnrelatedMembershipChangeIsIgnored(t *testing.T) {
	f := setup(t, unreachableCheck)
	f.registerUser(t, 42)

	f.bot.HandleUpdate(f.ctx, telegram.Update{MyChatMember: &telegram.ChatMemberUpdated{
		Chat:          telegram.Chat{ID: 42},
		From:          telegram.User{ID: 42},
		OldChatMember: telegram.ChatMember{Status: "kicked"},
		NewChatMember: telegram.ChatMember{Status: "member"},
	}})

	_, ok, err := f.store.Get(f.ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
}
