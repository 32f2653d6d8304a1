package checker

import (
	"context"
	"fmt"
	"log/slog"

	"aimawatch-backend/lib/aima"
	"aimawatch-backend/lib/telegram"
	"aimawatch-backend/lib/vault"
	"aimawatch-backend/services/userstore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/checker")

// StatusChecker runs one credentialed check against the portal.
// *aima.Client is the production implementation.
type StatusChecker interface {
	Check(ctx context.Context, creds aima.Credentials) (aima.Status, error)
}

// Notifier delivers one message to a chat. *telegram.Client is the
// production implementation.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) (telegram.Message, error)
}

type Options struct {
	// Secret seeds per-user key derivation. The original deployment
	// used the bot token, see cmd wiring.
	Secret string
	// Alerts may be nil, which disables operator alerting.
	Alerts *AlertMailer
}

type Service struct {
	checker StatusChecker
	store   userstore.Service
	notify  Notifier
	secret  string
	alerts  *AlertMailer
}

func NewService(statusChecker StatusChecker, store userstore.Service, notifier Notifier, options Options) Service {
	return Service{
		checker: statusChecker,
		store:   store,
		notify:  notifier,
		secret:  options.Secret,
		alerts:  options.Alerts,
	}
}

// EncryptCredentials seals raw credentials for storage under the user's
// derived key.
func (s Service) EncryptCredentials(chatID int64, creds aima.Credentials) (emailCipher, passwordCipher string, err error) {
	key := vault.DeriveKey(s.secret, chatID)
	emailCipher, err = vault.Encrypt(key, creds.Email)
	if err != nil {
		return "", "", fmt.Errorf("encrypt email: %w", err)
	}
	passwordCipher, err = vault.Encrypt(key, creds.Password)
	if err != nil {
		return "", "", fmt.Errorf("encrypt password: %w", err)
	}
	return emailCipher, passwordCipher, nil
}

// VerifyCredentials checks raw credentials that have not been stored
// yet, used by the registration flow.
func (s Service) VerifyCredentials(ctx context.Context, creds aima.Credentials) (aima.Status, error) {
	return s.checker.Check(ctx, creds)
}

func (s Service) decryptCredentials(user userstore.User) (aima.Credentials, error) {
	key := vault.DeriveKey(s.secret, user.ChatID)
	email, err := vault.Decrypt(key, user.EmailCiphertext)
	if err != nil {
		return aima.Credentials{}, fmt.Errorf("decrypt email: %w", err)
	}
	password, err := vault.Decrypt(key, user.PasswordCiphertext)
	if err != nil {
		return aima.Credentials{}, fmt.Errorf("decrypt password: %w", err)
	}
	return aima.Credentials{Email: email, Password: password}, nil
}

// RunForUser executes one scheduled check for a user and handles
// persistence and notification itself. It never returns an error and
// never panics, one broken user must not take down the batch.
func (s Service) RunForUser(ctx context.Context, user userstore.User, scheduled bool) {
	ctx, span := tracer.Start(ctx, "RunForUser")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chat_id", user.ChatID),
		attribute.Bool("scheduled", scheduled),
	)

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic during user check", "chat_id", user.ChatID, "panic", r)
			span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", r))
		}
	}()

	creds, err := s.decryptCredentials(user)
	if err != nil {
		// terminal until the user registers again, retrying cannot help
		slog.ErrorContext(ctx, "failed to decrypt stored credentials", "chat_id", user.ChatID, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decrypt credentials")
		return
	}

	status, err := s.checker.Check(ctx, creds)
	if err != nil {
		s.reportFailure(ctx, user, scheduled, err)
		return
	}
	s.reportSuccess(ctx, user, scheduled, status)
}

func (s Service) reportFailure(ctx context.Context, user userstore.User, scheduled bool, err error) {
	kind := aima.KindOf(err)
	slog.WarnContext(ctx, "status check failed", "chat_id", user.ChatID, "kind", kind, "err", err)

	if kind == aima.ErrStatusRegionNotFound {
		s.alerts.MarkupChanged(ctx, err)
	}
	if !scheduled {
		return
	}
	s.send(ctx, user.ChatID, checkFailedText(err))
}

func (s Service) reportSuccess(ctx context.Context, user userstore.User, scheduled bool, status aima.Status) {
	changed := user.NeverChecked() || status.Text != user.LastStatus

	err := s.store.UpdateLastStatus(ctx, user.ChatID, status.Text, status.CheckedAt)
	if err != nil {
		// an unpersisted change would be announced again next run
		slog.ErrorContext(ctx, "failed to persist status", "chat_id", user.ChatID, "err", err)
		return
	}

	switch {
	case changed:
		s.send(ctx, user.ChatID, statusChangedText(status))
	case scheduled:
		s.send(ctx, user.ChatID, scheduledUpdateText(status))
	}
}

// send is best effort, a dead chat must not fail a check.
func (s Service) send(ctx context.Context, chatID int64, text string) {
	_, err := s.notify.SendMessage(ctx, chatID, text)
	if err != nil {
		slog.WarnContext(ctx, "failed to send notification", "chat_id", chatID, "err", err)
	}
}

// CheckNow runs one interactive check, persisting a successful status.
// Unlike RunForUser the outcome is handed back for the caller to
// render.
func (s Service) CheckNow(ctx context.Context, user userstore.User) (aima.Status, error) {
	ctx, span := tracer.Start(ctx, "CheckNow")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat_id", user.ChatID))

	creds, err := s.decryptCredentials(user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decrypt credentials")
		return aima.Status{}, err
	}

	status, err := s.checker.Check(ctx, creds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check failed")
		if aima.KindOf(err) == aima.ErrStatusRegionNotFound {
			s.alerts.MarkupChanged(ctx, err)
		}
		return aima.Status{}, err
	}

	err = s.store.UpdateLastStatus(ctx, user.ChatID, status.Text, status.CheckedAt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist status", "chat_id", user.ChatID, "err", err)
	}
	return status, nil
}
