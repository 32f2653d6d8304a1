package checker

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"golang.org/x/time/rate"
)

type SmtpConfig struct {
	Server        string `json:"server"`
	Port          int    `json:"port"`
	EmailAddress  string `json:"email_address"`
	Password      string `json:"password"`
	OperatorEmail string `json:"operator_email"`
}

// AlertMailer emails the operator when the portal markup stops matching
// what the extractor expects. Throttled so a broken page during a full
// sweep produces one email instead of one per user.
type AlertMailer struct {
	config  SmtpConfig
	limiter *rate.Limiter
}

// NewAlertMailer returns nil when SMTP is not configured. A nil mailer
// is safe to call, alerts are just dropped.
func NewAlertMailer(config SmtpConfig) *AlertMailer {
	if config.Server == "" || config.OperatorEmail == "" {
		return nil
	}
	return &AlertMailer{
		config:  config,
		limiter: rate.NewLimiter(rate.Every(time.Hour*6), 1),
	}
}

func (a *AlertMailer) MarkupChanged(ctx context.Context, cause error) {
	if a == nil {
		return
	}
	if !a.limiter.Allow() {
		return
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("AIMA Watch <%s>", a.config.EmailAddress)
	mail.To = []string{a.config.OperatorEmail}
	mail.Subject = "AIMA status page markup changed"
	mail.Text = []byte(fmt.Sprintf(`The status extractor could not find the status region on the portal page.

%v

The page layout has probably changed and the locator needs updating.`, cause))

	addr := fmt.Sprintf("%s:%d", a.config.Server, a.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", a.config.EmailAddress, a.config.Password, a.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to send operator alert", "err", err)
	}
}
