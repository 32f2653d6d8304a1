package checker

import (
	"errors"
	"fmt"

	"aimawatch-backend/lib/aima"
	"aimawatch-backend/lib/timezone"
	"aimawatch-backend/lib/vault"
)

func statusChangedText(status aima.Status) string {
	return fmt.Sprintf("🔔 Status Changed!\n\n%s\n\nLast checked: %s",
		status.Text, timezone.FormatRelative(status.CheckedAt, timezone.Now()))
}

func scheduledUpdateText(status aima.Status) string {
	return fmt.Sprintf("📋 Scheduled Update\n\n%s\n\nLast checked: %s",
		status.Text, timezone.FormatRelative(status.CheckedAt, timezone.Now()))
}

func checkFailedText(err error) string {
	now := timezone.Now()
	return fmt.Sprintf("⚠️ Status Check Failed\n\nError: %s\n\nTime: %s",
		HumanError(err), timezone.FormatRelative(now, now))
}

// HumanError renders a check failure for end users. Detail stays in
// logs and traces.
func HumanError(err error) string {
	if errors.Is(err, vault.ErrDecrypt) {
		return "Your stored credentials could not be read. Please register again with /start."
	}
	switch aima.KindOf(err) {
	case aima.ErrLoginFailed:
		return "Invalid email or password. Please update your credentials using /start."
	case aima.ErrTimeout:
		return "The AIMA portal took too long to respond. Please try again later."
	case aima.ErrTransport:
		return "Could not reach the AIMA portal. Please try again later."
	case aima.ErrTokenNotFound, aima.ErrStatusRegionNotFound:
		return "Could not read the AIMA status page. The site may be under maintenance."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}
