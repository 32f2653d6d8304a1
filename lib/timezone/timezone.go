package timezone

import (
	"fmt"
	"time"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Lisbon")
	if err != nil {
		panic(err)
	}
}

// force timezone to be Lisbon because the check schedule is defined in
// the target site's local wall clock, while our servers can end up
// anywhere, which would shift every <time.Time>.Hour() based decision.
func Now() time.Time {
	return time.Now().In(Location)
}

// FormatRelative renders a past instant the way a chat message reads it:
// recent times as "N minutes ago", anything older than a day as a full
// date in the reference timezone.
func FormatRelative(t time.Time, now time.Time) string {
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "Just now"
	case elapsed < time.Hour:
		minutes := int(elapsed.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 24*time.Hour:
		hours := int(elapsed.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	return t.In(Location).Format("02 January 2006 at 15:04")
}
