package scheduler

import (
	"fmt"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

// reminderText is the plain-text body used when no template is configured
// or the templated send fails.
func reminderText(t domain.ReminderType, event domain.Clock, hasEvent bool, offset int) string {
	if t.Weekly() {
		return "🕯 Shabbat is coming. Time to prepare. Shabbat shalom!"
	}
	kind, ok := t.Event()
	if !ok || !hasEvent {
		return fmt.Sprintf("⏰ %s reminder.", t.Title())
	}
	return fmt.Sprintf("⏰ %s reminder: %s is at %s today (%s).",
		t.Title(), kind, event, domain.DescribeOffset(offset))
}

// templateVars fills the numbered placeholders of a content template.
func templateVars(t domain.ReminderType, event domain.Clock, hasEvent bool) map[string]string {
	vars := map[string]string{"1": t.Title()}
	if hasEvent {
		vars["2"] = event.String()
	}
	return vars
}
