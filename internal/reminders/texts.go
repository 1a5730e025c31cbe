package reminders

import (
	"fmt"
	"strings"
	"time"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

const (
	textApology       = "😔 Sorry, something went wrong. Please try again. Send \"menu\" to start over."
	textNoReminders   = "You have no active reminders yet. Send \"add\" to create one."
	textListFirst     = "Send \"reminders\" to see your list first."
	textPickNumber    = "Please reply with a number from the list, or \"cancel\"."
	textOutOfRange    = "There is no reminder with that number. Pick one from the list, or \"cancel\"."
	textGone          = "That reminder no longer exists. Send \"reminders\" to see your current list."
	textNotOwned      = "That reminder is not in your list."
	textPickAction    = "Reply 1 to change the time, 2 to delete, or 3 to cancel."
	textConfirmDelete = "Delete this reminder? Reply yes or no."
	textYesOrNo       = "Please reply yes or no."
	textDeleted       = "🗑 Reminder deleted."
	textDeleteFailed  = "The reminder could not be deleted. Please try again later."
	textDeleteKept    = "OK, the reminder was kept."
	textBadOffset     = "I did not understand that time. Reply with a number from the list or minutes like -20."
	textPickType      = "Which reminder do you want to add?"
	textBadType       = "Please reply with a number from the list, or \"cancel\"."
)

// describeSchedule renders when a reminder fires, e.g. "30 minutes before sunset".
func describeSchedule(r domain.ReminderSetting, weeklyDay time.Weekday, weeklyHour int) string {
	if r.Type.Weekly() {
		return fmt.Sprintf("every %s at %s", weeklyDay, domain.NewClock(weeklyHour, 0))
	}
	kind, ok := r.Type.Event()
	if !ok {
		return domain.DescribeOffset(r.OffsetMinutes)
	}
	if r.OffsetMinutes == 0 {
		return "at " + kind.String()
	}
	return domain.DescribeOffset(r.OffsetMinutes) + " " + kind.String()
}

func fixedTimeText(r domain.ReminderSetting, weeklyDay time.Weekday, weeklyHour int) string {
	return fmt.Sprintf("%s is a weekly reminder with a fixed time (%s). You can delete it, but its time cannot be changed.",
		r.Type.Title(), describeSchedule(r, weeklyDay, weeklyHour))
}

// OffsetPrompt asks for the reminder time relative to its event.
// Weekly types have no event and get a short notice instead.
func OffsetPrompt(t domain.ReminderType) string {
	kind, ok := t.Event()
	if !ok {
		return t.Title() + " is sent at a fixed weekly time."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "When should I remind you about %s?\n", t.Title())
	for i, off := range domain.OffsetPresets {
		desc := domain.DescribeOffset(off)
		if off == 0 {
			desc = "at " + kind.String()
		} else {
			desc += " " + kind.String()
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, desc)
	}
	b.WriteString("Or send minutes, e.g. -20 or \"45 before\".")
	return b.String()
}

func typeMenu() string {
	var b strings.Builder
	b.WriteString(textPickType)
	b.WriteByte('\n')
	for i, t := range domain.ReminderTypes {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Title())
	}
	b.WriteString("Or \"cancel\".")
	return b.String()
}
