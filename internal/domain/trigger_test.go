package domain

import (
	"testing"
	"time"
)

func jerusalemUser() User {
	return User{ID: 1, Phone: "+972500000001", Status: StatusActive, Timezone: "Asia/Jerusalem", Location: "Jerusalem"}
}

func eventsAt(sunset string) EventTimes {
	return EventTimes{
		Date:      "2025-06-01",
		TZ:        "Asia/Jerusalem",
		Sunrise:   MustParseClock("05:35"),
		Sunset:    MustParseClock(sunset),
		Nightfall: MustParseClock("20:25"),
		Source:    SourceLive,
	}
}

func TestIsDue_ProductionTolerance(t *testing.T) {
	u := jerusalemUser()
	r := ReminderSetting{ID: 10, UserID: u.ID, Type: ReminderTefillin, Enabled: true, OffsetMinutes: -30}
	ev := eventsAt("18:00") // target 17:30
	var e Evaluator

	cases := []struct {
		hh, mm int
		want   bool
	}{
		{17, 30, true},
		{17, 29, true},
		{17, 31, true},
		{17, 28, false},
		{17, 32, false},
	}
	for _, tc := range cases {
		now := mustLocalUTC(t, u.Timezone, 2025, time.June, 1, tc.hh, tc.mm)
		if got := e.IsDue(r, u, ev, now); got != tc.want {
			t.Fatalf("now %02d:%02d: want %v, got %v", tc.hh, tc.mm, tc.want, got)
		}
	}
}

func TestIsDue_ToleranceAcrossMidnight(t *testing.T) {
	u := jerusalemUser()
	r := ReminderSetting{Type: ReminderMaariv, OffsetMinutes: 0}
	ev := eventsAt("19:45")
	ev.Nightfall = MustParseClock("00:00")
	var e Evaluator

	now := mustLocalUTC(t, u.Timezone, 2025, time.June, 1, 23, 59)
	if !e.IsDue(r, u, ev, now) {
		t.Fatalf("23:59 should be within one minute of 00:00")
	}
}

func TestIsDue_ConvertsEventZoneToUserZone(t *testing.T) {
	// Event times for Jerusalem (UTC+3 in June), user living in London (UTC+1 in June).
	u := User{Timezone: "Europe/London"}
	r := ReminderSetting{Type: ReminderTefillin, OffsetMinutes: -30}
	ev := eventsAt("18:00") // 17:30 Jerusalem = 15:30 London
	var e Evaluator

	if !e.IsDue(r, u, ev, mustLocalUTC(t, "Europe/London", 2025, time.June, 1, 15, 30)) {
		t.Fatalf("expected due at 15:30 London")
	}
	if e.IsDue(r, u, ev, mustLocalUTC(t, "Europe/London", 2025, time.June, 1, 17, 30)) {
		t.Fatalf("17:30 London must not match an unconverted target")
	}
}

func TestIsDue_TestModeManualTime(t *testing.T) {
	u := jerusalemUser()
	tt := MustParseClock("14:30")
	r := ReminderSetting{Type: ReminderTefillin, OffsetMinutes: -30, TestTime: &tt}
	e := Evaluator{TestMode: true, TestWindow: 5}
	ev := eventsAt("18:00")

	cases := []struct {
		hh, mm int
		want   bool
	}{
		{14, 30, true},
		{15, 0, true},
		{14, 29, false},
	}
	for _, tc := range cases {
		now := mustLocalUTC(t, u.Timezone, 2025, time.June, 1, tc.hh, tc.mm)
		if got := e.IsDue(r, u, ev, now); got != tc.want {
			t.Fatalf("test mode now %02d:%02d: want %v, got %v", tc.hh, tc.mm, tc.want, got)
		}
	}
}

func TestIsDue_TestTimeIgnoredOutsideTestMode(t *testing.T) {
	u := jerusalemUser()
	tt := MustParseClock("14:30")
	r := ReminderSetting{Type: ReminderTefillin, OffsetMinutes: -30, TestTime: &tt}
	var e Evaluator

	if e.IsDue(r, u, eventsAt("18:00"), mustLocalUTC(t, u.Timezone, 2025, time.June, 1, 15, 0)) {
		t.Fatalf("test_time must be ignored in production mode")
	}
}

func TestIsDue_TestModeWindow(t *testing.T) {
	u := jerusalemUser()
	r := ReminderSetting{Type: ReminderTefillin, OffsetMinutes: -30}
	e := Evaluator{TestMode: true, TestWindow: 5}
	ev := eventsAt("18:00")

	if !e.IsDue(r, u, ev, mustLocalUTC(t, u.Timezone, 2025, time.June, 1, 17, 34)) {
		t.Fatalf("4 minutes off should be inside a 5 minute test window")
	}
	if e.IsDue(r, u, ev, mustLocalUTC(t, u.Timezone, 2025, time.June, 1, 17, 36)) {
		t.Fatalf("6 minutes off should be outside a 5 minute test window")
	}
}

func TestIsDue_WeeklyIgnoresOffset(t *testing.T) {
	u := jerusalemUser()
	r := ReminderSetting{Type: ReminderShabbat, OffsetMinutes: -300}
	e := Evaluator{WeeklyDay: time.Friday, WeeklyHour: 10}
	ev := eventsAt("18:00")

	// 2025-06-06 is a Friday.
	if !e.IsDue(r, u, ev, mustLocalUTC(t, u.Timezone, 2025, time.June, 6, 10, 0)) {
		t.Fatalf("expected weekly reminder due Friday 10:00")
	}
	if e.IsDue(r, u, ev, mustLocalUTC(t, u.Timezone, 2025, time.June, 6, 10, 5)) {
		t.Fatalf("weekly reminder must not fire at 10:05")
	}
	if e.IsDue(r, u, ev, mustLocalUTC(t, u.Timezone, 2025, time.June, 5, 10, 0)) {
		t.Fatalf("weekly reminder must not fire on Thursday")
	}
}

func TestTarget(t *testing.T) {
	var e Evaluator
	u := jerusalemUser()
	got, ok, err := e.Target(ReminderSetting{Type: ReminderShema, OffsetMinutes: 15}, u, eventsAt("18:00"), time.Now())
	if err != nil || !ok {
		t.Fatalf("target: ok=%v err=%v", ok, err)
	}
	if got.String() != "05:50" {
		t.Fatalf("want 05:50, got %s", got)
	}
	if _, ok, _ := e.Target(ReminderSetting{Type: ReminderShabbat}, u, eventsAt("18:00"), time.Now()); ok {
		t.Fatalf("weekly reminders have no offset target")
	}
}

func TestOccurrenceKey_MidnightTargetMapsToOneDay(t *testing.T) {
	u := jerusalemUser()
	r := ReminderSetting{Type: ReminderTefillin, OffsetMinutes: -30}
	ev := eventsAt("00:30") // target 00:00
	var e Evaluator

	ticks := []time.Time{
		mustLocalUTC(t, u.Timezone, 2025, time.June, 1, 23, 59),
		mustLocalUTC(t, u.Timezone, 2025, time.June, 2, 0, 0),
		mustLocalUTC(t, u.Timezone, 2025, time.June, 2, 0, 1),
	}
	for _, now := range ticks {
		if got := e.OccurrenceKey(r, u, ev, now); got != "2025-06-02" {
			t.Fatalf("tick %s: want occurrence 2025-06-02, got %s", now.Format(time.RFC3339), got)
		}
	}

	// A 23:59 target seen just after midnight still belongs to the previous day.
	late := eventsAt("23:59")
	r.OffsetMinutes = 0
	if got := e.OccurrenceKey(r, u, late, mustLocalUTC(t, u.Timezone, 2025, time.June, 2, 0, 0)); got != "2025-06-01" {
		t.Fatalf("want occurrence 2025-06-01, got %s", got)
	}
}

func TestOccurrenceKey_Fallbacks(t *testing.T) {
	u := jerusalemUser()
	now := mustLocalUTC(t, u.Timezone, 2025, time.June, 6, 23, 0)

	tt := MustParseClock("01:00")
	e := Evaluator{TestMode: true}
	r := ReminderSetting{Type: ReminderTefillin, TestTime: &tt}
	if got := e.OccurrenceKey(r, u, eventsAt("18:00"), now); got != "2025-06-06" {
		t.Fatalf("test time occurrence belongs to today, got %s", got)
	}

	var prod Evaluator
	if got := prod.OccurrenceKey(ReminderSetting{Type: ReminderTefillin}, u, EventTimes{}, now); got != "2025-06-06" {
		t.Fatalf("no target: want now's local date, got %s", got)
	}
}
