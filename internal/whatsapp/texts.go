package whatsapp

// UI texts in English
const (
	welcomeText = "👋 Hi! I send reminders for Tefillin, Shema, Maariv and Shabbat, " +
		"timed by sunrise, sunset and nightfall where you live.\n\n" +
		"Which city are you in? (e.g. Jerusalem, Tel Aviv, New York)"
	unknownCityText = "I could not find that city. Please send the name of a nearby larger city."
	registeredFmt   = "✅ Great, your location is %s (%s)."
	menuText        = "🏠 Menu\n" +
		"• reminders: see and manage your reminders\n" +
		"• add: add a reminder\n" +
		"• status: your settings\n" +
		"• city <name>: change your location\n" +
		"• tz <zone>: change your timezone\n" +
		"• pause / resume: stop or restart all reminders"
	statusTitle    = "🧾 Your current settings:"
	statusFmt      = "• City: %s\n• TZ: %s\n• Status: %s\n• Active reminders: %d\n"
	pausedText     = "⏸ Reminders paused. Send \"resume\" to turn them back on."
	resumedText    = "▶️ Reminders resumed."
	badTZText      = "Unknown timezone. Use an IANA name like Asia/Jerusalem or America/New_York."
	tzUpdatedFmt   = "🌍 Timezone set to %s."
	errorText      = "😔 Sorry, something went wrong. Please try again later."
	testUsageText  = "Usage: test HH:MM, or test off"
	testSetFmt     = "🧪 Test time %s set on %d reminder(s)."
	testClearedFmt = "🧪 Test time cleared on %d reminder(s)."
)
