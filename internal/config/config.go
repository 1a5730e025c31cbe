package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	DefaultTZ string `envconfig:"DEFAULT_TZ" default:"Asia/Jerusalem"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite|postgres
	DBPath   string `envconfig:"DB_PATH" default:"./data/wabot.db"`
	DBDSN    string `envconfig:"DB_DSN"`

	// RedisAddr enables Redis sessions and send claims when set.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"30m"`

	TwilioAccountSID string  `envconfig:"TWILIO_ACCOUNT_SID" required:"true"`
	TwilioAuthToken  string  `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	TwilioFrom       string  `envconfig:"TWILIO_WHATSAPP_FROM" required:"true"`
	TwilioBaseURL    string  `envconfig:"TWILIO_BASE_URL"`
	SendRPS          float64 `envconfig:"SEND_RPS" default:"10"`
	// WebhookURL is the public URL Twilio signs; signature checks are off when empty.
	WebhookURL string `envconfig:"WEBHOOK_URL"`
	// Templates maps reminder type to content template sid, e.g. "tefillin:HX1,shema:HX2".
	Templates map[string]string `envconfig:"TEMPLATES"`

	ZmanimURL         string        `envconfig:"ZMANIM_URL"`
	ZmanimTimeout     time.Duration `envconfig:"ZMANIM_TIMEOUT" default:"5s"`
	ZmanimRetryFor    time.Duration `envconfig:"ZMANIM_RETRY_FOR" default:"10s"`
	GeocoderURL       string        `envconfig:"GEOCODER_URL"`
	GeocoderRPS       float64       `envconfig:"GEOCODER_RPS" default:"1"`
	GeocoderUserAgent string        `envconfig:"GEOCODER_USER_AGENT" default:"wa-zmanim-bot/1.0"`
	EventCacheTTL     time.Duration `envconfig:"EVENT_CACHE_TTL" default:"1h"`
	FallbackLocations []string      `envconfig:"FALLBACK_LOCATIONS" default:"Jerusalem,Tel Aviv"`
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1m"`
	SchedulerWorkers  int           `envconfig:"SCHEDULER_WORKERS" default:"8"`
	ShabbatWeekday    string        `envconfig:"SHABBAT_WEEKDAY" default:"friday"`
	ShabbatHour       int           `envconfig:"SHABBAT_HOUR" default:"10"`
	TestMode          bool          `envconfig:"TEST_MODE" default:"false"`
	TestWindowMinutes int           `envconfig:"TEST_WINDOW_MINUTES" default:"5"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required for postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if _, err := domain.ValidateTZ(c.DefaultTZ); err != nil {
		return fmt.Errorf("DEFAULT_TZ: %w", err)
	}
	if _, err := c.Weekday(); err != nil {
		return err
	}
	if c.ShabbatHour < 0 || c.ShabbatHour > 23 {
		return fmt.Errorf("SHABBAT_HOUR out of range: %d", c.ShabbatHour)
	}
	if _, err := c.ReminderTemplates(); err != nil {
		return err
	}
	return nil
}

// Weekday parses ShabbatWeekday.
func (c Config) Weekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.ShabbatWeekday))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("SHABBAT_WEEKDAY: unknown day %q", c.ShabbatWeekday)
}

// ReminderTemplates validates the keys of Templates.
func (c Config) ReminderTemplates() (map[domain.ReminderType]string, error) {
	out := make(map[domain.ReminderType]string, len(c.Templates))
	for k, v := range c.Templates {
		t, err := domain.ParseReminderType(k)
		if err != nil {
			return nil, fmt.Errorf("TEMPLATES: %w", err)
		}
		out[t] = strings.TrimSpace(v)
	}
	return out, nil
}
