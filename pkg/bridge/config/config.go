package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// phoneNumberPattern matches E.164: a plus, a non-zero leading digit, and
// 8 to 15 digits in total.
var phoneNumberPattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// ValidNumber reports whether s is a dialable E.164 number.
func ValidNumber(s string) bool {
	return phoneNumberPattern.MatchString(s)
}

type Config struct {
	Addr string

	// PublicHost is the externally reachable hostname the phone network
	// delivers webhooks and the media stream to, without a scheme.
	PublicHost string

	// BotNumber is the provisioned number every agent leg dials out from.
	BotNumber string

	TwilioAccountSID string
	TwilioAuthToken  string
	DeepgramAPIKey   string
	GeminiAPIKey     string
	GeminiModel      string

	// ReadyPollInterval and ReadyTimeout gate the media stream on the
	// human agent answering.
	ReadyPollInterval time.Duration
	ReadyTimeout      time.Duration

	// NoopBackoff is how long a silent agent turn holds the pipeline.
	NoopBackoff time.Duration

	MaxBodyBytes int64

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("SWITCHBOARD_ADDR", ":8080"),
		PublicHost:          strings.TrimSpace(os.Getenv("SWITCHBOARD_PUBLIC_HOST")),
		BotNumber:           strings.TrimSpace(os.Getenv("SWITCHBOARD_BOT_NUMBER")),
		TwilioAccountSID:    strings.TrimSpace(os.Getenv("SWITCHBOARD_TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:     strings.TrimSpace(os.Getenv("SWITCHBOARD_TWILIO_AUTH_TOKEN")),
		DeepgramAPIKey:      strings.TrimSpace(os.Getenv("SWITCHBOARD_DEEPGRAM_API_KEY")),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("SWITCHBOARD_GEMINI_API_KEY")),
		GeminiModel:         envOr("SWITCHBOARD_GEMINI_MODEL", "gemini-2.0-flash"),
		ReadyPollInterval:   envDurationOr("SWITCHBOARD_READY_POLL_INTERVAL", time.Second),
		ReadyTimeout:        envDurationOr("SWITCHBOARD_READY_TIMEOUT", 30*time.Second),
		NoopBackoff:         envDurationOr("SWITCHBOARD_NOOP_BACKOFF", 5*time.Second),
		MaxBodyBytes:        envInt64Or("SWITCHBOARD_MAX_BODY_BYTES", 1<<20), // 1 MiB
		ReadHeaderTimeout:   envDurationOr("SWITCHBOARD_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("SWITCHBOARD_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("SWITCHBOARD_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.PublicHost == "" {
		return Config{}, fmt.Errorf("SWITCHBOARD_PUBLIC_HOST must not be empty")
	}
	if strings.Contains(cfg.PublicHost, "://") {
		return Config{}, fmt.Errorf("SWITCHBOARD_PUBLIC_HOST must be a bare host, not a URL")
	}
	if cfg.BotNumber == "" {
		return Config{}, fmt.Errorf("SWITCHBOARD_BOT_NUMBER must not be empty")
	}
	if !ValidNumber(cfg.BotNumber) {
		return Config{}, fmt.Errorf("SWITCHBOARD_BOT_NUMBER must be E.164, got %q", cfg.BotNumber)
	}
	if cfg.TwilioAccountSID == "" {
		return Config{}, fmt.Errorf("SWITCHBOARD_TWILIO_ACCOUNT_SID must not be empty")
	}
	if cfg.TwilioAuthToken == "" {
		return Config{}, fmt.Errorf("SWITCHBOARD_TWILIO_AUTH_TOKEN must not be empty")
	}
	if cfg.DeepgramAPIKey == "" {
		return Config{}, fmt.Errorf("SWITCHBOARD_DEEPGRAM_API_KEY must not be empty")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("SWITCHBOARD_GEMINI_API_KEY must not be empty")
	}
	if strings.TrimSpace(cfg.GeminiModel) == "" {
		return Config{}, fmt.Errorf("SWITCHBOARD_GEMINI_MODEL must not be empty")
	}
	if cfg.ReadyPollInterval <= 0 {
		return Config{}, fmt.Errorf("SWITCHBOARD_READY_POLL_INTERVAL must be > 0")
	}
	if cfg.ReadyTimeout <= 0 {
		return Config{}, fmt.Errorf("SWITCHBOARD_READY_TIMEOUT must be > 0")
	}
	if cfg.ReadyTimeout < cfg.ReadyPollInterval {
		return Config{}, fmt.Errorf("SWITCHBOARD_READY_TIMEOUT must be >= SWITCHBOARD_READY_POLL_INTERVAL")
	}
	if cfg.NoopBackoff < 0 {
		return Config{}, fmt.Errorf("SWITCHBOARD_NOOP_BACKOFF must be >= 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("SWITCHBOARD_MAX_BODY_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SWITCHBOARD_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("SWITCHBOARD_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SWITCHBOARD_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
