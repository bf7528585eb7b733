// Package config handles application configuration from environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	ListenAddr   string

	ScanInterval  time.Duration
	RequestDelay  time.Duration
	AlertCooldown time.Duration

	BaseURL   string
	LegacyURL string
	UserAgent string

	EmailEnabled bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	EmailTo      string

	SMSEnabled       bool
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	SMSToNumber      string

	DiscordEnabled    bool
	DiscordWebhookURL string

	SlackEnabled    bool
	SlackWebhookURL string

	// TierChannels maps a rarity tier to the alert channels it routes to.
	TierChannels map[int][]string
}

// Load reads configuration from the environment, consulting a .env file in
// the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath: envOr("DATABASE_PATH", "./data/bourbonwatch.db"),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		ListenAddr:   envOr("LISTEN_ADDR", ":5000"),

		BaseURL:   envOr("FWGS_BASE_URL", "https://www.finewineandgoodspirits.com"),
		LegacyURL: envOr("FWGS_LEGACY_URL", "https://www.lcbapps.lcb.state.pa.us"),
		UserAgent: envOr("USER_AGENT", "PA-Bourbon-Hunter/1.0 (Personal Use; Inventory Tracker)"),

		SMTPHost:     envOr("SMTP_HOST", "smtp.gmail.com"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		EmailTo:      os.Getenv("EMAIL_TO"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		SMSToNumber:      os.Getenv("SMS_TO_NUMBER"),

		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),

		TierChannels: DefaultTierChannels(),
	}

	cfg.EmailEnabled = envBool("EMAIL_ENABLED")
	cfg.SMSEnabled = envBool("SMS_ENABLED")
	cfg.DiscordEnabled = envBool("DISCORD_ENABLED")
	cfg.SlackEnabled = envBool("SLACK_ENABLED")

	var err error
	if cfg.SMTPPort, err = envInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}

	scanMinutes, err := envInt("SCAN_INTERVAL_MINUTES", 120)
	if err != nil {
		return nil, err
	}
	cfg.ScanInterval = time.Duration(scanMinutes) * time.Minute

	delaySeconds, err := envFloat("REQUEST_DELAY_SECONDS", 2.5)
	if err != nil {
		return nil, err
	}
	cfg.RequestDelay = time.Duration(delaySeconds * float64(time.Second))

	cooldownHours, err := envInt("ALERT_COOLDOWN_HOURS", 6)
	if err != nil {
		return nil, err
	}
	cfg.AlertCooldown = time.Duration(cooldownHours) * time.Hour

	if raw := os.Getenv("TIER_CHANNEL_MAP"); raw != "" {
		tiers, err := ParseTierChannels(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TIER_CHANNEL_MAP: %w", err)
		}
		cfg.TierChannels = tiers
	}

	return cfg, nil
}

// DefaultTierChannels returns the built-in tier routing table. Rarer tiers
// fan out to more channels; tier 4 is dashboard-only.
func DefaultTierChannels() map[int][]string {
	return map[int][]string{
		1: {"email", "sms", "discord", "slack", "dashboard"},
		2: {"email", "sms", "discord", "slack", "dashboard"},
		3: {"email", "discord", "dashboard"},
		4: {"dashboard"},
	}
}

// ParseTierChannels decodes a JSON object of tier number to channel list.
func ParseTierChannels(raw string) (map[int][]string, error) {
	var byKey map[string][]string
	if err := json.Unmarshal([]byte(raw), &byKey); err != nil {
		return nil, err
	}
	tiers := make(map[int][]string, len(byKey))
	for k, channels := range byKey {
		tier, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("tier key %q: %w", k, err)
		}
		tiers[tier] = channels
	}
	return tiers, nil
}

// ChannelsForTier returns the channel list for a tier, defaulting to
// dashboard-only for unknown tiers.
func (c *Config) ChannelsForTier(tier int) []string {
	if channels, ok := c.TierChannels[tier]; ok {
		return channels
	}
	return []string{"dashboard"}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
