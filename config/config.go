package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "COUNTDOWNS_"

// LeapPolicyFeb28 is the only supported placement of Feb 29 anchors in common years.
const LeapPolicyFeb28 = "feb28"

type User struct {
	Name       string `koanf:"name"`
	Password   string `koanf:"password"`
	TelegramID int64  `koanf:"telegram_id"`
}

type TelegramConfig struct {
	Token string `koanf:"token"`
}

type CalDAVConfig struct {
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Calendar string `koanf:"calendar"`
}

func (c CalDAVConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

type SchedulerConfig struct {
	RefreshCron string `koanf:"refresh_cron"`
	DigestCron  string `koanf:"digest_cron"`
	AlertTier   string `koanf:"alert_tier"`
}

type PaginationConfig struct {
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`
}

type Config struct {
	Listen       string           `koanf:"listen"`
	DatabasePath string           `koanf:"database_path"`
	TimezoneName string           `koanf:"timezone"`
	PublicURL    string           `koanf:"public_url"`
	LeapPolicy   string           `koanf:"leap_policy"`
	ShareTTL     time.Duration    `koanf:"share_ttl"`
	Users        []User           `koanf:"users"`
	Telegram     TelegramConfig   `koanf:"telegram"`
	CalDAV       CalDAVConfig     `koanf:"caldav"`
	Scheduler    SchedulerConfig  `koanf:"scheduler"`
	Pagination   PaginationConfig `koanf:"pagination"`

	// Timezone is resolved from TimezoneName by Load.
	Timezone *time.Location `koanf:"-"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"listen":                   ":8080",
		"database_path":            "./data/countdowns.db",
		"timezone":                 "Europe/Warsaw",
		"public_url":               "http://localhost:8080",
		"leap_policy":              LeapPolicyFeb28,
		"share_ttl":                "0s",
		"scheduler.refresh_cron":   "* * * * *",
		"scheduler.digest_cron":    "0 9 * * *",
		"scheduler.alert_tier":     "RED",
		"pagination.default_limit": 100,
		"pagination.max_limit":     500,
	}
}

// Load reads defaults, then the YAML file at path (if any), then COUNTDOWNS_*
// environment variables. Nested keys use a double underscore:
// COUNTDOWNS_TELEGRAM__TOKEN sets telegram.token.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Single-user deployments can be configured from the environment alone.
	if len(cfg.Users) == 0 && k.String("user.name") != "" {
		cfg.Users = []User{{
			Name:       k.String("user.name"),
			Password:   k.String("user.password"),
			TelegramID: k.Int64("user.telegram_id"),
		}}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) validate() error {
	if len(c.Users) == 0 {
		return fmt.Errorf("at least one user is required (users or COUNTDOWNS_USER__NAME)")
	}
	seen := make(map[string]bool, len(c.Users))
	for _, u := range c.Users {
		if u.Name == "" || u.Password == "" {
			return fmt.Errorf("user entries need name and password")
		}
		if seen[u.Name] {
			return fmt.Errorf("duplicate user %q", u.Name)
		}
		seen[u.Name] = true
	}

	tz, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	c.Timezone = tz

	switch c.LeapPolicy {
	case LeapPolicyFeb28:
	case "mar01":
		return fmt.Errorf("leap_policy mar01 is not supported, use %s", LeapPolicyFeb28)
	default:
		return fmt.Errorf("unknown leap_policy %q", c.LeapPolicy)
	}

	if c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit <= 0 {
		return fmt.Errorf("pagination limits must be positive")
	}
	if c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		c.Pagination.DefaultLimit = c.Pagination.MaxLimit
	}
	if c.ShareTTL < 0 {
		return fmt.Errorf("share_ttl must not be negative")
	}
	return nil
}

// UserByName returns the configured user with the given name.
func (c *Config) UserByName(name string) (User, bool) {
	for _, u := range c.Users {
		if u.Name == name {
			return u, true
		}
	}
	return User{}, false
}

// IsAllowedUser checks Basic Auth credentials.
func (c *Config) IsAllowedUser(name, password string) bool {
	u, ok := c.UserByName(name)
	return ok && u.Password == password
}
