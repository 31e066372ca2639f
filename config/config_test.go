package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "countdowns.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
timezone: "UTC"
share_ttl: "72h"
users:
  - name: alice
    password: secret
    telegram_id: 42
  - name: bob
    password: hunter2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Fatalf("expected listen from file, got %q", cfg.Listen)
	}
	if cfg.DatabasePath != "./data/countdowns.db" {
		t.Fatalf("expected default database path, got %q", cfg.DatabasePath)
	}
	if cfg.Timezone != time.UTC {
		t.Fatalf("expected UTC location, got %s", cfg.Timezone)
	}
	if cfg.ShareTTL != 72*time.Hour {
		t.Fatalf("expected 72h share ttl, got %s", cfg.ShareTTL)
	}
	if cfg.Scheduler.AlertTier != "RED" {
		t.Fatalf("expected default alert tier, got %q", cfg.Scheduler.AlertTier)
	}
	if len(cfg.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(cfg.Users))
	}
	if u, ok := cfg.UserByName("alice"); !ok || u.TelegramID != 42 {
		t.Fatalf("unexpected alice entry: %+v", u)
	}
	if !cfg.IsAllowedUser("bob", "hunter2") || cfg.IsAllowedUser("bob", "wrong") {
		t.Fatalf("credential check mismatch")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COUNTDOWNS_USER__NAME", "carol")
	t.Setenv("COUNTDOWNS_USER__PASSWORD", "pw")
	t.Setenv("COUNTDOWNS_TIMEZONE", "UTC")
	t.Setenv("COUNTDOWNS_TELEGRAM__TOKEN", "123:abc")
	t.Setenv("COUNTDOWNS_PAGINATION__MAX_LIMIT", "50")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Users) != 1 || cfg.Users[0].Name != "carol" {
		t.Fatalf("expected env user, got %+v", cfg.Users)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("expected telegram token from env, got %q", cfg.Telegram.Token)
	}
	if cfg.Pagination.MaxLimit != 50 || cfg.Pagination.DefaultLimit != 50 {
		t.Fatalf("unexpected pagination %+v", cfg.Pagination)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no users", `timezone: UTC`, "at least one user"},
		{"bad timezone", "timezone: Mars/Olympus\nusers: [{name: a, password: b}]", "invalid timezone"},
		{"mar01 policy", "timezone: UTC\nleap_policy: mar01\nusers: [{name: a, password: b}]", "not supported"},
		{"duplicate user", "timezone: UTC\nusers: [{name: a, password: b}, {name: a, password: c}]", "duplicate user"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
