package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesFileEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
server:
  port: "9090"
  allowedOrigins: ["https://host.example"]
admin:
  secret: from-file
session:
  settleDelay: 250ms
  banTTL: nonsense
ratelimit:
  joinsPerAddress: 5
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ADMIN_SECRET", "from-env")
	t.Setenv("TOKEN_SECRET", "token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Fatalf("server section not parsed: %+v", cfg.Server)
	}
	if cfg.Admin.Secret != "from-env" || cfg.Auth.TokenSecret != "token" {
		t.Fatalf("env overrides not applied: %q %q", cfg.Admin.Secret, cfg.Auth.TokenSecret)
	}
	if got := cfg.SettleDelay(); got != 250*time.Millisecond {
		t.Fatalf("settle delay = %v", got)
	}
	if got := cfg.BanTTL(); got != 24*time.Hour {
		t.Fatalf("malformed ban ttl should fall back, got %v", got)
	}
	if cfg.RateLimit.JoinsPerAddress != 5 || cfg.RateLimit.AnswersPerUser != 60 {
		t.Fatalf("rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Session.MaxParticipants != 500 || cfg.DisplayDelay() != 3*time.Second {
		t.Fatalf("session defaults not applied: %+v", cfg.Session)
	}
	if got := cfg.KeyTTL(); got != 6*time.Hour {
		t.Fatalf("redis key ttl default = %v", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Log.Level == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Second); got != time.Second {
		t.Fatalf("empty: %v", got)
	}
	if got := Duration("2m", time.Second); got != 2*time.Minute {
		t.Fatalf("parsed: %v", got)
	}
	if got := Duration("-5s", time.Second); got != time.Second {
		t.Fatalf("negative should fall back: %v", got)
	}
}
