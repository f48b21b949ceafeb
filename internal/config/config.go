package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Admin struct {
		Secret string `yaml:"secret"`
	} `yaml:"admin"`
	Auth struct {
		TokenSecret string `yaml:"tokenSecret"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		KeyTTL   string `yaml:"keyTTL"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Session struct {
		DisplayDelay    string `yaml:"displayDelay"`
		SettleDelay     string `yaml:"settleDelay"`
		EvictionGrace   string `yaml:"evictionGrace"`
		BanTTL          string `yaml:"banTTL"`
		SnapshotTTL     string `yaml:"snapshotTTL"`
		MaxParticipants int    `yaml:"maxParticipants"`
	} `yaml:"session"`
	Leaderboard struct {
		MemoTTL string `yaml:"memoTTL"`
	} `yaml:"leaderboard"`
	RateLimit struct {
		Window          string `yaml:"window"`
		JoinsPerAddress int    `yaml:"joinsPerAddress"`
		AnswersPerUser  int    `yaml:"answersPerUser"`
	} `yaml:"ratelimit"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields defaults so the
// service can run from environment variables alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.Admin.Secret, "ADMIN_SECRET")
	override(&c.Auth.TokenSecret, "TOKEN_SECRET")
	override(&c.Redis.Addr, "REDIS_ADDR")
	override(&c.Postgres.URL, "POSTGRES_URL")
	override(&c.Log.Level, "LOG_LEVEL")
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Session.MaxParticipants <= 0 {
		c.Session.MaxParticipants = 500
	}
	if c.RateLimit.JoinsPerAddress <= 0 {
		c.RateLimit.JoinsPerAddress = 20
	}
	if c.RateLimit.AnswersPerUser <= 0 {
		c.RateLimit.AnswersPerUser = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c Config) DisplayDelay() time.Duration {
	return Duration(c.Session.DisplayDelay, 3*time.Second)
}

func (c Config) SettleDelay() time.Duration {
	return Duration(c.Session.SettleDelay, 500*time.Millisecond)
}

func (c Config) EvictionGrace() time.Duration {
	return Duration(c.Session.EvictionGrace, time.Second)
}

func (c Config) BanTTL() time.Duration {
	return Duration(c.Session.BanTTL, 24*time.Hour)
}

func (c Config) SnapshotTTL() time.Duration {
	return Duration(c.Session.SnapshotTTL, 10*time.Minute)
}

func (c Config) MemoTTL() time.Duration {
	return Duration(c.Leaderboard.MemoTTL, 30*time.Second)
}

func (c Config) RateWindow() time.Duration {
	return Duration(c.RateLimit.Window, time.Minute)
}

// KeyTTL bounds the lifetime of per-session leaderboard and connection keys in Redis.
func (c Config) KeyTTL() time.Duration {
	return Duration(c.Redis.KeyTTL, 6*time.Hour)
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return fallback
}
