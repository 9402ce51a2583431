package server

import (
	"os"
	"strconv"
	"time"
)

// Config holds every recognised server option. Each field is
// overridable via the environment.
type Config struct {
	Port        int
	SteamAPIKey string
	SteamAppID  string
	DatabaseURL string

	DefaultBuyIn      int64
	DefaultSmallBlind int64
	DefaultBigBlind   int64

	TurnTimeout     time.Duration
	BanterPhase     time.Duration
	PayoutAnimation time.Duration
	Countdown       time.Duration
	SessionGrace    time.Duration

	SocialTickHz int

	DebugLevel string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:              8080,
		DatabaseURL:       "holdemd.sqlite",
		DefaultBuyIn:      1000,
		DefaultSmallBlind: 10,
		DefaultBigBlind:   20,
		TurnTimeout:       30 * time.Second,
		BanterPhase:       15 * time.Second,
		PayoutAnimation:   5 * time.Second,
		Countdown:         3 * time.Second,
		SessionGrace:      60 * time.Second,
		SocialTickHz:      10,
		DebugLevel:        "info",
	}
}

// FromEnv overlays environment variables onto the config and returns
// it for chaining.
func (c *Config) FromEnv() *Config {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("STEAM_API_KEY"); v != "" {
		c.SteamAPIKey = v
	}
	if v := os.Getenv("STEAM_APP_ID"); v != "" {
		c.SteamAppID = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("DEBUG_LEVEL"); v != "" {
		c.DebugLevel = v
	}
	envInt64(&c.DefaultBuyIn, "DEFAULT_BUY_IN")
	envInt64(&c.DefaultSmallBlind, "DEFAULT_SMALL_BLIND")
	envInt64(&c.DefaultBigBlind, "DEFAULT_BIG_BLIND")
	envMillis(&c.TurnTimeout, "TURN_TIMEOUT_MS")
	envMillis(&c.BanterPhase, "BANTER_PHASE_MS")
	envMillis(&c.PayoutAnimation, "PAYOUT_ANIMATION_MS")
	envMillis(&c.Countdown, "COUNTDOWN_MS")
	envMillis(&c.SessionGrace, "SESSION_GRACE_MS")
	if v := os.Getenv("SOCIAL_TICK_HZ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SocialTickHz = n
		}
	}
	return c
}

func envInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
