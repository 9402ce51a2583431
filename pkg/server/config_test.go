package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, int64(1000), cfg.DefaultBuyIn)
	require.Equal(t, int64(10), cfg.DefaultSmallBlind)
	require.Equal(t, int64(20), cfg.DefaultBigBlind)
	require.Equal(t, 30*time.Second, cfg.TurnTimeout)
	require.Equal(t, 15*time.Second, cfg.BanterPhase)
	require.Equal(t, 5*time.Second, cfg.PayoutAnimation)
	require.Equal(t, 3*time.Second, cfg.Countdown)
	require.Equal(t, 60*time.Second, cfg.SessionGrace)
	require.Equal(t, 10, cfg.SocialTickHz)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_URL", "/tmp/other.sqlite")
	t.Setenv("DEFAULT_BIG_BLIND", "50")
	t.Setenv("TURN_TIMEOUT_MS", "12000")
	t.Setenv("SOCIAL_TICK_HZ", "25")
	t.Setenv("STEAM_API_KEY", "key123")

	cfg := DefaultConfig().FromEnv()
	require.Equal(t, 9999, cfg.Port)
	require.Equal(t, "/tmp/other.sqlite", cfg.DatabaseURL)
	require.Equal(t, int64(50), cfg.DefaultBigBlind)
	require.Equal(t, 12*time.Second, cfg.TurnTimeout)
	require.Equal(t, 25, cfg.SocialTickHz)
	require.Equal(t, "key123", cfg.SteamAPIKey)
}

func TestConfigIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("COUNTDOWN_MS", "-5")

	cfg := DefaultConfig().FromEnv()
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 3*time.Second, cfg.Countdown)
}
