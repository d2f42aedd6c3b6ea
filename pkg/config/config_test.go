package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "8090" {
		t.Fatalf("Port=%s, expected 8090", cfg.Port)
	}
	if len(cfg.Symbols) != 5 || cfg.Symbols[0] != "R_10" {
		t.Fatalf("Symbols=%v, expected the five volatility indices", cfg.Symbols)
	}
	if cfg.ReconnectDelay != 1.5 {
		t.Fatalf("ReconnectDelay=%v, expected 1.5", cfg.ReconnectDelay)
	}
	if cfg.DefaultPeriod != 20 || cfg.DefaultCooldown != 30 {
		t.Fatalf("defaults period=%d cooldown=%v, expected 20/30", cfg.DefaultPeriod, cfg.DefaultCooldown)
	}
	if cfg.TerminalID == "" {
		t.Fatalf("TerminalID empty, expected a machine id or fallback")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SYMBOLS", " R_10 , , R_75 ")
	t.Setenv("RECONNECT_DELAY_SECONDS", "0.5")
	t.Setenv("USE_MOCK_FEED", "true")
	t.Setenv("DEFAULT_PERIOD", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != "9999" {
		t.Fatalf("Port=%s, expected the override", cfg.Port)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[1] != "R_75" {
		t.Fatalf("Symbols=%v, expected trimmed [R_10 R_75]", cfg.Symbols)
	}
	if cfg.ReconnectDelay != 0.5 {
		t.Fatalf("ReconnectDelay=%v, expected 0.5", cfg.ReconnectDelay)
	}
	if !cfg.UseMockFeed {
		t.Fatalf("UseMockFeed=false, expected the override")
	}
	// Unparseable numbers fall back to the default instead of failing boot.
	if cfg.DefaultPeriod != 20 {
		t.Fatalf("DefaultPeriod=%d, expected the default 20", cfg.DefaultPeriod)
	}
}
