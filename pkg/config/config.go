package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/denisbrodbeck/machineid"
	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the terminal core.
type Config struct {
	Port string

	// Backend collaborator endpoints
	BackendHTTPURL string
	BackendWSURL   string
	BackendToken   string

	// Terminal identity reported to the backend on every connection.
	TerminalID string

	// Quotes
	Symbols        []string
	ReconnectDelay float64 // seconds between reconnect attempts
	UseMockFeed    bool

	// Automation defaults
	DefaultPeriod   int
	DefaultCooldown float64 // seconds
	Currency        string

	// Engine parameter presets (optional YAML file)
	PresetPath string

	// Database
	DBPath string

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the terminal still starts when .env is missing.
	_ = godotenv.Load()

	terminalID := os.Getenv("TERMINAL_ID")
	if terminalID == "" {
		// Stable per-machine identifier; falls back to a fixed name when the
		// platform offers no machine id (containers, stripped images).
		if id, err := machineid.ProtectedID("terminal-core"); err == nil {
			terminalID = id
		} else {
			terminalID = "terminal-core"
		}
	}

	return &Config{
		Port:            getEnv("PORT", "8090"),
		BackendHTTPURL:  getEnv("BACKEND_HTTP_URL", "http://localhost:8080"),
		BackendWSURL:    getEnv("BACKEND_WS_URL", "ws://localhost:8080"),
		BackendToken:    os.Getenv("BACKEND_TOKEN"),
		TerminalID:      terminalID,
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "R_10,R_25,R_50,R_75,R_100")),
		ReconnectDelay:  getEnvFloat("RECONNECT_DELAY_SECONDS", 1.5),
		UseMockFeed:     getEnv("USE_MOCK_FEED", "false") == "true",
		DefaultPeriod:   getEnvInt("DEFAULT_PERIOD", 20),
		DefaultCooldown: getEnvFloat("DEFAULT_COOLDOWN_SECONDS", 30),
		Currency:        getEnv("CURRENCY", "USD"),
		PresetPath:      getEnv("PRESET_PATH", ""),
		DBPath:          getEnv("DB_PATH", "./data/terminal.db"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
