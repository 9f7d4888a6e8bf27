package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Agent holds configuration for the lens agent that drives browser tabs.
type Agent struct {
	// CDP connection settings
	CDPAddress   string
	CDPPort      int
	TabURLFilter string

	// Optional browser launch
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string

	// Lookup bridge
	BridgeURL       string
	LookupTimeoutMS int

	// Scanning and rendering
	DebounceMS      int
	Locale          string
	DefaultDecimals int

	// Trading panel
	PanelRules   string
	NTFYEndpoint string

	LogLevel string
	LogFile  string
}

// LoadAgent reads agent configuration from environment variables and an
// optional .env file.
func LoadAgent() (*Agent, error) {
	loadDotEnv()

	cfg := &Agent{
		CDPAddress:      getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:         getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		TabURLFilter:    getEnvOrDefault("LENS_TAB_URL_FILTER", ""),
		LaunchBrowser:   getEnvBoolOrDefault("LENS_LAUNCH_BROWSER", false),
		StartURL:        getEnvOrDefault("LENS_START_URL", "about:blank"),
		ProfileDir:      getEnvOrDefault("LENS_PROFILE_DIR", "./browser_profile"),
		BridgeURL:       getEnvOrDefault("LENS_BRIDGE_URL", "ws://127.0.0.1:8190/api/v1/bridge"),
		LookupTimeoutMS: getEnvIntOrDefault("LENS_LOOKUP_TIMEOUT_MS", 10000),
		DebounceMS:      getEnvIntOrDefault("LENS_DEBOUNCE_MS", 100),
		Locale:          getEnvOrDefault("LENS_LOCALE", "en-US"),
		DefaultDecimals: getEnvIntOrDefault("LENS_DEFAULT_DECIMALS", 6),
		PanelRules:      getEnvOrDefault("LENS_PANEL_RULES", ""),
		NTFYEndpoint:    getEnvOrDefault("LENS_NTFY_ENDPOINT", ""),
		LogLevel:        strings.ToLower(getEnvOrDefault("LENS_LOG_LEVEL", "info")),
		LogFile:         getEnvOrDefault("LENS_LOG_FILE", "logs/lens_agent.log"),
	}
	if cfg.DebounceMS < 10 {
		cfg.DebounceMS = 10
	}
	if cfg.LookupTimeoutMS < 1000 {
		cfg.LookupTimeoutMS = 1000
	}
	if cfg.DefaultDecimals < 0 {
		return nil, fmt.Errorf("config: LENS_DEFAULT_DECIMALS must be >= 0, got %d", cfg.DefaultDecimals)
	}
	if !strings.HasPrefix(cfg.BridgeURL, "ws://") && !strings.HasPrefix(cfg.BridgeURL, "wss://") {
		return nil, fmt.Errorf("config: LENS_BRIDGE_URL must be a ws:// or wss:// URL, got %q", cfg.BridgeURL)
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Agent) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func (c *Agent) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c *Agent) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMS) * time.Millisecond
}

// Bridge holds configuration for the lookup bridge service.
type Bridge struct {
	BindAddr          string
	PortAutoFallback  bool
	PortCandidates    []string
	UpstreamURL       string
	UpstreamTimeoutMS int
	RatePerSec        float64
	RateBurst         int
	LogLevel          string
	LogFile           string
}

// LoadBridge reads bridge configuration from environment variables and an
// optional .env file.
func LoadBridge() (*Bridge, error) {
	loadDotEnv()

	cfg := &Bridge{
		BindAddr:          getEnvOrDefault("BRIDGE_BIND_ADDR", "127.0.0.1:8190"),
		PortAutoFallback:  getEnvBoolOrDefault("BRIDGE_PORT_AUTO_FALLBACK", false),
		PortCandidates:    getEnvListOrDefault("BRIDGE_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		UpstreamURL:       strings.TrimRight(getEnvOrDefault("BRIDGE_UPSTREAM_URL", "https://www.mightx.io/api"), "/"),
		UpstreamTimeoutMS: getEnvIntOrDefault("BRIDGE_UPSTREAM_TIMEOUT_MS", 8000),
		RatePerSec:        getEnvFloatOrDefault("BRIDGE_RATE_PER_SEC", 5),
		RateBurst:         getEnvIntOrDefault("BRIDGE_RATE_BURST", 10),
		LogLevel:          strings.ToLower(getEnvOrDefault("BRIDGE_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("BRIDGE_LOG_FILE", "logs/lookup_bridge.log"),
	}
	if cfg.UpstreamTimeoutMS < 1000 {
		cfg.UpstreamTimeoutMS = 1000
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	if cfg.UpstreamURL == "" {
		return nil, fmt.Errorf("config: BRIDGE_UPSTREAM_URL must not be empty")
	}
	return cfg, nil
}

func (c *Bridge) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutMS) * time.Millisecond
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
