package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Default tuning values.
const (
	DefaultPort             = 18790
	DefaultMaxTurns         = 50
	DefaultSessionTimeoutMs = 5000
	DefaultIntentTimeoutMs  = 15000
	DefaultToolTimeoutMs    = 30000
	DefaultRequestTimeoutMs = 300000
	DefaultSynthesisTokens  = 4096
	DefaultChatTokens       = 1024
	DefaultAITimeoutMs      = 60000
	DefaultSlowThresholdMs  = 5000
	DefaultMaxConcurrency   = 4
	DefaultFileMaxBytes     = 1 << 20
	DefaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	DefaultOpenBBBaseURL    = "http://127.0.0.1:6900"
	DefaultTavilyBaseURL    = "https://api.tavily.com"
	DefaultExaBaseURL       = "https://api.exa.ai"
	defaultSynthesisTemp    = 0.2
	defaultChatTemp         = 0.7
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{
		Gateway: GatewayConfig{
			Port: DefaultPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
			RequestTimeoutMs: DefaultRequestTimeoutMs,
		},
		AI: AIConfig{
			Provider: "openai",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Session: SessionConfig{
			Store:     "file",
			MaxTurns:  DefaultMaxTurns,
			TimeoutMs: DefaultSessionTimeoutMs,
		},
		Telemetry: TelemetryConfig{
			SlowThresholdMs: DefaultSlowThresholdMs,
		},
		Orchestrator: OrchestratorConfig{
			IntentTimeoutMs: DefaultIntentTimeoutMs,
		},
		Tools: ToolsConfig{
			TimeoutMs:      DefaultToolTimeoutMs,
			MaxConcurrency: DefaultMaxConcurrency,
		},
		Files: FilesConfig{
			MaxBytes: DefaultFileMaxBytes,
		},
	}
	applyDefaults(&cfg)
	return cfg
}

func floatPtr(f float64) *float64 { return &f }
