package config

import "time"

// Config is the root configuration for dealflow.
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway,omitempty"`
	AI           AIConfig           `yaml:"ai,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
	Session      SessionConfig      `yaml:"session,omitempty"`
	Database     DatabaseConfig     `yaml:"database,omitempty"`
	Telemetry    TelemetryConfig    `yaml:"telemetry,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Synthesis    GenerationConfig   `yaml:"synthesis,omitempty"`
	Chat         GenerationConfig   `yaml:"chat,omitempty"`
	Tools        ToolsConfig        `yaml:"tools,omitempty"`
	Providers    ProvidersConfig    `yaml:"providers,omitempty"`
	Files        FilesConfig        `yaml:"files,omitempty"`
	Companies    CompaniesConfig    `yaml:"companies,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port             int              `yaml:"port,omitempty"`
	Bind             string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost   string           `yaml:"customBindHost,omitempty"`
	RequestTimeoutMs int              `yaml:"requestTimeoutMs,omitempty"`
	Auth             GatewayAuth      `yaml:"auth,omitempty"`
	TLS              GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI        GatewayControlUI `yaml:"controlUi,omitempty"`
}

// RequestTimeout is the deadline applied to each terminal command.
func (g GatewayConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutMs) * time.Millisecond
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures browser access to the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// AIConfig selects the AI provider used for intent classification,
// tool calling, synthesis and conversational replies.
type AIConfig struct {
	Provider  string   `yaml:"provider,omitempty"` // "openai" | "anthropic" | "gemini" | "ollama" | "none"
	Model     string   `yaml:"model,omitempty"`
	APIKey    string   `yaml:"apiKey,omitempty"`
	Endpoint  string   `yaml:"endpoint,omitempty"`
	Fallbacks []string `yaml:"fallbacks,omitempty"` // other providers tried on retryable errors
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// SessionConfig defines conversation history storage.
type SessionConfig struct {
	Store     string `yaml:"store,omitempty"` // "file" | "sqlite" | "memory"
	Dir       string `yaml:"dir,omitempty"`
	MaxTurns  int    `yaml:"maxTurns,omitempty"`
	TimeoutMs int    `yaml:"timeoutMs,omitempty"`
}

// Timeout bounds every session backend call.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// TelemetryConfig controls execution telemetry streams.
type TelemetryConfig struct {
	Enabled         *bool  `yaml:"enabled,omitempty"`
	Dir             string `yaml:"dir,omitempty"`
	SlowThresholdMs int    `yaml:"slowThresholdMs,omitempty"`
}

// IsEnabled defaults to true when unset.
func (t TelemetryConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// SlowThreshold is the duration above which a performance event is logged.
func (t TelemetryConfig) SlowThreshold() time.Duration {
	return time.Duration(t.SlowThresholdMs) * time.Millisecond
}

// OrchestratorConfig tunes the command pipeline.
type OrchestratorConfig struct {
	IntentTimeoutMs int `yaml:"intentTimeoutMs,omitempty"`
}

// IntentTimeout bounds the AI intent classification call.
func (o OrchestratorConfig) IntentTimeout() time.Duration {
	return time.Duration(o.IntentTimeoutMs) * time.Millisecond
}

// GenerationConfig sets token budget and randomness for one kind of AI call.
type GenerationConfig struct {
	MaxTokens   int      `yaml:"maxTokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	TimeoutMs   int      `yaml:"timeoutMs,omitempty"`
}

// Timeout bounds the AI call.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// ToolsConfig controls tool execution.
type ToolsConfig struct {
	TimeoutMs      int      `yaml:"timeoutMs,omitempty"`
	Parallel       bool     `yaml:"parallel,omitempty"`
	MaxConcurrency int      `yaml:"maxConcurrency,omitempty"`
	Disabled       []string `yaml:"disabled,omitempty"` // plugin ids not to load
}

// Timeout bounds a single tool call.
func (t ToolsConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// ProvidersConfig holds market-data and research provider settings.
type ProvidersConfig struct {
	OpenBB    ProviderEntry `yaml:"openbb,omitempty"`
	CoinGecko ProviderEntry `yaml:"coingecko,omitempty"`
	Tavily    ProviderEntry `yaml:"tavily,omitempty"`
	Exa       ProviderEntry `yaml:"exa,omitempty"`
}

// ProviderEntry is one external data provider.
type ProviderEntry struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"`
}

// FilesConfig sandboxes the file tools.
type FilesConfig struct {
	Roots    []string `yaml:"roots,omitempty"`
	MaxBytes int64    `yaml:"maxBytes,omitempty"`
}

// CompaniesConfig seeds the company database from a YAML file.
type CompaniesConfig struct {
	SeedFile string `yaml:"seedFile,omitempty"`
	Watch    bool   `yaml:"watch,omitempty"` // re-import when the seed file changes
}
