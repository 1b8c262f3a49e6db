package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.AI.APIKey = expandEnvVars(cfg.AI.APIKey)
	cfg.Providers.OpenBB.APIKey = expandEnvVars(cfg.Providers.OpenBB.APIKey)
	cfg.Providers.CoinGecko.APIKey = expandEnvVars(cfg.Providers.CoinGecko.APIKey)
	cfg.Providers.Tavily.APIKey = expandEnvVars(cfg.Providers.Tavily.APIKey)
	cfg.Providers.Exa.APIKey = expandEnvVars(cfg.Providers.Exa.APIKey)
}

// LoadDotenv loads KEY=value pairs from the given .env files into the
// process environment. Missing files are skipped and variables that are
// already set are never overwritten. It returns the files that were read.
func LoadDotenv(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, err
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, &ConfigError{Message: "failed to parse " + f + ": " + err.Error()}
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Gateway.RequestTimeoutMs == 0 {
		cfg.Gateway.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "file"
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = DefaultMaxTurns
	}
	if cfg.Session.TimeoutMs == 0 {
		cfg.Session.TimeoutMs = DefaultSessionTimeoutMs
	}
	if cfg.Telemetry.SlowThresholdMs == 0 {
		cfg.Telemetry.SlowThresholdMs = DefaultSlowThresholdMs
	}
	if cfg.Orchestrator.IntentTimeoutMs == 0 {
		cfg.Orchestrator.IntentTimeoutMs = DefaultIntentTimeoutMs
	}
	if cfg.Synthesis.MaxTokens == 0 {
		cfg.Synthesis.MaxTokens = DefaultSynthesisTokens
	}
	if cfg.Synthesis.Temperature == nil {
		cfg.Synthesis.Temperature = floatPtr(defaultSynthesisTemp)
	}
	if cfg.Synthesis.TimeoutMs == 0 {
		cfg.Synthesis.TimeoutMs = DefaultAITimeoutMs
	}
	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = DefaultChatTokens
	}
	if cfg.Chat.Temperature == nil {
		cfg.Chat.Temperature = floatPtr(defaultChatTemp)
	}
	if cfg.Chat.TimeoutMs == 0 {
		cfg.Chat.TimeoutMs = DefaultAITimeoutMs
	}
	if cfg.Tools.TimeoutMs == 0 {
		cfg.Tools.TimeoutMs = DefaultToolTimeoutMs
	}
	if cfg.Tools.MaxConcurrency == 0 {
		cfg.Tools.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Providers.OpenBB.BaseURL == "" {
		cfg.Providers.OpenBB.BaseURL = DefaultOpenBBBaseURL
	}
	if cfg.Providers.CoinGecko.BaseURL == "" {
		cfg.Providers.CoinGecko.BaseURL = DefaultCoinGeckoBaseURL
	}
	if cfg.Providers.Tavily.BaseURL == "" {
		cfg.Providers.Tavily.BaseURL = DefaultTavilyBaseURL
	}
	if cfg.Providers.Exa.BaseURL == "" {
		cfg.Providers.Exa.BaseURL = DefaultExaBaseURL
	}
	if cfg.Files.MaxBytes == 0 {
		cfg.Files.MaxBytes = DefaultFileMaxBytes
	}
}

// providerKeyEnv maps well-known provider environment variables onto
// config fields that were left empty.
var providerKeyEnv = []struct {
	env   string
	field func(*Config) *string
}{
	{"OPENBB_PAT", func(c *Config) *string { return &c.Providers.OpenBB.APIKey }},
	{"COINGECKO_API_KEY", func(c *Config) *string { return &c.Providers.CoinGecko.APIKey }},
	{"TAVILY_API_KEY", func(c *Config) *string { return &c.Providers.Tavily.APIKey }},
	{"EXA_API_KEY", func(c *Config) *string { return &c.Providers.Exa.APIKey }},
}

// AIKeyEnv returns the environment variable holding the key for an AI provider.
func AIKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// applyEnvOverrides reads DEALFLOW_* and provider key environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEALFLOW_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("DEALFLOW_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("DEALFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DEALFLOW_AI_PROVIDER"); v != "" {
		cfg.AI.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("DEALFLOW_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("DEALFLOW_SESSION_STORE"); v != "" {
		cfg.Session.Store = strings.ToLower(v)
	}
	if cfg.AI.APIKey == "" {
		if env := AIKeyEnv(cfg.AI.Provider); env != "" {
			cfg.AI.APIKey = os.Getenv(env)
		}
	}
	for _, p := range providerKeyEnv {
		if field := p.field(cfg); *field == "" {
			*field = os.Getenv(p.env)
		}
	}
}
