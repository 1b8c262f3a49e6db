package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	oneOf := func(path, got string, valid []string) {
		if got != "" && !slices.Contains(valid, got) {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must be one of %v, got %q", valid, got),
			})
		}
	}
	nonNegative := func(path string, v int) {
		if v < 0 {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must not be negative, got %d", v),
			})
		}
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password"})
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}
	nonNegative("gateway.requestTimeoutMs", cfg.Gateway.RequestTimeoutMs)

	// AI validation
	validProviders := []string{"openai", "anthropic", "gemini", "ollama", "none"}
	oneOf("ai.provider", cfg.AI.Provider, validProviders)
	for i, fb := range cfg.AI.Fallbacks {
		oneOf(fmt.Sprintf("ai.fallbacks[%d]", i), fb, validProviders)
	}

	// Logging validation
	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	// Session validation
	oneOf("session.store", cfg.Session.Store, []string{"file", "sqlite", "memory"})
	nonNegative("session.maxTurns", cfg.Session.MaxTurns)
	nonNegative("session.timeoutMs", cfg.Session.TimeoutMs)

	nonNegative("telemetry.slowThresholdMs", cfg.Telemetry.SlowThresholdMs)
	nonNegative("orchestrator.intentTimeoutMs", cfg.Orchestrator.IntentTimeoutMs)

	// Generation validation
	gens := []struct {
		name string
		cfg  GenerationConfig
	}{{"synthesis", cfg.Synthesis}, {"chat", cfg.Chat}}
	for _, gen := range gens {
		name, g := gen.name, gen.cfg
		nonNegative(name+".maxTokens", g.MaxTokens)
		if g.Temperature != nil && (*g.Temperature < 0 || *g.Temperature > 2) {
			issues = append(issues, ValidationIssue{
				Path:    name + ".temperature",
				Message: fmt.Sprintf("must be 0-2, got %g", *g.Temperature),
			})
		}
	}

	// Tools validation
	nonNegative("tools.timeoutMs", cfg.Tools.TimeoutMs)
	nonNegative("tools.maxConcurrency", cfg.Tools.MaxConcurrency)
	if cfg.Files.MaxBytes < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "files.maxBytes",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Files.MaxBytes),
		})
	}

	return issues
}
