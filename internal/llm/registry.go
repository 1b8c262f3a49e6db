package llm

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/logging"
)

// Registry manages provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered AI provider")
}

// Alias maps a model name to a provider, e.g. Alias("gpt-4o", "openai").
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the provider used when no name or alias matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(ref string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[ref]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[ref]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no AI provider for %q", ref)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether no provider is registered.
func (r *Registry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) == 0
}

var providerAliases = map[string][]string{
	"openai":    {"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini"},
	"anthropic": {"claude", "sonnet", "haiku", "opus"},
	"gemini":    {"gemini-2.5-flash", "gemini-2.5-pro", "flash"},
	"ollama":    {"llama", "llama3", "llama3.1", "mistral", "qwen"},
}

// NewRegistryFromConfig registers the configured primary provider followed
// by any fallbacks. Providers that need a key and have none are skipped.
// Provider "none" yields an empty registry.
func NewRegistryFromConfig(cfg config.AIConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	primary := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if primary == "" || primary == "none" {
		return reg
	}

	if c := newProviderClient(primary, cfg.APIKey, cfg.Model, cfg.Endpoint, log); c != nil {
		reg.Register(primary, c)
		reg.SetFallback(primary)
	} else {
		reg.log.Warn().Str("provider", primary).Msg("AI provider has no API key, skipping")
	}

	for _, fb := range cfg.Fallbacks {
		fb = strings.ToLower(strings.TrimSpace(fb))
		if fb == "" || fb == "none" || fb == primary {
			continue
		}
		key := ""
		if env := config.AIKeyEnv(fb); env != "" {
			key = os.Getenv(env)
		}
		if c := newProviderClient(fb, key, "", "", log); c != nil {
			reg.Register(fb, c)
			if reg.fallback == "" {
				reg.SetFallback(fb)
			}
		}
	}

	for provider, aliases := range providerAliases {
		for _, a := range aliases {
			reg.Alias(a, provider)
		}
	}
	return reg
}

func newProviderClient(provider, apiKey, model, endpoint string, log *logging.Logger) Client {
	switch provider {
	case "openai":
		if apiKey == "" {
			return nil
		}
		return NewOpenAIClient(apiKey, model, endpoint)
	case "anthropic":
		if apiKey == "" {
			return nil
		}
		return NewAnthropicClient(apiKey, model, endpoint)
	case "gemini":
		if apiKey == "" {
			return nil
		}
		c, err := NewGeminiClient(apiKey, model)
		if err != nil {
			log.Warn().Err(err).Msg("gemini client unavailable")
			return nil
		}
		return c
	case "ollama":
		return NewOllamaClient(endpoint, model, log)
	default:
		return nil
	}
}
