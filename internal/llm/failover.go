package llm

import (
	"context"

	"github.com/soyeahso/dealflow/internal/logging"
)

// FailoverClient tries registered providers in order, moving to the next
// one only on retryable errors (401, 429, 5xx).
type FailoverClient struct {
	registry *Registry
	order    []string
	log      *logging.Logger
}

// NewFailoverClient creates a client that tries primary first, then each
// fallback in turn.
func NewFailoverClient(registry *Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	order := make([]string, 0, len(fallbacks)+1)
	if primary != "" {
		order = append(order, primary)
	}
	order = append(order, fallbacks...)
	return &FailoverClient{
		registry: registry,
		order:    order,
		log:      log.Sub("failover"),
	}
}

// Name reports the primary provider.
func (f *FailoverClient) Name() string {
	if len(f.order) == 0 {
		return "none"
	}
	return f.order[0]
}

// Complete tries each provider, returning the first success or the last error.
func (f *FailoverClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if f.registry == nil || f.registry.Empty() {
		return nil, ErrNoProvider
	}

	lastErr := error(ErrNoProvider)
	tried := make(map[Client]bool, len(f.order))
	for _, name := range f.order {
		client, err := f.registry.Resolve(name)
		if err != nil {
			f.log.Debug().Str("provider", name).Err(err).Msg("no provider, skipping")
			lastErr = err
			continue
		}
		if tried[client] {
			continue
		}
		tried[client] = true

		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if IsRetryable(err) && ctx.Err() == nil {
			f.log.Warn().Str("provider", name).Err(err).Msg("retryable error, trying next provider")
			continue
		}
		return nil, err
	}
	return nil, lastErr
}
