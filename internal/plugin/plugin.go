// Package plugin manages the lifecycle of tool plugins. A plugin groups
// related tools and registers them, and any hooks, during Init.
package plugin

import (
	"context"

	"github.com/soyeahso/dealflow/internal/hooks"
	"github.com/soyeahso/dealflow/internal/logging"
	"github.com/soyeahso/dealflow/internal/tool"
)

// Plugin is implemented by every tool bundle.
type Plugin interface {
	// ID returns a unique identifier (e.g., "companies").
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init registers tools and hooks and sets up resources.
	Init(ctx context.Context, api API) error

	// Close releases resources.
	Close() error
}

// API is what a plugin receives during Init.
type API struct {
	Tools *tool.Registry
	Hooks *hooks.Manager
	Log   *logging.Logger
}
