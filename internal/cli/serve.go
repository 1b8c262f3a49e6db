package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/gateway"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway (HTTP API and WebSocket terminal)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if port != 0 {
				a.cfg.Gateway.Port = port
			}
			if bind != "" {
				a.cfg.Gateway.Bind = bind
			}

			if err := a.startOrchestrator(ctx); err != nil {
				return err
			}

			// Raw config backs the config.get RPC.
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				a.log.Warn().Err(err).Msg("raw config unavailable for RPC")
				raw = make(map[string]any)
			}

			srv := gateway.New(a.cfg, a.orch, a.log,
				gateway.WithConfigRaw(raw),
				gateway.WithSessions(a.sessions),
				gateway.WithTools(a.executor),
				gateway.WithHooks(a.hooks),
			)

			a.log.Info().
				Strs("plugins", a.plugins.List()).
				Strs("providers", a.providers).
				Str("sessionStore", a.cfg.Session.Store).
				Msg("dealflow ready")

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
