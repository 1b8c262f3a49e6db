package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dealflow/internal/config"
	"github.com/soyeahso/dealflow/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dealflow",
		Short: "dealflow: deal-flow CRM driven by natural-language commands",
		Long: "dealflow turns free-text commands like \"find biotech companies in Germany\" " +
			"into company searches, market lookups and research, and answers in plain language.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}

			level := logLevel
			if level == "" {
				level = envOr("DEALFLOW_LOG_LEVEL", "info")
			}
			log = logging.New(nil, level)

			loaded, err := config.LoadDotenv(".env", paths.Env)
			if err != nil {
				return err
			}
			if len(loaded) > 0 {
				log.Debug().Strs("files", loaded).Msg("dotenv loaded")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.dealflow/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSessionsCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newCompaniesCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// envOr returns the environment variable or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
