package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dealflow/internal/store"
)

func newCompaniesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "Manage the company database",
	}

	cmd.AddCommand(newCompaniesImportCmd())
	return cmd
}

func newCompaniesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert companies from a YAML or JSON list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			companies, err := store.LoadCompaniesFile(args[0])
			if err != nil {
				return err
			}

			ctx := context.Background()
			cs := store.NewCompanyStore(a.db)
			n, err := cs.Import(ctx, companies)
			if err != nil {
				return err
			}
			total, err := cs.Count(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d companies (%d in database)\n", n, total)
			return nil
		},
	}
}
