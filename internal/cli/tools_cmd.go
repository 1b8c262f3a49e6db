package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}

	cmd.AddCommand(newToolsListCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tools contributed by the enabled plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(appOptions{defaultLevel: "warn"})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.loadTools(context.Background()); err != nil {
				return err
			}

			rows := [][]string{}
			for _, def := range a.executor.Definitions() {
				rows = append(rows, []string{def.Name, firstLine(def.Description)})
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("TOOL", "DESCRIPTION").
				Rows(rows...)
			fmt.Fprintln(cmd.OutOrStdout(), t.String())

			for _, info := range a.plugins.Info() {
				if !info.Enabled {
					fmt.Fprintf(cmd.OutOrStdout(), "plugin %s is disabled\n", info.ID)
				}
			}
			return nil
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
