package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/session"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored conversation sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(appOptions{defaultLevel: "warn"})
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.sessions.List(context.Background())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{
					s.ID,
					strconv.Itoa(s.Turns),
					s.LastUpdated.Local().Format(time.DateTime),
				})
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("SESSION", "TURNS", "LAST UPDATED").
				Rows(rows...)
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's conversation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(appOptions{defaultLevel: "warn"})
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.sessions.Get(context.Background(), args[0])
			if errors.Is(err, session.ErrNotFound) {
				return fmt.Errorf("session not found: %s", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s (%d turns, created %s)\n\n",
				sess.ID, len(sess.Turns), sess.CreatedAt.Local().Format(time.DateTime))
			for _, turn := range sess.Turns {
				label := userStyle.Render("you")
				if turn.Role == domain.RoleAssistant {
					label = assistantStyle.Render("dealflow")
				}
				fmt.Fprintf(out, "%s %s\n%s\n\n",
					label, mutedStyle.Render(turn.Timestamp.Local().Format(time.TimeOnly)), turn.Content)
			}
			return nil
		},
	}
}
