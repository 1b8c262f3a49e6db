package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/soyeahso/dealflow/internal/domain"
)

const wordWrap = 100

func newAskCmd() *cobra.Command {
	var (
		sessionID string
		asJSON    bool
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "ask <command...>",
		Short: "Run one command and print the answer",
		Example: `  dealflow ask "find biotech companies in Germany"
  dealflow ask --session deal-review "what about Switzerland?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(appOptions{defaultLevel: "warn"})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.startOrchestrator(ctx); err != nil {
				return err
			}

			resp := a.orch.Handle(ctx, domain.Command{
				Text:      strings.Join(args, " "),
				SessionID: sessionID,
			})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return err
				}
			} else {
				if err := printAnswer(out, resp.Message, plain); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[session=%s tools=%s]\n",
					resp.SessionID, strings.Join(resp.ToolsUsed, ","))
			}

			if !resp.Success {
				return errors.New("command failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue (default: new session)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the answer without markdown rendering")

	return cmd
}

// printAnswer renders markdown answers for the terminal. Pre-formatted tool
// output (box-drawn tables) is printed as is so columns stay aligned.
func printAnswer(w io.Writer, msg string, plain bool) error {
	if plain || isPreformatted(msg) {
		_, err := fmt.Fprintln(w, msg)
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		_, err = fmt.Fprintln(w, msg)
		return err
	}
	rendered, err := renderer.Render(msg)
	if err != nil {
		_, err = fmt.Fprintln(w, msg)
		return err
	}
	_, err = io.WriteString(w, rendered)
	return err
}

func isPreformatted(msg string) bool {
	return strings.ContainsAny(msg, "┌└│")
}
