// Package cli implements assistantctl, a command-line client for the
// assistant HTTP API.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

var version = "dev"

// SetVersion sets the version string reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

type rootOptions struct {
	apiURL  string
	token   string
	timeout time.Duration
	json    bool
}

// PublisherFactory opens a scan event publisher. The returned func releases
// the connection.
type PublisherFactory func(natsURL, subject string) (ports.ScanEventPublisher, func(), error)

// NewRootCommand builds the command tree. newClient is called after flags are
// parsed; tests inject a client bound to an httptest server. newPublisher may
// be nil, in which case scan --nats-url is rejected.
func NewRootCommand(newClient func(baseURL, token string, timeout time.Duration) *APIClient, newPublisher PublisherFactory) *cobra.Command {
	if newClient == nil {
		newClient = NewAPIClient
	}
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "assistantctl",
		Short: "Command-line client for the nutrition assistant API",
		Long: `assistantctl talks to a running assistant API.

Example usage:
  assistantctl scan --session X Suon Tofu
  assistantctl ask --session X "Hai món này ăn chung có hợp không?"
  assistantctl session X --turns`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", envOr("ASSISTANT_API_URL", "http://localhost:8080"), "assistant API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("ASSISTANT_API_TOKEN"), "bearer token for the API")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	client := func() *APIClient {
		return newClient(opts.apiURL, opts.token, opts.timeout)
	}

	root.AddCommand(
		newAskCommand(opts, client),
		newScanCommand(opts, client, newPublisher),
		newSessionCommand(opts, client),
		newVersionCommand(),
	)
	return root
}

func newAskCommand(opts *rootOptions, client func() *APIClient) *cobra.Command {
	var sessionID, department string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question within a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := client().Ask(cmd.Context(), sessionID, strings.Join(args, " "), department)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), reply)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, reply.Answer)
			fmt.Fprintf(w, "\n[%s via %s, intent %s]\n", reply.Outcome, reply.Path, reply.Intent)
			for i, src := range reply.Sources {
				fmt.Fprintf(w, "  %d. %s\n", i+1, src)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id")
	cmd.Flags().StringVar(&department, "department", "", "caller department for access filtering")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newScanCommand(opts *rootOptions, client func() *APIClient, newPublisher PublisherFactory) *cobra.Command {
	var sessionID, natsURL, subject string
	cmd := &cobra.Command{
		Use:   "scan [label...]",
		Short: "Report detector labels for a session",
		Long: `Report detector labels for a session.

With --nats-url the labels are published as a scan event for the worker
instead of being sent to the API.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if natsURL != "" {
				if newPublisher == nil {
					return fmt.Errorf("publishing scan events is not supported by this build")
				}
				publisher, closeFn, err := newPublisher(natsURL, subject)
				if err != nil {
					return err
				}
				defer closeFn()
				if err := publisher.PublishScan(cmd.Context(), sessionID, args); err != nil {
					return fmt.Errorf("publish scan event: %w", err)
				}
				fmt.Fprintf(w, "published %d label(s) for session %s to %s\n", len(args), sessionID, subject)
				return nil
			}

			result, err := client().Scan(cmd.Context(), sessionID, args)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(w, result)
			}
			if !result.Applied {
				fmt.Fprintln(w, "no known labels; session focus unchanged")
				return nil
			}
			fmt.Fprintf(w, "scanned: %s\n", strings.Join(result.Items, ", "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id")
	cmd.Flags().StringVar(&natsURL, "nats-url", os.Getenv("ASSISTANT_NATS_URL"), "publish to NATS instead of calling the API")
	cmd.Flags().StringVar(&subject, "subject", envOr("NATS_SCAN_SUBJECT", "scans.detected"), "NATS subject for scan events")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newSessionCommand(opts *rootOptions, client func() *APIClient) *cobra.Command {
	var withTurns bool
	var limit int
	cmd := &cobra.Command{
		Use:   "session [id]",
		Short: "Show session focus and recent turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			view, err := c.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json && !withTurns {
				return printJSON(cmd.OutOrStdout(), view)
			}
			w := cmd.OutOrStdout()
			if !opts.json {
				fmt.Fprintf(w, "session %s: focus=%s history=%d\n", view.SessionID, view.Focus, view.HistoryLen)
				if len(view.ScannedItems) > 0 {
					fmt.Fprintf(w, "scanned: %s\n", strings.Join(view.ScannedItems, ", "))
				}
			}
			if !withTurns {
				return nil
			}
			turns, err := c.Turns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(w, map[string]any{"session": view, "turns": turns})
			}
			for _, t := range turns {
				fmt.Fprintf(w, "%s  %-9s %-13s %s\n", t.CreatedAt.Format(time.RFC3339), t.Path, t.Outcome, t.Question)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withTurns, "turns", false, "also list journaled turns")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of turns to list")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "assistantctl %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
