package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/playperu/promptparty/internal/eventlog"
	"github.com/playperu/promptparty/internal/server"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newConnectionsCmd prints the live connection registry of a running server.
func newConnectionsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Dump the live connections of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(addr, "/")+"/api/connections", nil)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("requesting connections: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server answered %s", resp.Status)
			}

			var dump server.ConnectionsResponse
			if err := json.NewDecoder(resp.Body).Decode(&dump); err != nil {
				return fmt.Errorf("decoding connections: %w", err)
			}
			return printConnections(cmd, dump)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("PROMPTPARTY_URL", "http://localhost:8080"), "base URL of the running server")
	return cmd
}

func printConnections(cmd *cobra.Command, dump server.ConnectionsResponse) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tournament: %s\nmodel:      %s\n", orDash(dump.Settings.TournamentName), orDash(dump.Settings.ModelName))
	if r := dump.CurrentRound; r != nil {
		fmt.Fprintf(out, "round:      #%d %q (started %s)\n", r.Number, r.Prompt, r.StartTime.Format(time.TimeOnly))
	} else {
		fmt.Fprintln(out, "round:      -")
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROLE\tNAME")
	for _, c := range dump.Connections {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, orDash(string(c.Role)), orDash(c.Name))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d connection(s)\n", len(dump.Connections))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// newTailCmd follows the event log mirrored to Redis.
func newTailCmd() *cobra.Command {
	var redisURL, channel string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the event log mirrored to Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if redisURL == "" {
				return errors.New("--redis-url or REDIS_URL is required")
			}
			ctx := cmd.Context()
			rdb, err := openRedis(ctx, redisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			entries, stop := eventlog.Tail(ctx, rdb, channel, logger)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL the server mirrors to")
	cmd.Flags().StringVar(&channel, "channel", envOr("REDIS_CHANNEL", eventlog.DefaultChannel), "pub/sub channel")
	return cmd
}
