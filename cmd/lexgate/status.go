// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/lexgate-dev/lexgate/internal/audit"
	"github.com/lexgate-dev/lexgate/internal/keypool"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Check the running gateway and display pool occupancy and per-credential state.",
		RunE:  runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:8187", "ops API address to check")
	cmd.Flags().Int("recent", 0, "also show the N most recent audit events")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	recent, _ := cmd.Flags().GetInt("recent")
	out := cmd.OutOrStdout()

	ops := newOpsClient(addr)

	var health struct {
		Status  string  `json:"status"`
		Version string  `json:"version"`
		Uptime  float64 `json:"uptime_seconds"`
	}
	if err := ops.getJSON("/health", &health); err != nil {
		if lexerr.HasCode(err, lexerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	uptime := time.Duration(health.Uptime * float64(time.Second)).Round(time.Second)
	_, _ = fmt.Fprintf(out, "Gateway at %s: %s (version %s, up %s)\n\n", addr, health.Status, health.Version, uptime)

	var pools struct {
		Pools []keypool.PoolStatus `json:"pools"`
	}
	if err := ops.getJSON("/v1/pools", &pools); err != nil {
		return err
	}
	printPools(out, pools.Pools)

	if recent > 0 {
		var events struct {
			Events []audit.Event `json:"events"`
		}
		if err := ops.getJSON(fmt.Sprintf("/v1/events?limit=%d", recent), &events); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out)
		printEvents(out, events.Events)
	}

	return nil
}

func printPools(out io.Writer, pools []keypool.PoolStatus) {
	if len(pools) == 0 {
		_, _ = fmt.Fprintln(out, "No credential pools configured.")
		return
	}

	_, _ = fmt.Fprintf(out, "%-12s %6s %7s %8s %8s\n", "PROVIDER", "KEYS", "USABLE", "COOLING", "REVOKED")
	for _, p := range pools {
		_, _ = fmt.Fprintf(out, "%-12s %6d %7d %8d %8d\n",
			p.Provider, p.Total, p.Usable, p.Cooling, p.Revoked)
	}

	for _, p := range pools {
		for _, c := range p.Credentials {
			if !c.Disabled && !c.Revoked {
				continue
			}
			state := "cooling"
			if c.Revoked {
				state = "revoked"
			}
			_, _ = fmt.Fprintf(out, "  %s/%s: %s", p.Provider, c.ID, state)
			if c.DisabledUntil != nil {
				_, _ = fmt.Fprintf(out, " until %s", c.DisabledUntil.Format(time.TimeOnly))
			}
			_, _ = fmt.Fprintln(out)
		}
	}
}

func printEvents(out io.Writer, events []audit.Event) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(out, "No recent events.")
		return
	}

	_, _ = fmt.Fprintln(out, "Recent events:")
	for _, ev := range events {
		_, _ = fmt.Fprintf(out, "  %s %-22s", ev.Time.Format(time.TimeOnly), ev.Type)
		if ev.Provider != "" {
			_, _ = fmt.Fprintf(out, " provider=%s", ev.Provider)
		}
		if ev.Credential != "" {
			_, _ = fmt.Fprintf(out, " credential=%s", ev.Credential)
		}
		if ev.Category != "" {
			_, _ = fmt.Fprintf(out, " category=%s", ev.Category)
		}
		if ev.Detail != "" {
			_, _ = fmt.Fprintf(out, " %s", ev.Detail)
		}
		_, _ = fmt.Fprintln(out)
	}
}
