package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bookshelf/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, model and job status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				health, err := client.Health(callCtx)
				if errors.Is(err, api.ErrDaemonUnavailable) {
					if asJSON {
						return writeJSON(cmd, api.Health{Status: "offline"})
					}
					for _, line := range renderSectionHeader("Daemon", colorize) {
						fmt.Fprintln(out, line)
					}
					fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "Not running", colorize))
					return nil
				}
				if err != nil {
					return err
				}
				scan, err := client.ScanStatus(callCtx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Health *api.Health     `json:"health"`
						Scan   *api.ScanStatus `json:"scan"`
					}{health, scan})
				}

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "Running", colorize))
				fmt.Fprintln(out, modelStatusLine(health, colorize))

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Jobs", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, scanStatusLine(scan, colorize))
				if health.SyncActive {
					fmt.Fprintln(out, renderStatusLine("Taxonomy sync", statusOK, "Running", colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Taxonomy sync", statusInfo, "Idle", colorize))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func modelStatusLine(health *api.Health, colorize bool) string {
	if !health.AI {
		return renderStatusLine("Model", statusWarn, health.AIDetail, colorize)
	}
	detail := fmt.Sprintf("%s (%s)", health.AIName, health.AIDetail)
	if health.AIContextSize > 0 {
		detail = fmt.Sprintf("%s, context %d", detail, health.AIContextSize)
	}
	return renderStatusLine("Model", statusOK, detail, colorize)
}

func scanStatusLine(scan *api.ScanStatus, colorize bool) string {
	if scan == nil || !scan.Active {
		return renderStatusLine("Content scan", statusInfo, "Idle", colorize)
	}
	detail := fmt.Sprintf("%d/%d", scan.Processed, scan.Total)
	if scan.CurrentFile != nil && *scan.CurrentFile != "" {
		detail += " " + *scan.CurrentFile
	}
	if scan.StartTime != nil {
		elapsed := time.Since(time.UnixMilli(*scan.StartTime)).Truncate(time.Second)
		detail += fmt.Sprintf(" (%s elapsed)", elapsed)
	}
	if scan.Stopping {
		return renderStatusLine("Content scan", statusWarn, "Stopping at "+detail, colorize)
	}
	return renderStatusLine("Content scan", statusOK, detail, colorize)
}
