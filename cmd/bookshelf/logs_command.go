package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"bookshelf/internal/api"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow    bool
		limit     int
		component string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			parent := commandCtx(cmd)

			callCtx, cancel := api.WithTimeout(parent)
			page, err := client.TailLogs(callCtx, limit)
			cancel()
			if err != nil {
				return err
			}
			printLogEvents(out, page.Events, component, colorize)
			if !follow {
				return nil
			}

			next := nextCursor(0, page)
			for {
				callCtx, cancel := api.WithTimeout(parent)
				page, err := client.Logs(callCtx, next, limit, true)
				cancel()
				if err != nil {
					if parent.Err() != nil {
						return nil
					}
					if errors.Is(err, context.DeadlineExceeded) {
						continue
					}
					return err
				}
				printLogEvents(out, page.Events, component, colorize)
				next = nextCursor(next, page)
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of events to show")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	return cmd
}

func printLogEvents(out io.Writer, events []api.LogEvent, component string, colorize bool) {
	for _, evt := range events {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		fmt.Fprintln(out, formatLogEvent(evt, colorize))
	}
}

func formatLogEvent(evt api.LogEvent, colorize bool) string {
	level := strings.ToUpper(evt.Level)
	if colorize {
		switch level {
		case "ERROR":
			level = paint(errorColor, level)
		case "WARN":
			level = paint(warnColor, level)
		case "DEBUG":
			level = paint(infoColor, level)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", evt.Timestamp, level)
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	b.WriteString(" " + evt.Message)
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
	}
	return b.String()
}

// nextCursor advances past the last event received. A page cut short by the
// limit reports the hub's newest sequence, so the events decide when present.
func nextCursor(current uint64, page *api.LogStreamResponse) uint64 {
	if n := len(page.Events); n > 0 {
		return max(current, page.Events[n-1].Sequence)
	}
	return max(current, page.Next)
}
