package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"bookshelf/internal/api"
	"bookshelf/internal/config"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var targets []string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Tag unprocessed library items with the active model",
		Long: "Start a content scan and follow its progress. Interrupting the command " +
			"detaches from the scan; use `bookshelf scan stop` to end it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			keys, err := expandTargets(targets)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderer := newScanRenderer(out, shouldColorize(out))
			err = client.Scan(commandCtx(cmd), keys, renderer.handle)
			var apiErr *api.Error
			if errors.As(err, &apiErr) && apiErr.Scan != nil {
				return fmt.Errorf("%s (%d/%d processed)", apiErr.Message, apiErr.Scan.Processed, apiErr.Scan.Total)
			}
			if errors.Is(err, context.Canceled) {
				renderer.abandon()
				fmt.Fprintln(out, "Detached; the scan continues in the daemon.")
				return nil
			}
			if err != nil {
				return err
			}
			return renderer.err
		},
	}
	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "Limit the scan to these files (repeatable)")

	cmd.AddCommand(newScanStopCommand(ctx))
	cmd.AddCommand(newScanStatusCommand(ctx))
	return cmd
}

func newScanStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running content scan after the current item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				resp, err := client.StopScan(callCtx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}
}

func newScanStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show content scan progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				status, err := client.ScanStatus(callCtx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, scanStatusLine(status, shouldColorize(out)))
				if status.Active {
					fmt.Fprintf(out, "%s%-*s %d\n", statusIndent, statusLabelWidth, "Tokens:", status.TotalTokens)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

// expandTargets resolves target paths the way the daemon stores them.
func expandTargets(targets []string) ([]string, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(targets))
	for _, target := range targets {
		expanded, err := config.ExpandPath(target)
		if err != nil {
			return nil, fmt.Errorf("resolve target %q: %w", target, err)
		}
		keys = append(keys, expanded)
	}
	return keys, nil
}

// scanRenderer draws scan events as a progress bar on terminals and as one
// line per item otherwise.
type scanRenderer struct {
	out      io.Writer
	colorize bool
	bar      *progressbar.ProgressBar
	total    int
	last     api.ProgressEvent
	err      error
}

func newScanRenderer(out io.Writer, colorize bool) *scanRenderer {
	return &scanRenderer{out: out, colorize: colorize}
}

func (r *scanRenderer) handle(evt api.Event) error {
	switch evt.Type {
	case "start":
		var payload api.ProgressEvent
		if err := evt.Decode(&payload); err != nil {
			return err
		}
		if payload.Total != nil {
			r.total = *payload.Total
		}
		if r.total == 0 {
			fmt.Fprintln(r.out, "Nothing to scan.")
			return nil
		}
		if r.colorize {
			r.bar = progressbar.NewOptions(r.total,
				progressbar.OptionSetWriter(r.out),
				progressbar.OptionSetDescription("Scanning"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionEnableColorCodes(true),
			)
			return nil
		}
		fmt.Fprintf(r.out, "Scanning %d items\n", r.total)
	case "progress":
		if err := evt.Decode(&r.last); err != nil {
			return err
		}
		total := r.total
		if r.last.Total != nil && *r.last.Total > total {
			total = *r.last.Total
		}
		if r.bar != nil {
			if total != r.total {
				r.bar.ChangeMax(total)
			}
			r.bar.Describe(filepath.Base(r.last.Current))
			_ = r.bar.Set(r.last.Processed)
		} else {
			fmt.Fprintf(r.out, "[%d/%d] %s: %s\n", r.last.Processed, total, r.last.Current, r.last.Tags)
		}
		r.total = total
	case "error":
		var payload api.ErrorEvent
		if err := evt.Decode(&payload); err != nil {
			return err
		}
		r.err = fmt.Errorf("scan failed: %s", payload.Message)
	case "complete":
		if r.bar != nil {
			_ = r.bar.Finish()
			fmt.Fprintln(r.out)
		}
		line := fmt.Sprintf("Scan complete: %d items, %d tokens", r.last.Processed, r.last.TotalTokens)
		if r.err != nil {
			line = fmt.Sprintf("Scan ended early after %d items", r.last.Processed)
			if r.colorize {
				line = paint(errorColor, line)
			}
		} else if r.colorize {
			line = paint(okColor, line)
		}
		fmt.Fprintln(r.out, line)
	}
	return nil
}

func (r *scanRenderer) abandon() {
	if r.bar != nil {
		_ = r.bar.Clear()
	}
}
