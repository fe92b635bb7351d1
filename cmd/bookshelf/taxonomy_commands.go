package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"bookshelf/internal/api"
	"bookshelf/internal/taxonomy"
)

func newTaxonomyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Learn and apply master categories",
	}
	cmd.AddCommand(newTaxonomySyncCommand(ctx))
	cmd.AddCommand(newTaxonomyReEvalCommand(ctx))
	cmd.AddCommand(newTaxonomyImplicationsCommand(ctx))
	cmd.AddCommand(newTaxonomyDumpCommand(ctx))
	cmd.AddCommand(newTaxonomyRulesCommand(ctx))
	return cmd
}

func newTaxonomySyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Learn categories for new tags and recompute master tags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var failure error
			err = client.SyncTaxonomy(commandCtx(cmd), func(evt api.Event) error {
				if evt.Type == "error" {
					var payload api.ErrorEvent
					if err := evt.Decode(&payload); err != nil {
						return err
					}
					failure = fmt.Errorf("taxonomy sync failed: %s", payload.Message)
					return nil
				}
				var payload api.TaxonomyEvent
				if err := evt.Decode(&payload); err != nil {
					return err
				}
				if line := describeSyncEvent(evt.Type, payload); line != "" {
					if colorize && evt.Type == "complete" {
						line = paint(okColor, line)
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(out, "Detached; the sync continues in the daemon.")
				return nil
			}
			if err != nil {
				return err
			}
			return failure
		},
	}
}

func describeSyncEvent(eventType string, evt api.TaxonomyEvent) string {
	switch eventType {
	case "start":
		return "Taxonomy sync started"
	case "progress_learning":
		return fmt.Sprintf("Learning batch %d/%d (%d tags, %d/%d overall)",
			evt.CurrentBatch, evt.TotalBatches, evt.TagsInBatch, evt.ProcessedGlobal, evt.TotalGlobal)
	case "phase_applying":
		return "Applying master tags"
	case "progress_applying":
		return fmt.Sprintf("Applied %d/%d items", evt.Current, evt.Total)
	case "complete":
		return fmt.Sprintf("Taxonomy sync complete: %d items updated", evt.Count)
	default:
		return ""
	}
}

func newTaxonomyReEvalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "re-eval <tag>",
		Short: "Queue every item carrying a tag for a fresh content scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				count, err := client.ReEvaluate(callCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d items tagged %q for re-scan\n", count, args[0])
				return nil
			})
		},
	}
}

func newTaxonomyImplicationsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "implications",
		Short: "Apply tag implication rules from the tagging rules file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				resp, err := client.ApplyImplications(callCtx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Message != "" {
					fmt.Fprintln(out, resp.Message)
					return nil
				}
				for _, applied := range resp.Applied {
					fmt.Fprintf(out, "  %s\n", applied)
				}
				fmt.Fprintf(out, "%d items updated\n", resp.Changes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newTaxonomyDumpCommand(ctx *commandContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the learned tag to category mapping",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				mapping, err := client.Mapping(callCtx)
				if err != nil {
					return err
				}
				return taxonomy.Dump(taxonomy.Mapping(mapping), format, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", taxonomy.FormatMarkdown, "Output format: markdown, yaml or table")
	return cmd
}

func newTaxonomyRulesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show or replace the tagging rules document",
	}

	var raw bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the tagging rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				content, err := client.Rules(callCtx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if raw || !shouldColorize(out) {
					_, err := io.WriteString(out, ensureTrailingNewline(content))
					return err
				}
				rendered, err := renderMarkdown(content)
				if err != nil {
					return err
				}
				_, err = io.WriteString(out, rendered)
				return err
			})
		},
	}
	show.Flags().BoolVar(&raw, "raw", false, "Print markdown without terminal formatting")

	set := &cobra.Command{
		Use:   "set <file|->",
		Short: "Replace the tagging rules with a file (or stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read rules: %w", err)
			}
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				if err := client.SaveRules(callCtx, string(data)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Tagging rules saved")
				return nil
			})
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}

func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", fmt.Errorf("init markdown renderer: %w", err)
	}
	return renderer.Render(content)
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
