package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bookshelf/internal/api"
	"bookshelf/internal/backup"
	"bookshelf/internal/config"
	"bookshelf/internal/library"
	"bookshelf/internal/logging"
)

func newLibraryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage library items",
	}
	cmd.AddCommand(newLibraryAddCommand(ctx))
	cmd.AddCommand(newLibraryListCommand(ctx))
	cmd.AddCommand(newLibraryEditCommand(ctx))
	cmd.AddCommand(newLibraryResetFailedCommand(ctx))
	cmd.AddCommand(newLibraryExportErrorsCommand(ctx))
	cmd.AddCommand(newLibraryBackupCommand(ctx))
	return cmd
}

func newLibraryAddCommand(ctx *commandContext) *cobra.Command {
	var (
		title  string
		author string
		year   int
	)
	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Register files with the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && (title != "" || author != "" || year != 0) {
				return fmt.Errorf("--title, --author and --year apply to a single file")
			}
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, arg := range args {
					path, err := config.ExpandPath(arg)
					if err != nil {
						return fmt.Errorf("resolve %q: %w", arg, err)
					}
					req := api.RegisterBookRequest{Filepath: path, Title: title, Author: author}
					if year != 0 {
						req.Year = &year
					}
					resp, err := client.RegisterBook(callCtx, req)
					if err != nil {
						return fmt.Errorf("add %s: %w", path, err)
					}
					if resp.Created {
						fmt.Fprintln(out, renderStatusLine("Added", statusOK, fmt.Sprintf("#%d %s", resp.Book.ID, resp.Book.Title), colorize))
					} else {
						fmt.Fprintln(out, renderStatusLine("Exists", statusInfo, fmt.Sprintf("#%d %s", resp.Book.ID, resp.Book.Title), colorize))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title (defaults to the file name)")
	cmd.Flags().StringVar(&author, "author", "", "Author")
	cmd.Flags().IntVar(&year, "year", 0, "Publication year")
	return cmd
}

func newLibraryListCommand(ctx *commandContext) *cobra.Command {
	var (
		query     string
		yearStart int
		yearEnd   int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List library items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				resp, err := client.Books(callCtx, query, yearStart, yearEnd)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Books) == 0 {
					fmt.Fprintln(out, "No books found.")
					return nil
				}
				rows := make([][]string, 0, len(resp.Books))
				for _, book := range resp.Books {
					rows = append(rows, []string{
						strconv.FormatInt(book.ID, 10),
						book.Title,
						book.Author,
						formatYear(book.PublicationYear),
						bookState(book),
						book.MasterTags,
					})
				}
				footer := fmt.Sprintf("%d of %d books", len(resp.Books), resp.Total)
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Author", "Year", "State", "Categories"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					footer,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Match title, author, tags or summary")
	cmd.Flags().IntVar(&yearStart, "year-start", 0, "Earliest publication year")
	cmd.Flags().IntVar(&yearEnd, "year-end", 0, "Latest publication year")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func formatYear(year *int) string {
	if year == nil {
		return ""
	}
	return strconv.Itoa(*year)
}

func bookState(book api.Book) string {
	switch {
	case library.IsSentinelTags(book.Tags):
		return "failed"
	case book.ContentScanned:
		return "tagged"
	default:
		return "pending"
	}
}

func newLibraryEditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <title|author> <value>",
		Short: "Set a title or author by hand; rescans keep the value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			field := strings.ToLower(strings.TrimSpace(args[1]))
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				if err := client.UpdateBook(callCtx, api.UpdateBookRequest{ID: id, Field: field, Value: args[2]}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s of item %d\n", field, id)
				return nil
			})
		},
	}
}

func newLibraryResetFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-failed",
		Short: "Clear failed or skipped items so the next scan retries them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				count, err := client.ResetFailed(callCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d items\n", count)
				return nil
			})
		},
	}
}

func newLibraryExportErrorsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export-errors",
		Short: "Write a report of failed and skipped items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				resp, err := client.ExportErrors(callCtx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Path == "" {
					fmt.Fprintln(out, resp.Message)
					return nil
				}
				fmt.Fprintf(out, "Exported %d errors to %s\n", resp.Count, resp.Path)
				return nil
			})
		},
	}
}

func newLibraryBackupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <dest-dir>",
		Short: "Archive the data directory (without models and logs) into a zip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dest, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Level:            "warn",
				Format:           "console",
				OutputPaths:      []string{"stderr"},
				ErrorOutputPaths: []string{"stderr"},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			store, err := library.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := backup.Create(commandCtx(cmd), cfg, store, dest, time.Now(), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d files (%s) to %s\n",
				result.Files, humanize.Bytes(uint64(result.Bytes)), result.Path)
			return nil
		},
	}
}
