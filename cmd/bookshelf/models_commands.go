package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bookshelf/internal/api"
	"bookshelf/internal/config"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and select local GGUF models",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List models found in the model directories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				resp, err := client.Models(callCtx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Models) == 0 {
					fmt.Fprintln(out, "No models found. Copy a .gguf file into the models directory.")
					return nil
				}
				rows := make([][]string, 0, len(resp.Models))
				for _, model := range resp.Models {
					marker := ""
					if model.Active {
						marker = "*"
					}
					rows = append(rows, []string{marker, model.Name, model.Size, model.Folder})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"", "Name", "Size", "Folder"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
					"",
				))
				if resp.Active == "" {
					fmt.Fprintln(out, "No active model; choose one with `bookshelf models use <path>`.")
				}
				return nil
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")

	use := &cobra.Command{
		Use:   "use <path>",
		Short: "Make a model the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve model path: %w", err)
			}
			return ctx.withClient(cmd, func(callCtx context.Context, client *api.Client) error {
				resp, err := client.SelectModel(callCtx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Active model: %s\n", resp.Message)
				return nil
			})
		},
	}

	cmd.AddCommand(list, use)
	return cmd
}
