package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/relaydeck/relaydeck/internal/config"
	"github.com/relaydeck/relaydeck/internal/core"
	"github.com/spf13/cobra"
)

func newTokenCommand(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage relay API tokens",
	}

	cmd.AddCommand(newTokenAddCommand(cfg))
	cmd.AddCommand(newTokenListCommand(cfg))
	cmd.AddCommand(newTokenUseCommand(cfg))
	cmd.AddCommand(newTokenRenameCommand(cfg))
	cmd.AddCommand(newTokenRemoveCommand(cfg))
	cmd.AddCommand(newTokenClearCommand(cfg))

	return cmd
}

func newTokenAddCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "add <value>",
		Short: "Register a token; its name comes from the relay account it belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			token, err := a.catalog.Add(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %q (%s)\n", token.Name, token.ID)
			if token.IsActive {
				fmt.Fprintln(cmd.OutOrStdout(), "This token is now active.")
			}
			return nil
		},
	}
}

func newTokenListCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			tokens := a.catalog.List()
			if len(tokens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tokens registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVALUE\tCREATED\tLAST USED\tACTIVE")
			for _, tok := range tokens {
				lastUsed := "-"
				if tok.LastUsedAt != nil {
					lastUsed = tok.LastUsedAt.Local().Format("2006-01-02 15:04")
				}
				active := ""
				if tok.IsActive {
					active = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					tok.Name,
					maskValue(tok.Value),
					tok.CreatedAt.Local().Format("2006-01-02"),
					lastUsed,
					active)
			}
			return w.Flush()
		},
	}
}

func newTokenUseCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name-or-id>",
		Short: "Make a token the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := resolveToken(a.catalog.List(), args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			if err := a.catalog.SetActive(ctx, token.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active token is now %q\n", token.Name)
			return nil
		},
	}
}

func newTokenRenameCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name-or-id> <new-name>",
		Short: "Rename a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := resolveToken(a.catalog.List(), args[0])
			if err != nil {
				return err
			}
			if err := a.catalog.Rename(token.ID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", token.Name, args[1])
			return nil
		},
	}
}

func newTokenRemoveCommand(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name-or-id>",
		Short: "Remove a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := resolveToken(a.catalog.List(), args[0])
			if err != nil {
				return err
			}
			if err := a.catalog.Remove(token.ID); err != nil {
				return err
			}
			if token.IsActive {
				a.cache.Clear()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %q\n", token.Name)
			if active, ok := a.catalog.Active(); ok && active.ID != token.ID {
				fmt.Fprintf(cmd.OutOrStdout(), "Active token is now %q\n", active.Name)
			}
			return nil
		},
	}
}

func newTokenClearCommand(cfg config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			count := a.catalog.Count()
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tokens registered.")
				return nil
			}

			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "Remove all %d token(s)? [y/N] ", count)
				reader := bufio.NewReader(cmd.InOrStdin())
				answer, _ := reader.ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(answer)); answer != "y" && answer != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			if err := a.catalog.ClearAll(); err != nil {
				return err
			}
			a.cache.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d token(s)\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}

// resolveToken matches by exact ID first, then by name.
func resolveToken(tokens []core.APIToken, ref string) (core.APIToken, error) {
	for _, tok := range tokens {
		if tok.ID == ref {
			return tok, nil
		}
	}
	for _, tok := range tokens {
		if tok.Name == ref {
			return tok, nil
		}
	}
	return core.APIToken{}, fmt.Errorf("no token named %q: %w", ref, core.ErrNotFound)
}

func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "…" + value[len(value)-4:]
}
