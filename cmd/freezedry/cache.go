package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/freezedry/internal/config"
	"github.com/nao1215/freezedry/internal/database"
)

// NewCacheCmd creates the cache command and its subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
		Long: `freezedry keeps fetched responses in a SQLite database so that archiving
the same site again does not download shared resources twice.`,
	}
	cmd.PersistentFlags().String("cache-dir", config.XDGCacheDir(), "Directory of the cache database")

	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePruneCmd())
	cmd.AddCommand(newCachePathCmd())
	return cmd
}

func openCache(cmd *cobra.Command) (*database.SnapshotDB, error) {
	dir, err := cmd.Flags().GetString("cache-dir")
	if err != nil {
		return nil, err
	}
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return db, nil
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Long:  `Clear removes every cached response. Snapshot history is kept.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached responses from %s\n", n, db.Path())
			return nil
		},
	}
}

func newCachePruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached responses older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			age, err := cmd.Flags().GetDuration("older-than")
			if err != nil {
				return err
			}
			db, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.Prune(cmd.Context(), age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached responses older than %s\n", n, age)
			return nil
		},
	}
	cmd.Flags().Duration("older-than", config.DefaultCacheMaxAge, "Age of the responses to remove")
	return cmd
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the location of the cache database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), db.Path())
			return nil
		},
	}
}
