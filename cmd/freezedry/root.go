package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "freezedry",
		Short: "Save web pages as single self-contained HTML files",
		Long: `freezedry saves a web page and everything it embeds into one HTML file.

Images, stylesheets, fonts, audio, video and frames are fetched and inlined
as data: URLs, scripts are removed and remaining links are made absolute, so
the snapshot opens offline and looks the way the page did.

Onion services are archived through Tor: freezedry starts an embedded Tor
daemon, or uses an existing proxy given with --external-tor.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewDryCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
