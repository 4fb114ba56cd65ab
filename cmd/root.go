package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ItalyPaleAle/rss-digest/conf"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "rss-digest",
	Short: "Newsletter backend that emails digests of RSS feeds",
	Long:  "rss-digest lets users subscribe to a topic and sends them email digests built from the topic's RSS feed.",
	// Config is loaded before any subcommand runs
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		err := conf.LoadConfig(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendDigestCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(topicsCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
