package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flagTopic string

var sendDigestCmd = &cobra.Command{
	Use:   "send-digest",
	Short: "Send the digest to all subscribers",
	Long: `Send the digest email to every subscriber, then exit.

With --topic, send the latest articles of that topic to its subscribers only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		// Stop sending when interrupted
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if flagTopic != "" {
			report, err := a.dispatcher.RunTopic(ctx, flagTopic)
			if err != nil {
				return fmt.Errorf("sending topic %s: %w", flagTopic, err)
			}
			fmt.Printf("Topic %s: %s\n", flagTopic, report)
			return nil
		}

		report, err := a.dispatcher.Run(ctx)
		if err != nil {
			return fmt.Errorf("sending digest: %w", err)
		}
		fmt.Printf("Digest: %s\n", report)
		return nil
	},
}

func init() {
	sendDigestCmd.Flags().StringVar(&flagTopic, "topic", "", "only send the latest articles of this topic")
}
