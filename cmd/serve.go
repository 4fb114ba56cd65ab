package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ItalyPaleAle/rss-digest/auth"
	"github.com/ItalyPaleAle/rss-digest/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		tokens, err := auth.NewResetTokens(viper.GetString("TokenSecret"), viper.GetDuration("ResetTokenTTL"))
		if err != nil {
			return fmt.Errorf("invalid TokenSecret: %w", err)
		}

		srv := &server.Server{
			Listen:           viper.GetString("Listen"),
			DigestTriggerKey: viper.GetString("DigestTriggerKey"),
			Users:            a.users,
			PasswordReset: &auth.PasswordReset{
				Users:       a.users,
				Tokens:      tokens,
				Mailer:      a.mailer,
				FrontendURL: viper.GetString("FrontendURL"),
			},
			Subscriptions: a.subscriptions,
			Feeds:         a.feeds,
			Dispatcher:    a.dispatcher,
		}
		err = srv.Init()
		if err != nil {
			return err
		}

		// Stop the server on SIGINT, SIGTERM and SIGQUIT
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go func() {
			sig := <-sigCh
			log.Infof("Received signal %s", sig)
			srv.Stop()
		}()

		// This call blocks until the server is shut down
		return srv.Start()
	},
}
