package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ItalyPaleAle/rss-digest/auth"
	"github.com/ItalyPaleAle/rss-digest/migrations"
	"github.com/ItalyPaleAle/rss-digest/models"
	"github.com/ItalyPaleAle/rss-digest/topics"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the database to the latest version",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB()
		if err != nil {
			return err
		}
		defer conn.Close()

		version, err := migrations.Version(conn)
		if err != nil {
			return err
		}
		fmt.Printf("Database is at version %d\n", version)
		return nil
	},
}

var flagDemote bool

var promoteCmd = &cobra.Command{
	Use:   "promote <username>",
	Short: "Grant a user access to the admin endpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openDB()
		if err != nil {
			return err
		}
		defer conn.Close()

		err = auth.NewUsers(conn).SetStaff(context.Background(), args[0], !flagDemote)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("user %s does not exist", args[0])
		} else if err != nil {
			return err
		}

		if flagDemote {
			fmt.Printf("User %s is no longer staff\n", args[0])
		} else {
			fmt.Printf("User %s is now staff\n", args[0])
		}
		return nil
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the topics and their feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := topics.Load(viper.GetString("TopicsFile"))
		if err != nil {
			return err
		}

		names := registry.Names()
		width := 0
		for _, name := range names {
			width = max(width, len(name))
		}
		for _, name := range names {
			url, _ := registry.Resolve(name)
			fmt.Printf("%s%s  %s\n", name, strings.Repeat(" ", width-len(name)), url)
		}
		return nil
	},
}

func init() {
	promoteCmd.Flags().BoolVar(&flagDemote, "demote", false, "remove staff access instead")
}
