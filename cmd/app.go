package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ItalyPaleAle/rss-digest/auth"
	"github.com/ItalyPaleAle/rss-digest/bot"
	"github.com/ItalyPaleAle/rss-digest/db"
	"github.com/ItalyPaleAle/rss-digest/digest"
	"github.com/ItalyPaleAle/rss-digest/feeds"
	"github.com/ItalyPaleAle/rss-digest/mailer"
	"github.com/ItalyPaleAle/rss-digest/migrations"
	"github.com/ItalyPaleAle/rss-digest/subscriptions"
	"github.com/ItalyPaleAle/rss-digest/topics"
)

// Connects to the database and migrates it to the latest version
func openDB() (*sqlx.DB, error) {
	conn, err := db.ConnectDB()
	if err != nil {
		return nil, fmt.Errorf("connecting to the database: %w", err)
	}
	err = migrations.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating the database: %w", err)
	}
	return conn, nil
}

// Objects shared by the commands that serve requests or send digests
type app struct {
	conn          *sqlx.DB
	registry      *topics.Registry
	feeds         *feeds.Feeds
	subscriptions *subscriptions.Store
	users         *auth.Users
	mailer        mailer.Mailer
	dispatcher    *digest.Dispatcher
}

// Creates all objects from the config
func newApp() (a *app, err error) {
	a = &app{}

	a.registry, err = topics.Load(viper.GetString("TopicsFile"))
	if err != nil {
		return nil, fmt.Errorf("loading topics: %w", err)
	}

	a.feeds = &feeds.Feeds{}
	err = a.feeds.Init(a.registry, feeds.Options{
		Timeout: viper.GetDuration("FeedTimeout"),
		Workers: viper.GetInt("FeedWorkers"),
	})
	if err != nil {
		return nil, err
	}

	a.mailer, err = mailer.NewSMTP(mailer.SMTPOptions{
		Host:     viper.GetString("SMTPHost"),
		Port:     viper.GetInt("SMTPPort"),
		Username: viper.GetString("SMTPUser"),
		Password: viper.GetString("SMTPPassword"),
		From:     viper.GetString("MailFrom"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating the mailer: %w", err)
	}

	renderer, err := digest.NewRenderer(viper.GetString("WebsiteURL"), viper.GetString("UnsubscribeURL"))
	if err != nil {
		return nil, err
	}

	// Reports to Telegram are optional
	var reporter digest.Reporter
	if token := viper.GetString("TelegramAuthToken"); token != "" {
		r := &bot.Reporter{}
		err = r.Init(token, viper.GetInt64("TelegramChatID"))
		if err != nil {
			return nil, fmt.Errorf("initializing the Telegram reporter: %w", err)
		}
		reporter = r
	} else {
		log.Debug("Telegram auth token not set: dispatch reports are disabled")
	}

	a.conn, err = openDB()
	if err != nil {
		return nil, err
	}
	a.subscriptions = subscriptions.NewStore(a.conn)
	a.users = auth.NewUsers(a.conn)

	a.dispatcher, err = digest.NewDispatcher(digest.Options{
		Subscriptions:  a.subscriptions,
		Articles:       a.feeds,
		Registry:       a.registry,
		Mailer:         a.mailer,
		Renderer:       renderer,
		Reporter:       reporter,
		FetchOpenGraph: viper.GetBool("FetchOpenGraph"),
	})
	if err != nil {
		a.conn.Close()
		return nil, err
	}

	return a, nil
}

// Close the database connection
func (a *app) Close() error {
	return a.conn.Close()
}
