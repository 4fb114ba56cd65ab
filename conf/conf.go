package conf

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoadConfig reads the configuration from the environment and the config file (if any)
// If file is empty, the config file is searched in the default paths
func LoadConfig(file string) error {
	setDefaults()

	// Env
	viper.SetEnvPrefix("DIGEST")
	viper.AutomaticEnv()

	// Config file
	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.rss-digest")
		viper.AddConfigPath("/etc/rss-digest")
	}

	// Read the config
	err := viper.ReadInConfig()
	if err != nil {
		// Ignore errors if the config file doesn't exist, unless it was set explicitly
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}

	return setupLogger()
}

func setDefaults() {
	// Database
	viper.SetDefault("DBDriver", "sqlite3")
	viper.SetDefault("DBPath", "./data/rss-digest.db")
	viper.SetDefault("DBDSN", "")

	// Web server
	viper.SetDefault("Listen", ":8080")
	viper.SetDefault("FrontendURL", "http://localhost:5173")
	viper.SetDefault("WebsiteURL", "")
	viper.SetDefault("UnsubscribeURL", "")
	viper.SetDefault("DigestTriggerKey", "")

	// Feeds
	viper.SetDefault("TopicsFile", "")
	viper.SetDefault("FeedTimeout", 10*time.Second)
	viper.SetDefault("FeedWorkers", 10)
	viper.SetDefault("FetchOpenGraph", false)

	// Email
	viper.SetDefault("SMTPHost", "localhost")
	viper.SetDefault("SMTPPort", 587)
	viper.SetDefault("SMTPUser", "")
	viper.SetDefault("SMTPPassword", "")
	viper.SetDefault("MailFrom", "")

	// Auth
	viper.SetDefault("TokenSecret", "")
	viper.SetDefault("ResetTokenTTL", 72*time.Hour)

	// Admin reports on Telegram
	viper.SetDefault("TelegramAuthToken", "")
	viper.SetDefault("TelegramChatID", 0)

	// Logs
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("LogFile", "")
}

func setupLogger() error {
	switch strings.ToLower(viper.GetString("LogLevel")) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info", "":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		return fmt.Errorf("invalid log level: %s", viper.GetString("LogLevel"))
	}

	// If there's a log file, write to both stdout and the file, rotating it
	if file := viper.GetString("LogFile"); file != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    64,
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}))
	} else {
		log.SetOutput(os.Stdout)
	}

	return nil
}
