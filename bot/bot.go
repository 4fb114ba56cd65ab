package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ItalyPaleAle/rss-digest/digest"
)

// Reporter posts the result of digest dispatches to a Telegram chat, so admins know when a dispatch ran and how it went
type Reporter struct {
	log    *log.Entry
	bot    *tb.Bot
	chatID int64
}

// Init the object
func (r *Reporter) Init(authToken string, chatID int64) (err error) {
	r.log = log.WithField("component", "bot")

	if authToken == "" {
		return errors.New("Telegram auth token not set. Please make sure that the 'TelegramAuthToken' option is present in the config file, or use the 'DIGEST_TELEGRAMAUTHTOKEN' environmental variable")
	}
	if chatID == 0 {
		return errors.New("Telegram chat ID not set")
	}
	r.chatID = chatID

	// We only send messages, so there's no poller
	r.bot, err = tb.NewBot(tb.Settings{
		Token: authToken,
	})
	if err != nil {
		return err
	}

	r.log.Infof("Reporting to Telegram chat %d as %s", chatID, r.bot.Me.Username)
	return nil
}

// Report implements digest.Reporter
func (r *Reporter) Report(ctx context.Context, name string, report digest.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Send(&tb.Chat{ID: r.chatID}, FormatReport(name, report), &tb.SendOptions{
		ParseMode:             tb.ModeHTML,
		DisableWebPagePreview: true,
	})
	return err
}

// FormatReport returns the message for a report, formatted as HTML for Telegram
func FormatReport(name string, report digest.Report) string {
	icon := "✅"
	if report.Failed > 0 {
		icon = "⚠️"
	}
	return fmt.Sprintf("%s <b>%s</b> dispatched\nSent: %d\nFailed: %d\nSkipped: %d",
		icon, EscapeHTMLEntities(name), report.Sent, report.Failed, report.Skipped,
	)
}

// EscapeHTMLEntities returns a string in which HTML entities are escaped as required by Telegram: <>&
func EscapeHTMLEntities(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
