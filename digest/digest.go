package digest

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-digest/mailer"
	"github.com/ItalyPaleAle/rss-digest/models"
	"github.com/ItalyPaleAle/rss-digest/topics"
)

// Max number of articles in each digest
const DigestEntries = 5

// SubscriptionLister returns subscriptions
type SubscriptionLister interface {
	ListAll(ctx context.Context) ([]models.Subscription, error)
	ListByTopic(ctx context.Context, topic string) ([]models.Subscription, error)
}

// ArticleFetcher returns the articles of a topic
type ArticleFetcher interface {
	Fetch(ctx context.Context, topic string, maxEntries int) ([]models.Article, error)
	RequestMetadata(ctx context.Context, article *models.Article)
}

// Reporter is notified with the result of each dispatch
type Reporter interface {
	Report(ctx context.Context, name string, report Report) error
}

// Report is the result of a dispatch
type Report struct {
	// Number of emails sent
	Sent int `json:"sent_count"`
	// Number of emails that could not be sent
	Failed int `json:"failed_count"`
	// Number of subscribers skipped because their topic doesn't exist or has no articles
	Skipped int `json:"skipped_count"`
}

// String implements fmt.Stringer
func (r Report) String() string {
	return fmt.Sprintf("sent %d, failed %d, skipped %d", r.Sent, r.Failed, r.Skipped)
}

// Options for NewDispatcher
type Options struct {
	Subscriptions SubscriptionLister
	Articles      ArticleFetcher
	Registry      *topics.Registry
	Mailer        mailer.Mailer
	Renderer      *Renderer
	// Optional
	Reporter Reporter
	// If true, each article is enriched with the image from its page's OpenGraph metadata
	FetchOpenGraph bool
}

// Dispatcher sends digest emails to subscribers
// Dispatches are not idempotent: each run sends an email to every subscriber again
type Dispatcher struct {
	opts Options
	log  *log.Entry
}

// NewDispatcher returns a Dispatcher
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Subscriptions == nil || opts.Articles == nil || opts.Registry == nil || opts.Mailer == nil {
		return nil, errors.New("subscriptions, articles, registry, and mailer are required")
	}
	if opts.Renderer == nil {
		r, err := NewRenderer("", "")
		if err != nil {
			return nil, err
		}
		opts.Renderer = r
	}

	return &Dispatcher{
		opts: opts,
		log:  log.WithField("component", "digest"),
	}, nil
}

// Run sends the digest to every subscriber, one at a time
// Subscribers whose topic doesn't exist or has no articles are skipped; failures to send an email are counted and don't stop the dispatch
func (d *Dispatcher) Run(ctx context.Context) (Report, error) {
	report := Report{}

	subs, err := d.opts.Subscriptions.ListAll(ctx)
	if err != nil {
		return report, err
	}
	d.log.Infof("Sending digest to %d subscribers", len(subs))

	// Each topic's feed is requested once per run
	articlesCache := map[string][]models.Article{}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			d.log.Warnf("Dispatch canceled: %s", report)
			return report, err
		}

		if !d.opts.Registry.Has(sub.Topic) {
			d.log.Debugf("Skipping %s: unknown topic %s", sub.Email, sub.Topic)
			report.Skipped++
			continue
		}

		articles, ok := articlesCache[sub.Topic]
		if !ok {
			articles = d.articles(ctx, sub.Topic)
			articlesCache[sub.Topic] = articles
		}
		if len(articles) == 0 {
			d.log.Debugf("Skipping %s: no articles for topic %s", sub.Email, sub.Topic)
			report.Skipped++
			continue
		}

		err = d.send(ctx, sub.Email, fmt.Sprintf("Your Weekly %s News Digest", sub.Topic), sub.Topic, articles)
		if err != nil {
			d.log.Errorf("Error sending digest to %s: %s", sub.Email, err)
			report.Failed++
			continue
		}
		report.Sent++
	}

	d.log.Infof("Digest dispatch done: %s", report)
	d.report(ctx, "Weekly digest", report)

	return report, nil
}

// RunTopic sends the latest articles of a topic to all subscribers of that topic
// Returns a ValidationError if the topic doesn't exist, and ErrNotFound if the topic has no articles
func (d *Dispatcher) RunTopic(ctx context.Context, topic string) (Report, error) {
	report := Report{}

	if topic == "" || !d.opts.Registry.Has(topic) {
		return report, models.NewValidationError("topic", "invalid or missing topic")
	}

	articles := d.articles(ctx, topic)
	if len(articles) == 0 {
		return report, fmt.Errorf("no articles found for topic %s: %w", topic, models.ErrNotFound)
	}

	subs, err := d.opts.Subscriptions.ListByTopic(ctx, topic)
	if err != nil {
		return report, err
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err = d.send(ctx, sub.Email, fmt.Sprintf("Latest %s News", topic), topic, articles)
		if err != nil {
			d.log.Errorf("Error sending topic feed to %s: %s", sub.Email, err)
			report.Failed++
			continue
		}
		report.Sent++
	}

	d.log.Infof("Topic %s dispatch done: %s", topic, report)
	d.report(ctx, topic+" feed", report)

	return report, nil
}

// Returns the articles for the digest of a topic
// Errors are logged and result in an empty list
func (d *Dispatcher) articles(ctx context.Context, topic string) []models.Article {
	articles, err := d.opts.Articles.Fetch(ctx, topic, DigestEntries)
	if err != nil {
		d.log.Warnf("Error fetching articles for topic %s: %s", topic, err)
		return nil
	}

	if d.opts.FetchOpenGraph {
		for i := range articles {
			d.opts.Articles.RequestMetadata(ctx, &articles[i])
		}
	}

	return articles
}

func (d *Dispatcher) send(ctx context.Context, to string, subject string, topic string, articles []models.Article) error {
	html, err := d.opts.Renderer.HTML(topic, articles)
	if err != nil {
		return fmt.Errorf("error rendering template: %w", err)
	}

	return d.opts.Mailer.Send(ctx, mailer.Message{
		To:      to,
		Subject: subject,
		Text:    PlainText(articles),
		HTML:    html,
	})
}

// Sends the report if there's a reporter; errors are logged only
func (d *Dispatcher) report(ctx context.Context, name string, report Report) {
	if d.opts.Reporter == nil {
		return
	}
	err := d.opts.Reporter.Report(ctx, name, report)
	if err != nil {
		d.log.Warnf("Error sending the dispatch report: %s", err)
	}
}
