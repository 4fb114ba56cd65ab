package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"github.com/ItalyPaleAle/rss-digest/models"
	"github.com/ItalyPaleAle/rss-digest/topics"
)

const (
	// Max number of articles per topic when previewing all topics
	PreviewEntries = 5
	// Max number of articles when reading a single topic
	FullEntries = 100

	// Default timeout for HTTP requests
	defaultRequestTimeout = 10 * time.Second
	// Default number of parallel requests to make
	defaultParallelFetch = 10
)

// Options for the Feeds object
type Options struct {
	// Timeout for each request to a feed source
	Timeout time.Duration
	// Maximum number of feeds requested at the same time
	Workers int
}

// Feeds retrieves the articles of each topic from the topic's feed
type Feeds struct {
	log      *log.Entry
	registry *topics.Registry
	client   *http.Client
	workers  int

	// Cache used for conditional requests, keyed by URL
	cacheLock sync.Mutex
	cache     map[string]*cachedFeed
}

// Init the object
func (f *Feeds) Init(registry *topics.Registry, opts Options) error {
	if registry == nil {
		return errors.New("topic registry is nil")
	}
	f.registry = registry

	// Init the logger
	f.log = log.WithField("component", "feeds")

	// Init the HTTP client
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	f.client = &http.Client{
		Timeout: opts.Timeout,
	}

	f.workers = opts.Workers
	if f.workers < 1 {
		f.workers = defaultParallelFetch
	}

	f.cache = make(map[string]*cachedFeed)

	return nil
}

// Registry returns the topic registry
func (f *Feeds) Registry() *topics.Registry {
	return f.registry
}

// Fetch returns up to maxEntries articles for the topic
// Returns ErrNotFound if the topic doesn't exist, and an error wrapping ErrUpstreamUnavailable if the feed couldn't be retrieved
// A maxEntries value of 0 or less means no limit
func (f *Feeds) Fetch(ctx context.Context, topic string, maxEntries int) ([]models.Article, error) {
	feedUrl, ok := f.registry.Resolve(topic)
	if !ok {
		return nil, fmt.Errorf("topic %s: %w", topic, models.ErrNotFound)
	}

	posts, err := f.RequestRSSFeed(ctx, feedUrl)
	if err != nil {
		return nil, fmt.Errorf("%w: topic %s: %s", models.ErrUpstreamUnavailable, topic, err)
	}

	return ArticlesFromFeed(posts, maxEntries), nil
}

// FetchOne returns up to maxEntries articles for the topic
// Unknown topics and feeds that can't be retrieved return an empty list: errors are logged only
func (f *Feeds) FetchOne(ctx context.Context, topic string, maxEntries int) (string, []models.Article) {
	articles, err := f.Fetch(ctx, topic, maxEntries)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			f.log.Debugf("Requested unknown topic %s", topic)
		} else {
			f.log.Warnf("Error while fetching feed: %s", err)
		}
		return topic, []models.Article{}
	}
	return topic, articles
}

// Latest returns the articles to display: if topic is a known topic, up to FullEntries articles for that topic only; otherwise, up to PreviewEntries articles for every topic
func (f *Feeds) Latest(ctx context.Context, topic string) map[string][]models.Article {
	if topic != "" && f.registry.Has(topic) {
		// Single topic: skip the worker pool
		_, articles := f.FetchOne(ctx, topic, FullEntries)
		return map[string][]models.Article{
			topic: articles,
		}
	}

	return f.FetchAll(ctx, PreviewEntries)
}

// ArticlesFromFeed converts the first maxEntries items of a parsed feed into articles
func ArticlesFromFeed(posts *gofeed.Feed, maxEntries int) []models.Article {
	res := []models.Article{}
	if posts == nil {
		return res
	}

	items := posts.Items
	if maxEntries > 0 && len(items) > maxEntries {
		items = items[:maxEntries]
	}

	for _, el := range items {
		if el == nil {
			continue
		}
		res = append(res, models.Article{
			Title:     el.Title,
			Link:      el.Link,
			Summary:   el.Description,
			Content:   el.Content,
			Published: el.Published,
		})
	}

	return res
}
