package topics

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Default topics and the URL of their feed
var defaultTopics = map[string]string{
	"AI":            "https://www.artificialintelligence-news.com/feed/",
	"Technology":    "https://techcrunch.com/feed/",
	"Health":        "https://blog.myfitnesspal.com/feed/",
	"Finance":       "https://www.thestreet.com/.rss/full/",
	"Science":       "https://www.sciencenews.org/feed",
	"Sports":        "https://www.espn.com/espn/rss/news",
	"Education":     "https://www.teachthought.com/feed/",
	"Environment":   "https://grist.org/feed/",
	"Politics":      "https://www.thegatewaypundit.com/feed/",
	"Entertainment": "https://www.tmz.com/rss.xml",
}

// Registry maps the name of each topic to the URL of its feed
// It's created once when the app starts and never modified afterwards, so it's safe for concurrent use
type Registry struct {
	feeds map[string]string
	names []string
}

// Format of the topics file
type topicsFile struct {
	Topics map[string]string `yaml:"topics"`
}

// New returns a Registry with the given topics
func New(feeds map[string]string) (*Registry, error) {
	if len(feeds) == 0 {
		return nil, errors.New("no topics defined")
	}

	r := &Registry{
		feeds: make(map[string]string, len(feeds)),
	}
	for name, feedUrl := range feeds {
		if name == "" {
			return nil, errors.New("topic name is empty")
		}
		u, err := url.Parse(feedUrl)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid feed URL for topic %s: '%s'", name, feedUrl)
		}
		r.feeds[name] = feedUrl
	}

	r.names = lo.Keys(r.feeds)
	sort.Strings(r.names)

	return r, nil
}

// Default returns a Registry with the built-in topics
func Default() *Registry {
	r, err := New(defaultTopics)
	if err != nil {
		// Should never happen
		panic(err)
	}
	return r
}

// Load returns the Registry defined in the YAML file at path
// If path is empty, the built-in topics are used
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading topics file: %w", err)
	}
	f := &topicsFile{}
	err = yaml.Unmarshal(data, f)
	if err != nil {
		return nil, fmt.Errorf("error parsing topics file: %w", err)
	}

	return New(f.Topics)
}

// Resolve returns the feed URL for a topic
func (r *Registry) Resolve(name string) (string, bool) {
	feedUrl, ok := r.feeds[name]
	return feedUrl, ok
}

// Has returns true if the topic exists
func (r *Registry) Has(name string) bool {
	_, ok := r.feeds[name]
	return ok
}

// Names returns the names of all topics, sorted alphabetically
func (r *Registry) Names() []string {
	res := make([]string, len(r.names))
	copy(res, r.names)
	return res
}
