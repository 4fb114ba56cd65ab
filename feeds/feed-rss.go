package feeds

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Songmu/go-httpdate"
	"github.com/mmcdole/gofeed"
)

const userAgent = "RSSDigest/1.0"

// Last response received for a feed, used to make conditional requests
type cachedFeed struct {
	ETag         string
	LastModified time.Time
	Posts        *gofeed.Feed
}

// RequestRSSFeed requests a RSS or Atom feed and parses it with gofeed
// We're using this rather than gofeed.ParseURL to have more control on the request
// If the source responds with 304 Not Modified, the feed parsed previously is returned
func (f *Feeds) RequestRSSFeed(ctx context.Context, feedUrl string) (posts *gofeed.Feed, err error) {
	if feedUrl == "" {
		return nil, errors.New("empty feed URL")
	}

	f.cacheLock.Lock()
	cached := f.cache[feedUrl]
	f.cacheLock.Unlock()

	// Create the request
	req, err := http.NewRequestWithContext(ctx, "GET", feedUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if cached != nil {
		if !cached.LastModified.IsZero() {
			req.Header.Set("If-Modified-Since", cached.LastModified.UTC().Format(http.TimeFormat))
		}
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
	}

	// Send the request and read the data
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 304: not modified, so return what we got last time
		if resp.StatusCode == http.StatusNotModified && cached != nil {
			f.log.Debugf("Feed %s not modified", feedUrl)
			return cached.Posts, nil
		}
		return nil, gofeed.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	// Parse the feed
	// The parser keeps state while parsing, so we need a new one for each request
	fp := gofeed.NewParser()
	posts, err = fp.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	f.log.Debugf("Found %d posts in feed %s", len(posts.Items), feedUrl)

	// Store the ETag and Last-Modified headers if we got any
	entry := &cachedFeed{
		ETag:  resp.Header.Get("ETag"),
		Posts: posts,
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		d, err := httpdate.Str2Time(lastModified, nil)
		if err == nil && !d.IsZero() {
			entry.LastModified = d
		}
	}
	f.cacheLock.Lock()
	if entry.ETag != "" || !entry.LastModified.IsZero() {
		f.cache[feedUrl] = entry
	} else {
		delete(f.cache, feedUrl)
	}
	f.cacheLock.Unlock()

	return posts, nil
}

// PublishedTime parses the raw date of an article
// Feeds use a variety of formats, so this is best-effort
func PublishedTime(published string) (time.Time, bool) {
	if published == "" {
		return time.Time{}, false
	}
	d, err := httpdate.Str2Time(published, time.UTC)
	if err != nil || d.IsZero() {
		return time.Time{}, false
	}
	return d, true
}
