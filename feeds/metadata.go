package feeds

import (
	"context"
	"net/http"

	"github.com/mmcdole/gofeed"
	opengraph "github.com/otiai10/opengraph/v2"

	"github.com/ItalyPaleAle/rss-digest/models"
)

// RequestMetadata requests the article's web page to get the image from the page's OpenGraph metadata
// This method updates the value of the article argument as a side effect
// Errors are logged only and then ignored
func (f *Feeds) RequestMetadata(ctx context.Context, article *models.Article) {
	if article.Link == "" {
		return
	}

	err := f.doRequestMetadata(ctx, article)
	if err != nil {
		f.log.Warnf("Error while requesting the page %s: %s", article.Link, err)
		return
	}
}

func (f *Feeds) doRequestMetadata(ctx context.Context, article *models.Article) (err error) {
	// Request the web page
	req, err := http.NewRequestWithContext(ctx, "GET", article.Link, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gofeed.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	// Read the response and extract the OpenGraph tags
	// The intent's URL is the base for relative image URLs
	ogp := &opengraph.OpenGraph{
		Intent: opengraph.Intent{URL: article.Link},
	}
	err = ogp.Parse(resp.Body)
	if err != nil {
		return err
	}
	err = ogp.ToAbs()
	if err != nil {
		return err
	}

	if len(ogp.Image) > 0 {
		article.Image = ogp.Image[0].URL
	}

	return nil
}
