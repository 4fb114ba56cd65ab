package digest

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ItalyPaleAle/rss-digest/feeds"
	"github.com/ItalyPaleAle/rss-digest/models"
)

//go:embed templates/email.html
var templatesFS embed.FS

// Max length of the summary in the HTML email, in characters
const maxSummaryLength = 400

// Renderer renders the body of digest emails
type Renderer struct {
	tpl            *template.Template
	WebsiteURL     string
	UnsubscribeURL string
}

type templateArticle struct {
	Title     string
	Link      string
	Summary   string
	Published string
	Image     string
}

type templateData struct {
	Topic          string
	Articles       []templateArticle
	WebsiteURL     string
	UnsubscribeURL string
	Year           int
}

// NewRenderer returns a Renderer that uses the built-in email template
func NewRenderer(websiteURL string, unsubscribeURL string) (*Renderer, error) {
	tpl, err := template.ParseFS(templatesFS, "templates/email.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{
		tpl:            tpl,
		WebsiteURL:     websiteURL,
		UnsubscribeURL: unsubscribeURL,
	}, nil
}

// HTML renders the HTML body of the digest
func (r *Renderer) HTML(topic string, articles []models.Article) (string, error) {
	data := templateData{
		Topic:          topic,
		Articles:       make([]templateArticle, len(articles)),
		WebsiteURL:     r.WebsiteURL,
		UnsubscribeURL: r.UnsubscribeURL,
		Year:           time.Now().Year(),
	}
	for i, a := range articles {
		data.Articles[i] = templateArticle{
			Title:     a.Title,
			Link:      a.Link,
			Summary:   truncate(HTMLToText(a.Summary), maxSummaryLength),
			Published: formatPublished(a.Published),
			Image:     a.Image,
		}
	}

	buf := &bytes.Buffer{}
	err := r.tpl.ExecuteTemplate(buf, "email.html", data)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PlainText renders the plain-text body of the digest: for each article, the title, link, and summary on separate lines
// Articles are separated by an empty line
func PlainText(articles []models.Article) string {
	parts := make([]string, len(articles))
	for i, a := range articles {
		parts[i] = a.Title + "\n" + a.Link + "\n" + HTMLToText(a.Summary)
	}
	return strings.Join(parts, "\n\n")
}

// HTMLToText returns the text content of a HTML fragment, with whitespace collapsed
// Summaries in feeds are often HTML
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Formats the date of an article for display, if it can be parsed
func formatPublished(published string) string {
	d, ok := feeds.PublishedTime(published)
	if !ok {
		return published
	}
	return d.Format("January 2, 2006")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
