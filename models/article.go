package models

// Article is an entry of a topic's feed
// Articles are never stored: they are produced for each request
type Article struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Summary   string `json:"summary"`
	Content   string `json:"content"`
	Published string `json:"published"`

	// Only set when the article is enriched with OpenGraph metadata (for digests)
	Image string `json:"-"`
}
