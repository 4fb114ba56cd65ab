package feeds

import (
	"context"

	"github.com/ItalyPaleAle/rss-digest/models"
)

type workerResult struct {
	Topic    string
	Articles []models.Article
}

// Internal worker that fetches topics, in parallel
func (f *Feeds) fetchWorker(ctx context.Context, id int, maxEntries int, jobs <-chan string, results chan<- workerResult) {
	for topic := range jobs {
		f.log.Debugf("Worker %d started fetching topic %s", id, topic)
		// Errors are already logged and result in an empty list
		_, articles := f.FetchOne(ctx, topic, maxEntries)
		f.log.Debugf("Worker %d finished fetching topic %s", id, topic)
		results <- workerResult{
			Topic:    topic,
			Articles: articles,
		}
	}
}

// FetchMany returns up to maxEntries articles for each topic, requesting feeds in parallel
// There's a result for every topic: topics that don't exist or whose feed couldn't be retrieved have an empty list
func (f *Feeds) FetchMany(ctx context.Context, topicNames []string, maxEntries int) map[string][]models.Article {
	res := make(map[string][]models.Article, len(topicNames))
	if len(topicNames) == 0 {
		return res
	}

	// Start background workers to parallelize requests
	// The number of workers is the maximum number of requests in-flight at any given time
	workers := min(f.workers, len(topicNames))
	jobs := make(chan string, len(topicNames))
	results := make(chan workerResult, len(topicNames))
	for i := 1; i <= workers; i++ {
		go f.fetchWorker(ctx, i, maxEntries, jobs, results)
	}

	for _, topic := range topicNames {
		jobs <- topic
	}
	close(jobs)

	// Read the results
	for i := 0; i < len(topicNames); i++ {
		r := <-results
		res[r.Topic] = r.Articles
	}
	close(results)

	return res
}

// FetchAll returns up to maxEntries articles for every topic in the registry
func (f *Feeds) FetchAll(ctx context.Context, maxEntries int) map[string][]models.Article {
	return f.FetchMany(ctx, f.registry.Names(), maxEntries)
}
