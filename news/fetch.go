package news

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/realmrhigh/hightrade/apperr"
	"github.com/realmrhigh/hightrade/dedup"
	"github.com/realmrhigh/hightrade/log"
	"github.com/realmrhigh/hightrade/ratelimit"
)

// Source is one article provider: a paid news API, an RSS feed, or a
// read-only social aggregation endpoint. Each Source is fetched
// concurrently and all results join at the stage boundary.
type Source interface {
	Name() string
	Fetch(ctx context.Context, client *http.Client) ([]Article, error)
}

// RSSSource fetches and parses an RSS/Atom feed via goquery, treating it
// as XML-ish HTML (goquery's libxml2-free sibling goquery walks any
// tag-soup document, not just HTML5).
type RSSSource struct {
	SourceName string
	FeedURL    string
	Tier       SourceTier
}

func (r RSSSource) Name() string { return r.SourceName }

func (r RSSSource) Fetch(ctx context.Context, client *http.Client) ([]Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.FeedURL, nil)
	if err != nil {
		return nil, apperr.Transient("news.RSSSource.Fetch", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperr.Transient("news.RSSSource.Fetch", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperr.ParseFailure("news.RSSSource.Fetch", err)
	}

	var articles []Article
	doc.Find("item").Each(func(_ int, item *goquery.Selection) {
		title := item.Find("title").First().Text()
		link := item.Find("link").First().Text()
		desc := item.Find("description").First().Text()
		if title == "" || link == "" {
			return
		}
		articles = append(articles, Article{
			Article: dedup.Article{
				URL: link, Title: title, Description: desc,
				PublishedAt: time.Now().Unix(),
			},
			SourceTier: r.Tier,
		})
	})
	return articles, nil
}

// FetchAll runs every source concurrently, gated by the shared rate
// limiter (C2), and joins results at a single channel boundary. A single
// source's failure does not fail the batch — it is logged and skipped,
// matching the teacher's "best result wins" fan-out idiom.
func FetchAll(ctx context.Context, sources []Source, limiter *ratelimit.Limiter) []Article {
	client := &http.Client{Timeout: 15 * time.Second}

	type result struct {
		articles []Article
		err      error
		source   string
	}

	results := make(chan result, len(sources))
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			endpoint := fmt.Sprintf("news:%s", src.Name())
			if err := limiter.WaitIfNeeded(ctx, endpoint); err != nil {
				results <- result{err: err, source: src.Name()}
				return
			}
			articles, err := src.Fetch(ctx, client)
			limiter.RecordRequest(endpoint, err == nil)
			results <- result{articles: articles, err: err, source: src.Name()}
		}(src)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []Article
	for r := range results {
		if r.err != nil {
			log.Component("news").Warn().Str("source", r.source).Err(r.err).Msg("source fetch failed, skipping")
			continue
		}
		all = append(all, r.articles...)
	}
	return all
}

// NewArticleURLs implements §4.6's new-article detection: compares the
// current batch's URL set against the prior batch's, treating every
// article as new if the prior batch is stale (> 60 minutes old).
func NewArticleURLs(current []Article, priorURLs map[string]bool, priorBatchAge time.Duration) map[string]bool {
	fresh := make(map[string]bool)
	allNew := priorBatchAge > 60*time.Minute
	for _, a := range current {
		if allNew || !priorURLs[a.URL] {
			fresh[a.URL] = true
		}
	}
	return fresh
}
