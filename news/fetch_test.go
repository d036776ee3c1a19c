package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/realmrhigh/hightrade/dedup"
)

func TestNewArticleURLsDiffsAgainstPriorBatch(t *testing.T) {
	current := []Article{
		{Article: dedup.Article{URL: "https://a.com/1"}},
		{Article: dedup.Article{URL: "https://b.com/2"}},
	}
	prior := map[string]bool{"https://a.com/1": true}

	fresh := NewArticleURLs(current, prior, 10*time.Minute)
	assert.Len(t, fresh, 1)
	assert.True(t, fresh["https://b.com/2"])
}

func TestNewArticleURLsTreatsAllAsNewWhenPriorBatchStale(t *testing.T) {
	current := []Article{
		{Article: dedup.Article{URL: "https://a.com/1"}},
	}
	prior := map[string]bool{"https://a.com/1": true}

	fresh := NewArticleURLs(current, prior, 90*time.Minute)
	assert.Len(t, fresh, 1, "a prior batch older than 60 minutes makes everything count as new")
}
