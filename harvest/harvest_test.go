package harvest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantscout/grantscout/grants"
	"github.com/grantscout/grantscout/scrape"
	"github.com/grantscout/grantscout/sources"
)

const grantsPage = `
<html><body>
	<div class="grant-card">
		<h3 class="title">Community Health Grant</h3>
		<p class="summary">Funding for rural clinics</p>
		<span class="amount">$50,000</span>
		<a class="details" href="/grants/health">Details</a>
	</div>
	<div class="grant-card">
		<h3 class="title">Youth Arts Grant</h3>
		<a class="details" href="/grants/arts">Details</a>
	</div>
</body></html>`

var testSelectors = &scrape.SelectorMap{
	Container:   []string{".grant-card"},
	Title:       []string{"h3.title"},
	Description: []string{"p.summary"},
	Amount:      []string{"span.amount"},
	Link:        []string{"a.details"},
}

// Test helper: build a harvester over temp stores with fast scrape settings
func createTestHarvester(t *testing.T) (*Harvester, *sources.SourceStore, *grants.Store) {
	tempDir := t.TempDir()

	srcStore, err := sources.NewSourceStore(filepath.Join(tempDir, "sources.db"))
	require.NoError(t, err)
	t.Cleanup(func() { srcStore.Close() })

	grantStore, err := grants.NewStore(filepath.Join(tempDir, "grants.db"))
	require.NoError(t, err)
	t.Cleanup(func() { grantStore.Close() })

	limiter := scrape.NewRateLimiter(scrape.LimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         50,
	}, nil)
	fetcher := scrape.NewFetcher(scrape.FetcherConfig{
		MaxRetries:    1,
		BackoffFactor: 0.01,
	}, limiter, nil)

	h := New(srcStore, grantStore, fetcher, scrape.NewExtractor(nil), nil)
	h.pause = 0
	h.sleep = func(time.Duration) {}
	return h, srcStore, grantStore
}

// Test helper: add an enabled source
func addSource(t *testing.T, store *sources.SourceStore, sourceType, url string, sel *scrape.SelectorMap) *sources.Source {
	now := time.Now()
	src, err := store.CreateSource(sourceType, url, "Test Source "+url, "Test Funder", nil, sel, &now)
	require.NoError(t, err)
	return src
}

// TestRun_WebsiteSource verifies a full scrape pass into the grant store
func TestRun_WebsiteSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(grantsPage))
	}))
	defer server.Close()

	h, srcStore, grantStore := createTestHarvester(t)
	src := addSource(t, srcStore, "website", server.URL, testSelectors)

	result, err := h.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.SourcesTried)
	assert.Equal(t, 0, result.SourcesFailed)
	assert.Equal(t, 2, result.GrantsAdded)
	assert.False(t, result.UsedSampleData)

	stored, err := grantStore.List(grants.Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, g := range stored {
		require.NotNil(t, g.SourceID)
		assert.Equal(t, src.SourceID, *g.SourceID)
		require.NotNil(t, g.Funder)
		assert.Equal(t, "Test Funder", *g.Funder)
	}

	// Success should be stamped on the source
	updated, err := srcStore.GetSource(src.SourceID)
	require.NoError(t, err)
	assert.NotNil(t, updated.LastFetchedAt)
	assert.Equal(t, 0, updated.FetchErrorCount)
}

// TestRun_FeedSource verifies feed ingestion through the injected parser
func TestRun_FeedSource(t *testing.T) {
	h, srcStore, grantStore := createTestHarvester(t)
	addSource(t, srcStore, "feed", "https://funder.example.org/rss", nil)

	h.fetchFeed = func(url string) (*gofeed.Feed, error) {
		return &gofeed.Feed{
			Title: "Funder Feed",
			Items: []*gofeed.Item{
				{Title: "Open Call: Education", Link: "https://funder.example.org/edu"},
				{Title: "Open Call: Environment", Link: "https://funder.example.org/env"},
			},
		}, nil
	}

	result, err := h.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, result.GrantsAdded)

	stored, err := grantStore.List(grants.Filter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

// TestRun_DuplicatesCounted verifies a second pass counts collisions
func TestRun_DuplicatesCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(grantsPage))
	}))
	defer server.Close()

	h, srcStore, _ := createTestHarvester(t)
	addSource(t, srcStore, "website", server.URL, testSelectors)

	first, err := h.Run()
	require.NoError(t, err)
	require.Equal(t, 2, first.GrantsAdded)

	second, err := h.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, second.GrantsAdded)
	assert.Equal(t, 2, second.Duplicates)
	// Real grants already exist, so the empty pass must not seed samples
	assert.False(t, second.UsedSampleData)
}

// TestRun_FailedSourceRecordedAndSamplesLoaded verifies failure bookkeeping
// and the sample fallback on a fully empty pass
func TestRun_FailedSourceRecordedAndSamplesLoaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	h, srcStore, grantStore := createTestHarvester(t)
	src := addSource(t, srcStore, "website", server.URL, testSelectors)

	result, err := h.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.SourcesTried)
	assert.Equal(t, 1, result.SourcesFailed)
	assert.Equal(t, 0, result.GrantsAdded)
	assert.True(t, result.UsedSampleData, "empty store and empty pass should load samples")

	updated, err := srcStore.GetSource(src.SourceID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FetchErrorCount)
	require.NotNil(t, updated.LastError)

	stored, err := grantStore.List(grants.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	for _, g := range stored {
		assert.True(t, g.Sample)
	}
}

// TestRun_NoSelectors verifies website sources without selectors fail cleanly
func TestRun_NoSelectors(t *testing.T) {
	h, srcStore, _ := createTestHarvester(t)
	src := addSource(t, srcStore, "website", "https://example.org/grants", nil)

	result, err := h.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, result.SourcesFailed)

	updated, err := srcStore.GetSource(src.SourceID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastError)
	assert.Equal(t, ErrNoSelectors.Error(), *updated.LastError)
}

// TestRun_FeedErrorDoesNotAbortPass verifies one bad source leaves the rest
func TestRun_FeedErrorDoesNotAbortPass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(grantsPage))
	}))
	defer server.Close()

	h, srcStore, _ := createTestHarvester(t)
	addSource(t, srcStore, "feed", "https://broken.example.org/rss", nil)
	addSource(t, srcStore, "website", server.URL, testSelectors)

	h.fetchFeed = func(url string) (*gofeed.Feed, error) {
		return nil, errors.New("malformed xml")
	}

	result, err := h.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, result.SourcesTried)
	assert.Equal(t, 1, result.SourcesFailed)
	assert.Equal(t, 2, result.GrantsAdded)
}

// TestRun_DisabledSourcesSkipped verifies only enabled sources are harvested
func TestRun_DisabledSourcesSkipped(t *testing.T) {
	h, srcStore, _ := createTestHarvester(t)
	_, err := srcStore.CreateSource("feed", "https://off.example.org/rss", "Disabled", "", nil, nil, nil)
	require.NoError(t, err)

	h.fetchFeed = func(url string) (*gofeed.Feed, error) {
		t.Fatal("disabled source should not be fetched")
		return nil, nil
	}

	result, err := h.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, result.SourcesTried)
}

// TestRun_PausesBetweenSources verifies the inter-source courtesy pause
func TestRun_PausesBetweenSources(t *testing.T) {
	h, srcStore, _ := createTestHarvester(t)
	addSource(t, srcStore, "feed", "https://a.example.org/rss", nil)
	addSource(t, srcStore, "feed", "https://b.example.org/rss", nil)

	h.fetchFeed = func(url string) (*gofeed.Feed, error) {
		return &gofeed.Feed{Title: "Empty"}, nil
	}

	h.pause = 2 * time.Second
	var pauses []time.Duration
	h.sleep = func(d time.Duration) { pauses = append(pauses, d) }

	_, err := h.Run()
	require.NoError(t, err)

	require.Len(t, pauses, 1, "pause goes between sources, not before the first")
	assert.Equal(t, 2*time.Second, pauses[0])
}
