package feeds

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFeedItemToGrant_BasicItem verifies conversion of a complete feed item
func TestFeedItemToGrant_BasicItem(t *testing.T) {
	publishedTime := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	sourceID := uuid.New()

	item := &gofeed.Item{
		Title:           "Community Arts Grant Now Open",
		Description:     "Up to $25,000 for local arts programming",
		Link:            "http://funder.example.org/grants/arts",
		PublishedParsed: &publishedTime,
	}

	grant, ok := FeedItemToGrant(item, sourceID, "Funder Announcements", "")
	require.True(t, ok)

	assert.Equal(t, "Community Arts Grant Now Open", grant.Title)
	assert.Equal(t, "Up to $25,000 for local arts programming", grant.Description)
	assert.Equal(t, "http://funder.example.org/grants/arts", grant.URL)
	require.NotNil(t, grant.SourceID)
	assert.Equal(t, sourceID, *grant.SourceID)
	require.NotNil(t, grant.Funder)
	assert.Equal(t, "Funder Announcements", *grant.Funder)
	assert.Equal(t, publishedTime, grant.DiscoveredAt)
	assert.False(t, grant.Sample)
}

// TestFeedItemToGrant_EmptyTitle verifies title-less items are rejected
func TestFeedItemToGrant_EmptyTitle(t *testing.T) {
	item := &gofeed.Item{
		Title: "",
		Link:  "http://example.com/grant",
	}

	_, ok := FeedItemToGrant(item, uuid.New(), "Feed", "")
	assert.False(t, ok, "items without a title should be skipped")
}

// TestFeedItemToGrant_FunderOverridesFeedTitle verifies funder precedence
func TestFeedItemToGrant_FunderOverridesFeedTitle(t *testing.T) {
	item := &gofeed.Item{
		Title: "STEM Education Grant",
		Link:  "http://example.com/grant",
	}

	grant, ok := FeedItemToGrant(item, uuid.New(), "Some Feed Title", "Acme Foundation")
	require.True(t, ok)
	require.NotNil(t, grant.Funder)
	assert.Equal(t, "Acme Foundation", *grant.Funder)
}

// TestFeedItemToGrant_NoFunder verifies nil funder when nothing is known
func TestFeedItemToGrant_NoFunder(t *testing.T) {
	item := &gofeed.Item{
		Title: "Grant",
		Link:  "http://example.com/grant",
	}

	grant, ok := FeedItemToGrant(item, uuid.New(), "", "")
	require.True(t, ok)
	assert.Nil(t, grant.Funder)
}

// TestFeedItemToGrant_UpdatedDateFallback verifies Atom updated date is used
func TestFeedItemToGrant_UpdatedDateFallback(t *testing.T) {
	updatedTime := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	item := &gofeed.Item{
		Title:         "Grant",
		Link:          "http://example.com/grant",
		UpdatedParsed: &updatedTime,
	}

	grant, ok := FeedItemToGrant(item, uuid.New(), "Feed", "")
	require.True(t, ok)
	assert.Equal(t, updatedTime, grant.DiscoveredAt)
}

// TestFeedItemToGrant_NoDate verifies discovery time defaults to now
func TestFeedItemToGrant_NoDate(t *testing.T) {
	item := &gofeed.Item{
		Title: "Grant",
		Link:  "http://example.com/grant",
	}

	before := time.Now()
	grant, ok := FeedItemToGrant(item, uuid.New(), "Feed", "")
	require.True(t, ok)
	assert.WithinDuration(t, before, grant.DiscoveredAt, time.Second)
}

// TestFeedToGrants verifies whole-feed conversion with skips
func TestFeedToGrants(t *testing.T) {
	feed := &gofeed.Feed{
		Title: "Grant Announcements",
		Items: []*gofeed.Item{
			{Title: "First Grant", Link: "http://example.com/1"},
			{Title: "", Link: "http://example.com/2"},
			{Title: "No Link Grant", Link: ""},
			{Title: "Second Grant", Link: "http://example.com/3"},
		},
	}

	sourceID := uuid.New()
	result := FeedToGrants(feed, sourceID, "")

	require.Len(t, result, 2, "title-less and link-less items should be dropped")
	assert.Equal(t, "First Grant", result[0].Title)
	assert.Equal(t, "Second Grant", result[1].Title)
	for _, g := range result {
		require.NotNil(t, g.SourceID)
		assert.Equal(t, sourceID, *g.SourceID)
	}
}

// TestFeedToGrants_EmptyFeed verifies an empty feed yields an empty slice
func TestFeedToGrants_EmptyFeed(t *testing.T) {
	feed := &gofeed.Feed{Title: "Empty"}

	result := FeedToGrants(feed, uuid.New(), "")

	assert.NotNil(t, result)
	assert.Empty(t, result)
}
