// Package feeds ingests grant announcements published as RSS or Atom feeds.
package feeds

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/grantscout/grantscout/grants"
	"github.com/mmcdole/gofeed"
)

// FetchFeed fetches and parses an RSS or Atom feed from the given URL. The
// gofeed library automatically detects and handles both formats.
func FetchFeed(url string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	feed, err := fp.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// FeedItemToGrant converts a feed item to a Grant. Returns false when the
// item has no usable title; such entries cannot be presented to researchers
// and are skipped by the caller.
//
// gofeed normalizes RSS <description> and Atom <summary>/<content> into
// item.Description, and <link>/<link rel="alternate"> into item.Link, so
// both feed formats are handled transparently.
func FeedItemToGrant(item *gofeed.Item, sourceID uuid.UUID, feedTitle, funder string) (grants.Grant, bool) {
	if item.Title == "" {
		return grants.Grant{}, false
	}

	sid := sourceID
	grant := grants.Grant{
		ID:           uuid.New(),
		Title:        item.Title,
		URL:          item.Link,
		SourceID:     &sid,
		DiscoveredAt: time.Now(),
	}

	if item.Description != "" {
		grant.Description = item.Description
	}

	// Funder: explicit source configuration wins, feed-level title is the
	// fallback
	name := funder
	if name == "" {
		name = feedTitle
	}
	if name != "" {
		grant.Funder = &name
	}

	// Announcements carry a publish date, not a structured deadline. Use it
	// as the discovery timestamp when present so ordering reflects the feed.
	if item.PublishedParsed != nil {
		grant.DiscoveredAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		grant.DiscoveredAt = *item.UpdatedParsed
	}

	return grant, true
}

// FeedToGrants converts all items in a feed to Grants, dropping items with
// no title or no link.
func FeedToGrants(feed *gofeed.Feed, sourceID uuid.UUID, funder string) []grants.Grant {
	out := make([]grants.Grant, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		grant, ok := FeedItemToGrant(item, sourceID, feed.Title, funder)
		if !ok {
			continue
		}
		out = append(out, grant)
	}
	return out
}
