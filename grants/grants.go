package grants

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/grantscout/grantscout/scrape"
)

// Grant represents a single funding opportunity. Title and URL are always
// present; everything else is best-effort from whatever the source page
// exposed.
type Grant struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Funder       *string    `json:"funder,omitempty"`
	Amount       *string    `json:"amount,omitempty"`
	Deadline     *string    `json:"deadline,omitempty"`
	URL          string     `json:"url"`
	SourceID     *uuid.UUID `json:"source_id,omitempty"`
	Sample       bool       `json:"sample"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// FromRecord converts an extracted listing into a Grant, filling defaults
// for absent fields. Relative links are resolved against the page the
// record came from; a record with no link falls back to the page URL
// itself.
func FromRecord(rec scrape.Record, sourceID uuid.UUID, pageURL string, funder string) Grant {
	grant := Grant{
		ID:           uuid.New(),
		Title:        rec.Title,
		URL:          pageURL,
		SourceID:     &sourceID,
		DiscoveredAt: time.Now(),
	}

	if rec.Description != nil {
		grant.Description = *rec.Description
	}
	grant.Amount = rec.Amount
	grant.Deadline = rec.Deadline

	if funder != "" {
		grant.Funder = &funder
	}

	if rec.Link != nil {
		grant.URL = resolveLink(pageURL, *rec.Link)
	}

	return grant
}

// resolveLink resolves a possibly-relative extracted link against the page
// it was found on. Unparseable links fall back to the page URL.
func resolveLink(pageURL, link string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return pageURL
	}
	return base.ResolveReference(ref).String()
}

// SampleGrants returns a small synthetic result set used when every source
// fails, so the user always sees usable data rather than an error.
func SampleGrants() []Grant {
	now := time.Now()
	funder := func(name string) *string { return &name }
	str := func(s string) *string { return &s }

	return []Grant{
		{
			ID:           uuid.New(),
			Title:        "Community Development Block Grant",
			Description:  "Annual funding for community facilities, housing rehabilitation, and public services in low-income neighborhoods.",
			Funder:       funder("Department of Housing and Urban Development"),
			Amount:       str("$75,000"),
			Deadline:     str("April 30, 2026"),
			URL:          "https://www.grants.example.gov/opportunities/cdbg",
			Sample:       true,
			DiscoveredAt: now,
		},
		{
			ID:           uuid.New(),
			Title:        "Rural Health Outreach Program",
			Description:  "Supports outreach projects that expand access to health care services in rural communities.",
			Funder:       funder("Health Resources Administration"),
			Amount:       str("$200,000"),
			Deadline:     str("May 15, 2026"),
			URL:          "https://www.grants.example.gov/opportunities/rural-health",
			Sample:       true,
			DiscoveredAt: now,
		},
		{
			ID:           uuid.New(),
			Title:        "Arts Education Partnership Grant",
			Description:  "Funding for nonprofit partnerships that bring arts instruction into public schools.",
			Funder:       funder("National Arts Foundation"),
			Amount:       str("$25,000"),
			Deadline:     str("June 1, 2026"),
			URL:          "https://www.arts.example.org/grants/education-partnership",
			Sample:       true,
			DiscoveredAt: now,
		},
		{
			ID:           uuid.New(),
			Title:        "Environmental Justice Small Grants",
			Description:  "Small grants for community-driven projects addressing local environmental and public health issues.",
			Funder:       funder("Environmental Protection Office"),
			Amount:       str("$50,000"),
			URL:          "https://www.environment.example.gov/ej-small-grants",
			Sample:       true,
			DiscoveredAt: now,
		},
	}
}
