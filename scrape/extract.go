package scrape

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// maxContainers bounds how many candidate containers are processed per
// page, so a pathological page cannot blow up extraction cost.
const maxContainers = 10

// SelectorMap maps the semantic fields of a grant listing to ranked lists
// of CSS selectors. Per field, selectors are tried in order and the first
// match wins. The container list is the exception: containers are the union
// of matches across all container selectors, because a single page may mix
// several authoring templates.
type SelectorMap struct {
	Container   []string `json:"container" yaml:"container"`
	Title       []string `json:"title" yaml:"title"`
	Description []string `json:"description,omitempty" yaml:"description,omitempty"`
	Amount      []string `json:"amount,omitempty" yaml:"amount,omitempty"`
	Deadline    []string `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Link        []string `json:"link,omitempty" yaml:"link,omitempty"`
}

// ParseSelectorMap decodes a JSON selector map and checks that the two
// required field lists are present.
func ParseSelectorMap(data []byte) (*SelectorMap, error) {
	var sel SelectorMap
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("failed to parse selector map: %w", err)
	}
	if len(sel.Container) == 0 {
		return nil, fmt.Errorf("selector map needs at least one container selector")
	}
	if len(sel.Title) == 0 {
		return nil, fmt.Errorf("selector map needs at least one title selector")
	}
	return &sel, nil
}

// Record is one extracted grant listing. Title is the only required field;
// a container that yields no title produces no record. All other fields are
// nil when no selector matched.
type Record struct {
	Title       string
	Description *string
	Amount      *string
	Deadline    *string
	Link        *string
}

// Extractor turns inconsistent HTML into best-effort Records using a
// declarative ranked-selector strategy. A failure in any single container
// never aborts extraction of the rest.
type Extractor struct {
	log *zap.Logger

	// firstMatch returns the first selector in ranked order that matches
	// under root, or nil. Swappable in tests.
	firstMatch func(root *goquery.Selection, selectors []string) *goquery.Selection
}

// NewExtractor creates an extractor. A nil logger becomes a nop logger.
func NewExtractor(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		log:        log,
		firstMatch: firstMatch,
	}
}

// Extract applies the selector map to parsed markup and returns zero or
// more records. It never returns an error: malformed containers are skipped
// and missing optional fields are left nil.
func (x *Extractor) Extract(doc *goquery.Document, sel SelectorMap) []Record {
	var containers []*goquery.Selection
	for _, s := range sel.Container {
		doc.Find(s).Each(func(_ int, el *goquery.Selection) {
			containers = append(containers, el)
		})
	}
	if len(containers) > maxContainers {
		containers = containers[:maxContainers]
	}

	records := make([]Record, 0, len(containers))
	for i, container := range containers {
		rec, ok := x.extractOne(container, sel)
		if !ok {
			x.log.Debug("container yielded no record", zap.Int("index", i))
			continue
		}
		records = append(records, rec)
	}

	return records
}

// extractOne builds a record from a single container. Any panic while
// processing the container is recovered and reported as "no record" so the
// remaining containers still get processed.
func (x *Extractor) extractOne(container *goquery.Selection, sel SelectorMap) (rec Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			x.log.Warn("skipping malformed container", zap.Any("cause", r))
			rec, ok = Record{}, false
		}
	}()

	title := x.fieldText(container, sel.Title)
	if title == "" {
		return Record{}, false
	}

	rec.Title = title
	rec.Description = x.optionalText(container, sel.Description)
	rec.Amount = x.optionalText(container, sel.Amount)
	rec.Deadline = x.optionalText(container, sel.Deadline)
	rec.Link = x.link(container, sel.Link)
	return rec, true
}

// fieldText extracts whitespace-normalized text for one field, trying each
// selector in order.
func (x *Extractor) fieldText(container *goquery.Selection, selectors []string) string {
	match := x.firstMatch(container, selectors)
	if match == nil {
		return ""
	}
	return strings.Join(strings.Fields(match.Text()), " ")
}

// optionalText is fieldText with absence expressed as nil.
func (x *Extractor) optionalText(container *goquery.Selection, selectors []string) *string {
	text := x.fieldText(container, selectors)
	if text == "" {
		return nil
	}
	return &text
}

// link extracts the link field, preferring an href attribute over element
// text since grant listings nearly always carry the address in an anchor.
func (x *Extractor) link(container *goquery.Selection, selectors []string) *string {
	match := x.firstMatch(container, selectors)
	if match == nil {
		return nil
	}
	if href, exists := match.Attr("href"); exists {
		href = strings.TrimSpace(href)
		if href != "" {
			return &href
		}
		return nil
	}
	text := strings.TrimSpace(match.Text())
	if text == "" {
		return nil
	}
	return &text
}

// firstMatch is the default ranked-selector lookup.
func firstMatch(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		if found := root.Find(s).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}
