// Package filter parses list-endpoint query parameters into storage-agnostic
// filter values. Each filter exposes a Match method for in-memory evaluation;
// the postgres store translates the same fields into SQL.
package filter

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
)

const (
	// DefaultLimit applies when no limit parameter is sent.
	DefaultLimit = 100
	// MaxLimit caps any requested page size.
	MaxLimit = 500
)

// Page holds pagination parameters. A zero Limit means no pagination.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset, clamping to sane bounds. Malformed
// values fall back to defaults.
func ParsePage(values url.Values) Page {
	p := Page{Limit: DefaultLimit}
	if raw := values.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if raw := values.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Offset = n
		}
	}
	return p
}

// Tokenize splits a raw search string on whitespace and lower-cases the
// tokens. An empty or blank input yields no tokens.
func Tokenize(search string) []string {
	fields := strings.Fields(strings.ToLower(search))
	return fields
}

// searchQuery reads the free-text parameter. The canonical name is q; search
// is accepted as an alias.
func searchQuery(values url.Values) string {
	if raw := values.Get("q"); raw != "" {
		return raw
	}
	return values.Get("search")
}

// publisherIDParam accepts publisher_id with publisher as an alias.
func publisherIDParam(values url.Values) string {
	if raw := values.Get("publisher_id"); raw != "" {
		return raw
	}
	return values.Get("publisher")
}

func parseBoolParam(values url.Values, key string) *bool {
	if raw := values.Get(key); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			return &b
		}
	}
	return nil
}

func parsePositiveInt(values url.Values, key string) int {
	if raw := values.Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// parseNonNegativeInt keeps an explicit zero, which parsePositiveInt would
// treat as unset.
func parseNonNegativeInt(values url.Values, key string) *int {
	if raw := values.Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return &n
		}
	}
	return nil
}

// parseDate reads a date-only parameter (2006-01-02).
func parseDate(values url.Values, key string) *time.Time {
	if raw := values.Get(key); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return &t
		}
	}
	return nil
}

// parseTimestamp reads a full RFC 3339 timestamp, falling back to the
// date-only form.
func parseTimestamp(values url.Values, key string) *time.Time {
	raw := values.Get(key)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t
	}
	return nil
}

// Publication filters a publication list. Zero values mean "not set".
type Publication struct {
	SearchTokens  []string
	Hidden        *bool
	PublisherHid  *bool
	PublisherID   string
	SourceNames   []string
	TitleContains string
	DaysOld       int
	LinkDomain    string

	// Start and End bound the published date by its date component,
	// inclusive on both ends. PublishedAfter and PublishedBefore bound the
	// full timestamp.
	Start           *time.Time
	End             *time.Time
	PublishedAfter  *time.Time
	PublishedBefore *time.Time

	Ordering string
	Page     Page
}

var publicationOrderings = map[string]bool{
	"published_at":  true,
	"-published_at": true,
	"title":         true,
	"-title":        true,
	"created_at":    true,
	"-created_at":   true,
}

// ParsePublication reads publication list parameters. Unknown ordering
// values, malformed numbers, and malformed dates are ignored rather than
// rejected.
func ParsePublication(values url.Values) Publication {
	f := Publication{
		SearchTokens:    Tokenize(searchQuery(values)),
		Hidden:          parseBoolParam(values, "hidden"),
		PublisherHid:    parseBoolParam(values, "publisher_hidden"),
		PublisherID:     publisherIDParam(values),
		DaysOld:         parsePositiveInt(values, "days_old"),
		Start:           parseDate(values, "start"),
		End:             parseDate(values, "end"),
		PublishedAfter:  parseTimestamp(values, "published_after"),
		PublishedBefore: parseTimestamp(values, "published_before"),
		Page:            ParsePage(values),
	}
	if raw := strings.TrimSpace(values.Get("source")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				f.SourceNames = append(f.SourceNames, strings.ToLower(name))
			}
		}
	}
	if contains := strings.TrimSpace(values.Get("title_contains")); contains != "" {
		f.TitleContains = strings.ToLower(contains)
	}
	if domain := strings.TrimSpace(values.Get("link_domain")); domain != "" {
		f.LinkDomain = strings.ToLower(domain)
	}
	if ord := values.Get("ordering"); publicationOrderings[ord] {
		f.Ordering = ord
	}
	return f
}

// Match reports whether a publication passes every set criterion. Search
// tokens must each appear in at least one of title, link, or publisher name.
func (f Publication) Match(p publication.Publication, now time.Time) bool {
	if f.Hidden != nil && p.Hidden != *f.Hidden {
		return false
	}
	if f.PublisherHid != nil && p.PublisherHidden != *f.PublisherHid {
		return false
	}
	if f.PublisherID != "" && p.PublisherID != f.PublisherID {
		return false
	}
	if len(f.SourceNames) > 0 {
		name := strings.ToLower(p.PublisherName)
		found := false
		for _, want := range f.SourceNames {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.TitleContains != "" && !strings.Contains(strings.ToLower(p.Title), f.TitleContains) {
		return false
	}
	if f.DaysOld > 0 || f.Start != nil || f.End != nil || f.PublishedAfter != nil || f.PublishedBefore != nil {
		// Undated publications fail every published-date criterion, same as
		// SQL NULL comparisons.
		if p.PublishedAt == nil {
			return false
		}
		if f.DaysOld > 0 {
			cutoff := now.AddDate(0, 0, -f.DaysOld)
			if p.PublishedAt.Before(cutoff) {
				return false
			}
		}
		if f.Start != nil && p.PublishedAt.Before(dayStart(*f.Start)) {
			return false
		}
		if f.End != nil && !p.PublishedAt.Before(dayStart(*f.End).AddDate(0, 0, 1)) {
			return false
		}
		if f.PublishedAfter != nil && p.PublishedAt.Before(*f.PublishedAfter) {
			return false
		}
		if f.PublishedBefore != nil && p.PublishedAt.After(*f.PublishedBefore) {
			return false
		}
	}
	if f.LinkDomain != "" {
		if !strings.Contains(strings.ToLower(p.Link), "//"+f.LinkDomain) {
			return false
		}
	}
	if len(f.SearchTokens) > 0 {
		haystack := strings.ToLower(p.Title + " " + p.Link + " " + p.PublisherName)
		for _, tok := range f.SearchTokens {
			if !strings.Contains(haystack, tok) {
				return false
			}
		}
	}
	return true
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SortPublications orders a slice in place according to the filter's
// ordering, defaulting to newest published first.
func (f Publication) SortPublications(list []publication.Publication) {
	ordering := f.Ordering
	if ordering == "" {
		ordering = "-published_at"
	}
	desc := strings.HasPrefix(ordering, "-")
	field := strings.TrimPrefix(ordering, "-")
	sort.SliceStable(list, func(i, j int) bool {
		var less bool
		switch field {
		case "title":
			less = strings.ToLower(list[i].Title) < strings.ToLower(list[j].Title)
		case "created_at":
			less = list[i].CreatedAt.Before(list[j].CreatedAt)
		default:
			less = publishedTime(list[i]).Before(publishedTime(list[j]))
		}
		if desc {
			return !less && !equalPublicationField(list[i], list[j], field)
		}
		return less
	})
}

func equalPublicationField(a, b publication.Publication, field string) bool {
	switch field {
	case "title":
		return strings.EqualFold(a.Title, b.Title)
	case "created_at":
		return a.CreatedAt.Equal(b.CreatedAt)
	default:
		return publishedTime(a).Equal(publishedTime(b))
	}
}

// publishedTime treats an undated publication as the earliest possible, so
// the default newest-first ordering puts it last.
func publishedTime(p publication.Publication) time.Time {
	if p.PublishedAt == nil {
		return time.Time{}
	}
	return *p.PublishedAt
}

// Publisher filters a publisher list.
type Publisher struct {
	SearchTokens    []string
	Hidden          *bool
	NameContains    string
	WebsiteDomain   string
	MinPublications int
	MaxPublications *int
	HasPublications *bool
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time

	Ordering string
	Page     Page
}

var publisherOrderings = map[string]bool{
	"name":        true,
	"-name":       true,
	"created_at":  true,
	"-created_at": true,
}

// ParsePublisher reads publisher list parameters. A min_publications of
// zero or below, or malformed, is ignored; max_publications of zero is kept,
// it selects publishers with no publications.
func ParsePublisher(values url.Values) Publisher {
	f := Publisher{
		SearchTokens:    Tokenize(searchQuery(values)),
		Hidden:          parseBoolParam(values, "hidden"),
		MinPublications: parsePositiveInt(values, "min_publications"),
		MaxPublications: parseNonNegativeInt(values, "max_publications"),
		HasPublications: parseBoolParam(values, "has_publications"),
		CreatedAfter:    parseTimestamp(values, "created_after"),
		CreatedBefore:   parseTimestamp(values, "created_before"),
		Page:            ParsePage(values),
	}
	if contains := strings.TrimSpace(values.Get("name_contains")); contains != "" {
		f.NameContains = strings.ToLower(contains)
	}
	if domain := strings.TrimSpace(values.Get("website_domain")); domain != "" {
		f.WebsiteDomain = strings.ToLower(domain)
	}
	if ord := values.Get("ordering"); publisherOrderings[ord] {
		f.Ordering = ord
	}
	return f
}

// Match reports whether a publisher passes every set criterion.
// publicationCount is the publisher's total publication count, supplied by
// the store.
func (f Publisher) Match(p publisher.Publisher, publicationCount int) bool {
	if f.Hidden != nil && p.Hidden != *f.Hidden {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(p.Name), f.NameContains) {
		return false
	}
	if f.WebsiteDomain != "" {
		if !strings.Contains(strings.ToLower(p.Link), "//"+f.WebsiteDomain) {
			return false
		}
	}
	if f.MinPublications > 0 && publicationCount < f.MinPublications {
		return false
	}
	if f.MaxPublications != nil && publicationCount > *f.MaxPublications {
		return false
	}
	if f.HasPublications != nil && (publicationCount > 0) != *f.HasPublications {
		return false
	}
	if f.CreatedAfter != nil && p.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && p.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	if len(f.SearchTokens) > 0 {
		haystack := strings.ToLower(p.Name + " " + p.Link)
		for _, tok := range f.SearchTokens {
			if !strings.Contains(haystack, tok) {
				return false
			}
		}
	}
	return true
}

// SortPublishers orders a slice in place, defaulting to name ascending.
func (f Publisher) SortPublishers(list []publisher.Publisher) {
	ordering := f.Ordering
	if ordering == "" {
		ordering = "name"
	}
	desc := strings.HasPrefix(ordering, "-")
	field := strings.TrimPrefix(ordering, "-")
	sort.SliceStable(list, func(i, j int) bool {
		var less bool
		switch field {
		case "created_at":
			less = list[i].CreatedAt.Before(list[j].CreatedAt)
		default:
			less = strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
		}
		if desc {
			return !less
		}
		return less
	})
}

// Apply slices a result set according to the page bounds.
func (p Page) Apply(length int) (start, end int) {
	start = p.Offset
	if start > length {
		start = length
	}
	end = length
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return start, end
}
