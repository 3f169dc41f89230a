package httpapi

import (
	"time"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/domain/query"
	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/services/analytics"
	"github.com/storydesk/curation/internal/app/services/publications"
	"github.com/storydesk/curation/internal/app/services/publishers"
)

type publisherView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Link      string    `json:"link"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toPublisherView(p publisher.Publisher) publisherView {
	return publisherView{
		ID:        p.ID,
		Name:      p.Name,
		Link:      p.Link,
		Hidden:    p.Hidden,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type statsView struct {
	PublicationCount        int        `json:"publication_count"`
	VisiblePublicationCount int        `json:"visible_publication_count"`
	LatestPublicationAt     *time.Time `json:"latest_publication_at"`
}

func toStatsView(s publisher.Stats) statsView {
	return statsView{
		PublicationCount:        s.PublicationCount,
		VisiblePublicationCount: s.VisiblePublicationCount,
		LatestPublicationAt:     s.LatestPublicationAt,
	}
}

type publicationView struct {
	ID            string     `json:"id"`
	Publisher     string     `json:"publisher"`
	PublisherName string     `json:"publisher_name"`
	Title         string     `json:"title"`
	Link          string     `json:"link"`
	Hidden        bool       `json:"hidden"`
	PublishedAt   *time.Time `json:"published_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toPublicationView(p publication.Publication) publicationView {
	return publicationView{
		ID:            p.ID,
		Publisher:     p.PublisherID,
		PublisherName: p.PublisherName,
		Title:         p.Title,
		Link:          p.Link,
		Hidden:        p.Hidden,
		PublishedAt:   p.PublishedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toPublicationViews(list []publication.Publication) []publicationView {
	out := make([]publicationView, 0, len(list))
	for _, p := range list {
		out = append(out, toPublicationView(p))
	}
	return out
}

type storyView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsCurrent   bool      `json:"is_current"`
	Sources     []string  `json:"sources"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toStoryView(s story.Story) storyView {
	sources := s.SourceIDs
	if sources == nil {
		sources = []string{}
	}
	return storyView{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		IsCurrent:   s.IsCurrent,
		Sources:     sources,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Staff     bool      `json:"staff"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u user.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Staff:     u.Staff,
		CreatedAt: u.CreatedAt,
	}
}

type topPublisherView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	PublicationCount int    `json:"publication_count"`
}

type metaView struct {
	TotalPublishers     int                `json:"total_publishers"`
	ActivePublishers    int                `json:"active_publishers"`
	HiddenPublishers    int                `json:"hidden_publishers"`
	TotalPublications   int                `json:"total_publications"`
	VisiblePublications int                `json:"visible_publications"`
	HiddenPublications  int                `json:"hidden_publications"`
	LatestPublishedAt   *time.Time         `json:"latest_published_at"`
	PublishedToday      int                `json:"published_today"`
	PublishedThisWeek   int                `json:"published_this_week"`
	PublishedThisMonth  int                `json:"published_this_month"`
	TopPublishers       []topPublisherView `json:"top_publishers"`
	AvgPublications     float64            `json:"avg_publications_per_publisher"`
	VisibleRatio        float64            `json:"visible_ratio"`
}

func toMetaView(m publishers.Meta) metaView {
	view := metaView{
		TotalPublishers:     m.PublisherCount,
		ActivePublishers:    m.VisiblePublisherCount,
		HiddenPublishers:    m.HiddenPublisherCount,
		TotalPublications:   m.PublicationCount,
		VisiblePublications: m.VisiblePublicationCount,
		HiddenPublications:  m.HiddenPublicationCount,
		LatestPublishedAt:   m.LatestPublicationAt,
		PublishedToday:      m.PublishedToday,
		PublishedThisWeek:   m.PublishedThisWeek,
		PublishedThisMonth:  m.PublishedThisMonth,
		TopPublishers:       []topPublisherView{},
		AvgPublications:     m.AvgPublicationsPerPub,
		VisibleRatio:        m.VisibleRatio,
	}
	for _, tp := range m.TopPublishers {
		view.TopPublishers = append(view.TopPublishers, topPublisherView{
			ID:               tp.ID,
			Name:             tp.Name,
			PublicationCount: tp.PublicationCount,
		})
	}
	return view
}

// listView is the envelope for paginated collections.
type listView struct {
	Count   int         `json:"count"`
	Results interface{} `json:"results"`
}

type bulkItemView struct {
	Index       int              `json:"index"`
	OK          bool             `json:"ok"`
	Publication *publicationView `json:"publication,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type bulkResultView struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Items     []bulkItemView `json:"items"`
}

func toBulkResultView(result publications.BulkResult, withBodies bool) bulkResultView {
	view := bulkResultView{Succeeded: result.Succeeded, Failed: result.Failed}
	for _, item := range result.Items {
		iv := bulkItemView{Index: item.Index, OK: item.Err == nil}
		if item.Err != nil {
			iv.Error = item.Err.Error()
		} else if withBodies {
			pv := toPublicationView(item.Publication)
			iv.Publication = &pv
		}
		view.Items = append(view.Items, iv)
	}
	return view
}

type publisherBulkItemView struct {
	Index     int            `json:"index"`
	OK        bool           `json:"ok"`
	Publisher *publisherView `json:"publisher,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type publisherBulkResultView struct {
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Items     []publisherBulkItemView `json:"items"`
}

func toPublisherBulkResultView(result publishers.BulkResult, withBodies bool) publisherBulkResultView {
	view := publisherBulkResultView{Succeeded: result.Succeeded, Failed: result.Failed}
	for _, item := range result.Items {
		iv := publisherBulkItemView{Index: item.Index, OK: item.Err == nil}
		if item.Err != nil {
			iv.Error = item.Err.Error()
		} else if withBodies {
			pv := toPublisherView(item.Publisher)
			iv.Publisher = &pv
		}
		view.Items = append(view.Items, iv)
	}
	return view
}

type termCountView struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

type userCountView struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Count  int    `json:"count"`
}

type recentQueryView struct {
	UserID    string    `json:"user_id"`
	Referrer  string    `json:"referrer"`
	Term      string    `json:"term"`
	CreatedAt time.Time `json:"created_at"`
}

type reportView struct {
	Days         int               `json:"days"`
	TotalCount   int               `json:"total_count"`
	TopTerms     []termCountView   `json:"top_terms"`
	TopReferrers []termCountView   `json:"top_referrers"`
	Users        []userCountView   `json:"users"`
	Recent       []recentQueryView `json:"recent"`
}

func toReportView(r analytics.Report) reportView {
	view := reportView{
		Days:         r.Days,
		TotalCount:   r.TotalCount,
		TopTerms:     toTermCountViews(r.TopTerms),
		TopReferrers: toTermCountViews(r.TopReferrers),
		Users:        []userCountView{},
		Recent:       []recentQueryView{},
	}
	for _, uc := range r.Users {
		view.Users = append(view.Users, userCountView{UserID: uc.UserID, Email: uc.Email, Count: uc.Count})
	}
	for _, rec := range r.Recent {
		view.Recent = append(view.Recent, toRecentQueryView(rec))
	}
	return view
}

func toTermCountViews(counts []analytics.TermCount) []termCountView {
	out := make([]termCountView, 0, len(counts))
	for _, tc := range counts {
		out = append(out, termCountView{Term: tc.Term, Count: tc.Count})
	}
	return out
}

func toRecentQueryView(rec query.Record) recentQueryView {
	return recentQueryView{UserID: rec.UserID, Referrer: rec.Referrer, Term: rec.Term, CreatedAt: rec.CreatedAt}
}
