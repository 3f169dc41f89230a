// Package analytics records user search queries and aggregates them into
// usage reports.
package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/storydesk/curation/internal/app/domain/query"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/pkg/logger"
)

const (
	// Report parameter bounds. Out-of-range values clamp rather than fail.
	DefaultReportDays  = 30
	MaxReportDays      = 365
	DefaultReportLimit = 20
	MaxReportLimit     = 100
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// Service captures and reports on search activity.
type Service struct {
	store storage.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewService builds a Service.
func NewService(store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analytics")
	}
	return &Service{store: store, log: log, now: time.Now}
}

// Record captures a search for a user. It is best effort: anonymous users
// and blank terms are skipped, long values are truncated, and store failures
// are logged rather than returned so search itself never breaks.
func (s *Service) Record(ctx context.Context, userID, referrer, term string) {
	if userID == "" {
		return
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}
	rec := query.Record{
		UserID:    userID,
		Referrer:  query.Truncate(referrer),
		Term:      query.Truncate(term),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.RecordQuery(ctx, rec); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to record search query")
	}
}

// TermCount is one aggregated value, a search term or a referrer path.
type TermCount struct {
	Term  string
	Count int
}

// UserCount is one user's total within the report window.
type UserCount struct {
	UserID string
	Email  string
	Count  int
}

// ReportParams select and bound a report. Zero numeric values take the
// defaults; blank Referrer and UserID disable those filters.
type ReportParams struct {
	Days        int
	Limit       int
	RecentLimit int
	Referrer    string
	UserID      string
}

// Report summarizes recorded searches across all users.
type Report struct {
	Days         int
	TotalCount   int
	TopTerms     []TermCount
	TopReferrers []TermCount
	Users        []UserCount
	Recent       []query.Record
}

// BuildReport aggregates queries over the requested window. Days clamps to
// [1, 365] with 30 as default, limit to [1, 100] with 20, recent to
// [1, 500] with 50. Ties in counts break lexicographically. The optional
// referrer filter matches as a substring; the user filter is exact.
func (s *Service) BuildReport(ctx context.Context, p ReportParams) (Report, error) {
	days := clamp(p.Days, DefaultReportDays, MaxReportDays)
	limit := clamp(p.Limit, DefaultReportLimit, MaxReportLimit)
	recentLimit := clamp(p.RecentLimit, DefaultRecentLimit, MaxRecentLimit)

	since := s.now().UTC().AddDate(0, 0, -days)
	all, err := s.store.ListQueriesSince(ctx, since)
	if err != nil {
		return Report{}, err
	}

	referrer := strings.ToLower(strings.TrimSpace(p.Referrer))
	var records []query.Record
	for _, rec := range all {
		if referrer != "" && !strings.Contains(strings.ToLower(rec.Referrer), referrer) {
			continue
		}
		if p.UserID != "" && rec.UserID != p.UserID {
			continue
		}
		records = append(records, rec)
	}

	termCounts := make(map[string]int)
	referrerCounts := make(map[string]int)
	userCounts := make(map[string]int)
	for _, rec := range records {
		termCounts[rec.Term]++
		if rec.Referrer != "" {
			referrerCounts[rec.Referrer]++
		}
		userCounts[rec.UserID]++
	}

	users := make([]UserCount, 0, len(userCounts))
	for id, count := range userCounts {
		uc := UserCount{UserID: id, Count: count}
		if u, err := s.store.GetUser(ctx, id); err == nil {
			uc.Email = u.Email
		}
		users = append(users, uc)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Count != users[j].Count {
			return users[i].Count > users[j].Count
		}
		return users[i].Email < users[j].Email
	})

	recent := records
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}

	return Report{
		Days:         days,
		TotalCount:   len(records),
		TopTerms:     topCounts(termCounts, limit),
		TopReferrers: topCounts(referrerCounts, limit),
		Users:        users,
		Recent:       recent,
	}, nil
}

func topCounts(counts map[string]int, limit int) []TermCount {
	out := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		out = append(out, TermCount{Term: term, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
