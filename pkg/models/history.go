package models

import "time"

// History bucket titles, in the order groups are emitted
const (
	BucketToday     = "Today"
	BucketYesterday = "Yesterday"
	BucketLastWeek  = "Last Week"
	BucketLastMonth = "Last Month"
	BucketOlder     = "Older"
)

// HistoryItem is one sidebar entry. IsActive is always initialized false;
// the selection-handling UI layer flips it.
type HistoryItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	UserID      string    `json:"userId"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
	IsActive    bool      `json:"isActive"`
}

// HistoryGroup is one time bucket of sidebar entries
type HistoryGroup struct {
	Title string        `json:"title"`
	Items []HistoryItem `json:"items"`
}

// BuildHistory partitions a user's tabs into the five fixed time buckets
// relative to now, for sidebar display. Deterministic given (tabs, now):
// a stable partition with no secondary sort, emitted in the fixed bucket
// order with empty buckets omitted.
//
// The Last Week / Last Month predicates use sliding windows (>= now-7d,
// >= now-1 calendar month), not calendar-aligned ones, so a tab sitting
// exactly on a boundary can change bucket between calls made at different
// times of the same day. Accepted property of the design.
func BuildHistory(tabs []TabSummary, now time.Time) []HistoryGroup {
	buckets := map[string][]HistoryItem{}

	for _, tab := range tabs {
		updated := tab.UpdatedAt
		if updated.IsZero() {
			// a tab that was never touched counts as touched right now
			updated = now
		}

		item := HistoryItem{
			ID:          tab.ID,
			Title:       tab.Title,
			URL:         "/product?id=" + tab.ID,
			UserID:      tab.UserID,
			Description: tab.Description,
			UpdatedAt:   tab.UpdatedAt,
			IsActive:    false,
		}

		bucket := bucketFor(updated, now)
		buckets[bucket] = append(buckets[bucket], item)
	}

	groups := make([]HistoryGroup, 0, 5)
	for _, title := range []string{BucketToday, BucketYesterday, BucketLastWeek, BucketLastMonth, BucketOlder} {
		if items := buckets[title]; len(items) > 0 {
			groups = append(groups, HistoryGroup{Title: title, Items: items})
		}
	}
	return groups
}

// bucketFor classifies one timestamp. Predicates are mutually exclusive
// because they are checked in order.
func bucketFor(t, now time.Time) string {
	switch {
	case sameDay(t, now):
		return BucketToday
	case sameDay(t, now.AddDate(0, 0, -1)):
		return BucketYesterday
	case !t.Before(now.AddDate(0, 0, -7)):
		return BucketLastWeek
	case !t.Before(now.AddDate(0, -1, 0)):
		return BucketLastMonth
	default:
		return BucketOlder
	}
}

// sameDay reports whether two instants fall on the same calendar day,
// evaluated in b's location
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
