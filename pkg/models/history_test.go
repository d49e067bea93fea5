package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryAt(id string, updated time.Time) TabSummary {
	return TabSummary{
		ID:        id,
		Title:     id,
		UserID:    "user-1",
		UpdatedAt: updated,
	}
}

func TestBuildHistoryAllBuckets(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	tabs := []TabSummary{
		summaryAt("today", now.Add(-2*time.Hour)),
		summaryAt("yesterday", now.AddDate(0, 0, -1)),
		summaryAt("last-week", now.AddDate(0, 0, -5)),
		summaryAt("last-month", now.AddDate(0, 0, -20)),
		summaryAt("older", now.AddDate(0, 0, -60)),
	}

	groups := BuildHistory(tabs, now)

	require.Len(t, groups, 5)
	assert.Equal(t, BucketToday, groups[0].Title)
	assert.Equal(t, BucketYesterday, groups[1].Title)
	assert.Equal(t, BucketLastWeek, groups[2].Title)
	assert.Equal(t, BucketLastMonth, groups[3].Title)
	assert.Equal(t, BucketOlder, groups[4].Title)

	for _, g := range groups {
		require.Len(t, g.Items, 1)
	}
	assert.Equal(t, "today", groups[0].Items[0].ID)
	assert.Equal(t, "yesterday", groups[1].Items[0].ID)
	assert.Equal(t, "last-week", groups[2].Items[0].ID)
	assert.Equal(t, "last-month", groups[3].Items[0].ID)
	assert.Equal(t, "older", groups[4].Items[0].ID)
}

func TestBuildHistoryEmptyBucketsOmitted(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	groups := BuildHistory([]TabSummary{
		summaryAt("a", now.AddDate(0, 0, -90)),
		summaryAt("b", now.AddDate(0, -3, 0)),
	}, now)

	require.Len(t, groups, 1)
	assert.Equal(t, BucketOlder, groups[0].Title)
	assert.Len(t, groups[0].Items, 2)
}

func TestBuildHistoryEmptyInput(t *testing.T) {
	now := time.Now()
	assert.Empty(t, BuildHistory(nil, now))
	assert.Empty(t, BuildHistory([]TabSummary{}, now))
}

func TestBuildHistoryStablePartition(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	// Two same-bucket tabs keep their input order, no secondary sort.
	tabs := []TabSummary{
		summaryAt("first", now.Add(-10*time.Hour)),
		summaryAt("second", now.Add(-1*time.Hour)),
	}

	groups := BuildHistory(tabs, now)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, "first", groups[0].Items[0].ID)
	assert.Equal(t, "second", groups[0].Items[1].ID)
}

func TestBuildHistoryZeroUpdatedAtCountsAsToday(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	groups := BuildHistory([]TabSummary{{ID: "untouched", Title: "untouched", UserID: "u"}}, now)
	require.Len(t, groups, 1)
	assert.Equal(t, BucketToday, groups[0].Title)
}

func TestBuildHistoryItemShape(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	updated := now.Add(-1 * time.Hour)

	groups := BuildHistory([]TabSummary{{
		ID:          "wine-picker",
		Title:       "Wine Picker",
		UserID:      "user-1",
		Description: "helps pick a wine",
		UpdatedAt:   updated,
	}}, now)

	require.Len(t, groups, 1)
	item := groups[0].Items[0]
	assert.Equal(t, "wine-picker", item.ID)
	assert.Equal(t, "/product?id=wine-picker", item.URL)
	assert.Equal(t, "user-1", item.UserID)
	assert.Equal(t, "helps pick a wine", item.Description)
	assert.Equal(t, updated, item.UpdatedAt)
	assert.False(t, item.IsActive)
}

func TestBucketBoundaries(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		at   time.Time
		want string
	}{
		{"midnight today", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), BucketToday},
		{"late yesterday", time.Date(2026, time.March, 14, 23, 59, 0, 0, time.UTC), BucketYesterday},
		{"two days ago", now.AddDate(0, 0, -2), BucketLastWeek},
		{"exactly seven days ago", now.AddDate(0, 0, -7), BucketLastWeek},
		{"eight days ago", now.AddDate(0, 0, -8), BucketLastMonth},
		{"exactly one month ago", now.AddDate(0, -1, 0), BucketLastMonth},
		{"thirty-two days ago", now.AddDate(0, 0, -32), BucketOlder},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, bucketFor(tc.at, now))
		})
	}
}
