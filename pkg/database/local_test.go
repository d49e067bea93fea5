package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clearchoice-backend/pkg/models"
)

func newTestDB(t *testing.T) DatabaseInterface {
	t.Helper()
	db, err := NewLocalDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func TestCreateTabAssignsSlugID(t *testing.T) {
	db := newTestDB(t)

	rec, err := db.CreateTab(&models.NewTabInput{
		Title:  "Best Wine For Dinner",
		UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "best-wine-for-dinner", rec.ID)
	assert.Equal(t, "Best Wine For Dinner", rec.Title)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestTabExistsWithTitle(t *testing.T) {
	db := newTestDB(t)

	exists, err := db.TabExistsWithTitle("Wine", "user-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = db.CreateTab(&models.NewTabInput{Title: "Wine", UserID: "user-1"})
	require.NoError(t, err)

	exists, err = db.TabExistsWithTitle("Wine", "user-1")
	require.NoError(t, err)
	assert.True(t, exists)

	// Same title under a different user does not collide.
	exists, err = db.TabExistsWithTitle("Wine", "user-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateTabDuplicateTitleConflicts(t *testing.T) {
	db := newTestDB(t)

	_, err := db.CreateTab(&models.NewTabInput{Title: "Wine", UserID: "user-1"})
	require.NoError(t, err)

	_, err = db.CreateTab(&models.NewTabInput{Title: "Wine", UserID: "user-1"})
	assert.True(t, IsConflict(err))

	// The slug id is the primary key, so the same title under a different
	// user still collides at the storage layer.
	_, err = db.CreateTab(&models.NewTabInput{Title: "Wine", UserID: "user-2"})
	assert.True(t, IsConflict(err))
}

func TestGetTabByIDRoundTrip(t *testing.T) {
	db := newTestDB(t)

	created, err := db.CreateTab(&models.NewTabInput{
		Title:     "Wine Picker",
		UserID:    "user-1",
		TextInput: "pasted wine list",
		Questions: []models.Question{
			{Name: "color", Type: models.QuestionMultiChoice, Choices: []string{"red", "white"}},
		},
	})
	require.NoError(t, err)

	got, err := db.GetTabByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)

	// The row carries the blob undecoded; typed access goes through the codec.
	data, err := models.DecodeTabData(got.Data)
	require.NoError(t, err)
	assert.Equal(t, "pasted wine list", data.TextInput)
	require.Len(t, data.Questions, 1)
	assert.Equal(t, models.QuestionMultiChoice, data.Questions[0].Type)
}

func TestGetTabByIDNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetTabByID("no-such-tab")
	assert.True(t, IsNotFound(err))
}

func TestUpdateTabHeaderOnlyLeavesBlobUntouched(t *testing.T) {
	db := newTestDB(t)

	created, err := db.CreateTab(&models.NewTabInput{
		Title:     "Wine Picker",
		UserID:    "user-1",
		TextInput: "original text",
	})
	require.NoError(t, err)

	updated, err := db.UpdateTab(&models.TabPatch{
		ID:          created.ID,
		Description: strPtr("new description"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new description", updated.Description)

	data, err := models.DecodeTabData(updated.Data)
	require.NoError(t, err)
	assert.Equal(t, "original text", data.TextInput)
}

func TestUpdateTabBodyReplacesWholesale(t *testing.T) {
	db := newTestDB(t)

	created, err := db.CreateTab(&models.NewTabInput{
		Title:     "Wine Picker",
		UserID:    "user-1",
		TextInput: "original text",
		URLInput:  "https://example.com",
	})
	require.NoError(t, err)

	// Patch provides only textInput; the stored urlInput is dropped because
	// the blob is rebuilt from the provided fields, not merged.
	updated, err := db.UpdateTab(&models.TabPatch{
		ID:        created.ID,
		TextInput: strPtr("replacement text"),
	})
	require.NoError(t, err)

	data, err := models.DecodeTabData(updated.Data)
	require.NoError(t, err)
	assert.Equal(t, "replacement text", data.TextInput)
	assert.Empty(t, data.URLInput)
}

func TestUpdateTabUnknownID(t *testing.T) {
	db := newTestDB(t)

	_, err := db.UpdateTab(&models.TabPatch{ID: "ghost", Description: strPtr("x")})
	assert.True(t, IsNotFound(err))
}

func TestListTabsByUser(t *testing.T) {
	db := newTestDB(t)

	_, err := db.CreateTab(&models.NewTabInput{Title: "First", UserID: "user-1"})
	require.NoError(t, err)
	_, err = db.CreateTab(&models.NewTabInput{Title: "Second", UserID: "user-1"})
	require.NoError(t, err)
	_, err = db.CreateTab(&models.NewTabInput{Title: "Other", UserID: "user-2"})
	require.NoError(t, err)

	tabs, err := db.ListTabsByUser("user-1")
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	for _, tab := range tabs {
		assert.Equal(t, "user-1", tab.UserID)
		assert.False(t, tab.UpdatedAt.IsZero())
	}

	empty, err := db.ListTabsByUser("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStampOrderMatchesTimeOrder(t *testing.T) {
	// 定宽格式下字符串排序必须与时间排序一致；
	// RFC3339Nano 会裁掉尾零（05.1Z 排在 05.12Z 之后）
	a := time.Date(2026, 3, 15, 12, 0, 5, 100_000_000, time.UTC)
	b := time.Date(2026, 3, 15, 12, 0, 5, 120_000_000, time.UTC)

	sa := a.Format(stampLayout)
	sb := b.Format(stampLayout)
	assert.Less(t, sa, sb)
	assert.Equal(t, a, parseStamp(sa))
	assert.Equal(t, b, parseStamp(sb))
}

func TestListTabsByUserOrdersByRecency(t *testing.T) {
	db := newTestDB(t)

	first, err := db.CreateTab(&models.NewTabInput{Title: "First", UserID: "user-1"})
	require.NoError(t, err)
	_, err = db.CreateTab(&models.NewTabInput{Title: "Second", UserID: "user-1"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = db.UpdateTab(&models.TabPatch{ID: first.ID, Description: strPtr("touched")})
	require.NoError(t, err)

	tabs, err := db.ListTabsByUser("user-1")
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, first.ID, tabs[0].ID)
}

func TestUserLifecycle(t *testing.T) {
	db := newTestDB(t)

	user := &models.User{
		Email:    "alice@example.com",
		Password: "hashed-password",
		Name:     "Alice",
	}
	require.NoError(t, db.CreateUser(user))
	require.NotEmpty(t, user.ID)
	assert.Equal(t, "credentials", user.Provider)

	got, err := db.GetUserByEmail("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hashed-password", got.Password)

	byID, err := db.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	// Duplicate email conflicts.
	err = db.CreateUser(&models.User{Email: "alice@example.com", Password: "x"})
	assert.True(t, IsConflict(err))

	_, err = db.GetUserByEmail("nobody@example.com")
	assert.True(t, IsNotFound(err))
}

func TestUpdateTabBumpsUpdatedAt(t *testing.T) {
	db := newTestDB(t)

	created, err := db.CreateTab(&models.NewTabInput{Title: "Wine", UserID: "user-1"})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	updated, err := db.UpdateTab(&models.TabPatch{ID: created.ID, Description: strPtr("later")})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}
