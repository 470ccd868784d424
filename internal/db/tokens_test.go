package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTestToken(t *testing.T, repo *TokenRepo, value string) uint {
	t.Helper()
	expiry := time.Now().Add(24 * time.Hour)
	id, err := repo.Add(&Token{
		Token:            value,
		Email:            value + "@example.com",
		Username:         value,
		Name:             "token " + value,
		ExpiryTime:       &expiry,
		IsActive:         true,
		ImageEnabled:     true,
		VideoEnabled:     true,
		ImageConcurrency: -1,
		VideoConcurrency: -1,
	})
	require.NoError(t, err)
	return id
}

func TestAddCreatesStatsRow(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-a")
	require.NotZero(t, id)

	stats, err := repo.Stats(id)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, id, stats.TokenID)
	assert.Zero(t, stats.ImageCount)
	assert.Zero(t, stats.ConsecutiveErrorCount)
}

func TestAddDuplicateValueFails(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	addTestToken(t, repo, "tok-dup")
	expiry := time.Now().Add(time.Hour)
	_, err := repo.Add(&Token{
		Token: "tok-dup", Email: "x@example.com", Username: "x", Name: "x",
		ExpiryTime: &expiry, IsActive: true,
	})
	require.Error(t, err)
}

func TestPointLookups(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-b")

	byID, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "tok-b", byID.Token)

	byValue, err := repo.GetByValue("tok-b")
	require.NoError(t, err)
	require.NotNil(t, byValue)
	assert.Equal(t, id, byValue.ID)

	byEmail, err := repo.GetByEmail("tok-b@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, id, byEmail.ID)

	// Absence is nil, not an error.
	missing, err := repo.GetByID(9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
	missing, err = repo.GetByValue("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListActiveFiltersUsability(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	usable := addTestToken(t, repo, "usable")
	cooledPast := addTestToken(t, repo, "cooled-past")
	cooledFuture := addTestToken(t, repo, "cooled-future")
	inactive := addTestToken(t, repo, "inactive")
	expired := addTestToken(t, repo, "expired")

	require.NoError(t, repo.SetCooldown(cooledPast, time.Now().Add(-time.Hour)))
	require.NoError(t, repo.SetCooldown(cooledFuture, time.Now().Add(time.Hour)))
	require.NoError(t, repo.SetActive(inactive, false))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Update(expired, TokenUpdate{ExpiryTime: &past}))

	active, err := repo.ListActive()
	require.NoError(t, err)

	ids := make(map[uint]bool, len(active))
	for _, tok := range active {
		ids[tok.ID] = true
	}
	assert.True(t, ids[usable])
	assert.True(t, ids[cooledPast])
	assert.False(t, ids[cooledFuture])
	assert.False(t, ids[inactive])
	assert.False(t, ids[expired])
}

func TestListActiveOrdersLeastRecentlyUsedFirst(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	recent := addTestToken(t, repo, "recent")
	stale := addTestToken(t, repo, "stale")
	fresh := addTestToken(t, repo, "never-used")

	db, err := s.DB()
	require.NoError(t, err)
	require.NoError(t, db.Model(&Token{}).Where("id = ?", recent).
		Update("last_used_at", time.Now()).Error)
	require.NoError(t, db.Model(&Token{}).Where("id = ?", stale).
		Update("last_used_at", time.Now().Add(-time.Hour)).Error)

	active, err := repo.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, fresh, active[0].ID) // never used sorts first
	assert.Equal(t, stale, active[1].ID)
	assert.Equal(t, recent, active[2].ID)
}

func TestListAllNewestFirst(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	db, err := s.DB()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		id := addTestToken(t, repo, fmt.Sprintf("tok-%d", i))
		// Spread creation times; SQLite timestamps are not monotonic
		// enough within one test otherwise.
		require.NoError(t, db.Model(&Token{}).Where("id = ?", id).
			Update("created_at", time.Now().Add(time.Duration(i)*time.Minute)).Error)
	}

	all, err := repo.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "tok-2", all[0].Token)
	assert.Equal(t, "tok-0", all[2].Token)
}

func TestSparseUpdateTouchesOnlyProvidedFields(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-upd")
	before, err := repo.GetByID(id)
	require.NoError(t, err)

	// No fields: no statement.
	require.NoError(t, repo.Update(id, TokenUpdate{}))

	require.NoError(t, repo.Update(id, TokenUpdate{Remark: strptr("x")}))

	after, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, after.Remark)
	assert.Equal(t, "x", *after.Remark)
	assert.Equal(t, before.Token, after.Token)
	assert.Equal(t, before.Email, after.Email)
	assert.Equal(t, before.IsActive, after.IsActive)
	assert.Equal(t, before.ImageConcurrency, after.ImageConcurrency)
}

func TestRecordUsage(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-used")
	require.NoError(t, repo.RecordUsage(id))
	require.NoError(t, repo.RecordUsage(id))

	tok, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 2, tok.UseCount)
	assert.NotNil(t, tok.LastUsedAt)
}

func TestMarkExpiredAlwaysDeactivates(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-exp")
	require.NoError(t, repo.MarkExpired(id))

	tok, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.True(t, tok.IsExpired)
	assert.False(t, tok.IsActive)

	// Clearing the flag does not reactivate.
	require.NoError(t, repo.ClearExpired(id))
	tok, err = repo.GetByID(id)
	require.NoError(t, err)
	assert.False(t, tok.IsExpired)
	assert.False(t, tok.IsActive)
}

func TestSora2Updates(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-s2")
	require.NoError(t, repo.SetSora2Support(id, true, strptr("INVITE"), 1, 4, 3))

	tok, err := repo.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, tok.Sora2Supported)
	assert.True(t, *tok.Sora2Supported)
	assert.Equal(t, 3, tok.Sora2RemainingCount)

	require.NoError(t, repo.SetSora2Remaining(id, 2))
	until := time.Now().Add(time.Hour)
	require.NoError(t, repo.SetSora2Cooldown(id, &until))

	tok, err = repo.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 2, tok.Sora2RemainingCount)
	assert.NotNil(t, tok.Sora2CooldownUntil)

	require.NoError(t, repo.SetSora2Cooldown(id, nil))
	tok, err = repo.GetByID(id)
	require.NoError(t, err)
	assert.Nil(t, tok.Sora2CooldownUntil)
}

func TestDeleteRemovesStatsFirst(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-del")
	require.NoError(t, repo.Delete(id))

	tok, err := repo.GetByID(id)
	require.NoError(t, err)
	assert.Nil(t, tok)

	stats, err := repo.Stats(id)
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func seedStats(t *testing.T, s *Store, id uint, values map[string]interface{}) {
	t.Helper()
	db, err := s.DB()
	require.NoError(t, err)
	require.NoError(t, db.Model(&TokenStats{}).Where("token_id = ?", id).Updates(values).Error)
}

func TestIncrementMediaCountRollsOverTheDay(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-day")
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	seedStats(t, s, id, map[string]interface{}{
		"image_count":       10,
		"today_image_count": 7,
		"today_date":        yesterday,
	})

	require.NoError(t, repo.IncrementMediaCount(id, MediaImage))

	stats, err := repo.Stats(id)
	require.NoError(t, err)
	assert.Equal(t, 11, stats.ImageCount)
	// Stale today value is replaced, not added to.
	assert.Equal(t, 1, stats.TodayImageCount)
	assert.Equal(t, time.Now().Format("2006-01-02"), stats.TodayDate)
}

func TestIncrementMediaCountSameDay(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-sameday")
	require.NoError(t, repo.IncrementMediaCount(id, MediaVideo))
	require.NoError(t, repo.IncrementMediaCount(id, MediaVideo))

	stats, err := repo.Stats(id)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.VideoCount)
	assert.Equal(t, 2, stats.TodayVideoCount)
	assert.Zero(t, stats.ImageCount)
}

func TestIncrementErrorCountStreakRules(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-err")
	seedStats(t, s, id, map[string]interface{}{
		"error_count":       5,
		"today_error_count": 2,
		"today_date":        time.Now().Format("2006-01-02"),
	})

	require.NoError(t, repo.IncrementErrorCount(id, true))

	stats, err := repo.Stats(id)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.ErrorCount)
	assert.Equal(t, 3, stats.TodayErrorCount)
	assert.Equal(t, 1, stats.ConsecutiveErrorCount)
	assert.NotNil(t, stats.LastErrorAt)

	// Not counting toward the streak still counts everywhere else.
	require.NoError(t, repo.IncrementErrorCount(id, false))
	stats, err = repo.Stats(id)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.ErrorCount)
	assert.Equal(t, 4, stats.TodayErrorCount)
	assert.Equal(t, 1, stats.ConsecutiveErrorCount)
}

func TestResetErrorStreak(t *testing.T) {
	s := newTestStore(t)
	repo := NewTokenRepo(s)

	id := addTestToken(t, repo, "tok-streak")
	require.NoError(t, repo.IncrementErrorCount(id, true))
	require.NoError(t, repo.IncrementErrorCount(id, true))

	require.NoError(t, repo.ResetErrorStreak(id))

	stats, err := repo.Stats(id)
	require.NoError(t, err)
	assert.Zero(t, stats.ConsecutiveErrorCount)
	assert.Equal(t, 2, stats.ErrorCount)
	assert.Equal(t, 2, stats.TodayErrorCount)
}
