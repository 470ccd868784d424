package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// MediaType selects which per-media counters an increment applies to.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// TokenRepo provides CRUD and health/usage operations on tokens and their
// stats rows. Point lookups return (nil, nil) when the row is absent.
type TokenRepo struct {
	store *Store
}

func NewTokenRepo(s *Store) *TokenRepo {
	return &TokenRepo{store: s}
}

// Add inserts the token and its zero-valued stats row in one transaction
// and returns the generated id.
func (r *TokenRepo) Add(tok *Token) (uint, error) {
	db, err := r.store.session("tokens", "add")
	if err != nil {
		return 0, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tok).Error; err != nil {
			return err
		}
		return tx.Create(&TokenStats{TokenID: tok.ID}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("add token: %w", err)
	}
	return tok.ID, nil
}

func (r *TokenRepo) GetByID(id uint) (*Token, error) {
	db, err := r.store.session("tokens", "get")
	if err != nil {
		return nil, err
	}
	var tok Token
	if err := db.First(&tok, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tok, nil
}

func (r *TokenRepo) GetByValue(value string) (*Token, error) {
	db, err := r.store.session("tokens", "get_by_value")
	if err != nil {
		return nil, err
	}
	var tok Token
	if err := db.Where("token = ?", value).First(&tok).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tok, nil
}

func (r *TokenRepo) GetByEmail(email string) (*Token, error) {
	db, err := r.store.session("tokens", "get_by_email")
	if err != nil {
		return nil, err
	}
	var tok Token
	if err := db.Where("email = ?", email).First(&tok).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tok, nil
}

// ListActive returns the usable tokens: active, cooldown absent or passed,
// expiry in the future. Ordered by ascending last-used time with never-used
// tokens first, which is what a least-recently-used scheduler keys on.
func (r *TokenRepo) ListActive() ([]Token, error) {
	db, err := r.store.session("tokens", "list_active")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var tokens []Token
	err = db.
		Where("is_active = ?", true).
		Where("cooled_until IS NULL OR cooled_until < ?", now).
		Where("expiry_time > ?", now).
		Order("last_used_at ASC NULLS FIRST").
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// ListAll returns every token, newest-created first.
func (r *TokenRepo) ListAll() ([]Token, error) {
	db, err := r.store.session("tokens", "list_all")
	if err != nil {
		return nil, err
	}
	var tokens []Token
	if err := db.Order("created_at DESC").Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// TokenUpdate is a sparse update: nil fields are left untouched.
type TokenUpdate struct {
	Token            *string
	ST               *string
	RT               *string
	ClientID         *string
	ProxyURL         *string
	Remark           *string
	ExpiryTime       *time.Time
	PlanType         *string
	PlanTitle        *string
	SubscriptionEnd  *time.Time
	ImageEnabled     *bool
	VideoEnabled     *bool
	ImageConcurrency *int
	VideoConcurrency *int
}

func (u TokenUpdate) changes() map[string]interface{} {
	updates := map[string]interface{}{}
	if u.Token != nil {
		updates["token"] = *u.Token
	}
	if u.ST != nil {
		updates["st"] = *u.ST
	}
	if u.RT != nil {
		updates["rt"] = *u.RT
	}
	if u.ClientID != nil {
		updates["client_id"] = *u.ClientID
	}
	if u.ProxyURL != nil {
		updates["proxy_url"] = *u.ProxyURL
	}
	if u.Remark != nil {
		updates["remark"] = *u.Remark
	}
	if u.ExpiryTime != nil {
		updates["expiry_time"] = *u.ExpiryTime
	}
	if u.PlanType != nil {
		updates["plan_type"] = *u.PlanType
	}
	if u.PlanTitle != nil {
		updates["plan_title"] = *u.PlanTitle
	}
	if u.SubscriptionEnd != nil {
		updates["subscription_end"] = *u.SubscriptionEnd
	}
	if u.ImageEnabled != nil {
		updates["image_enabled"] = *u.ImageEnabled
	}
	if u.VideoEnabled != nil {
		updates["video_enabled"] = *u.VideoEnabled
	}
	if u.ImageConcurrency != nil {
		updates["image_concurrency"] = *u.ImageConcurrency
	}
	if u.VideoConcurrency != nil {
		updates["video_concurrency"] = *u.VideoConcurrency
	}
	return updates
}

// Update applies only the provided fields. No statement is issued when the
// update is empty.
func (r *TokenRepo) Update(id uint, u TokenUpdate) error {
	updates := u.changes()
	if len(updates) == 0 {
		return nil
	}
	db, err := r.store.session("tokens", "update")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).Updates(updates).Error
}

// RecordUsage advances the last-used timestamp and bumps the use counter.
func (r *TokenRepo) RecordUsage(id uint) error {
	db, err := r.store.session("tokens", "record_usage")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_used_at": time.Now(),
		"use_count":    gorm.Expr("use_count + 1"),
	}).Error
}

func (r *TokenRepo) SetActive(id uint, active bool) error {
	db, err := r.store.session("tokens", "set_active")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).
		Update("is_active", active).Error
}

// MarkExpired flags the token as expired and deactivates it in one write:
// expiry always implies deactivation.
func (r *TokenRepo) MarkExpired(id uint) error {
	db, err := r.store.session("tokens", "mark_expired")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_expired": true,
		"is_active":  false,
	}).Error
}

// ClearExpired clears only the expired flag; the active state is untouched.
func (r *TokenRepo) ClearExpired(id uint) error {
	db, err := r.store.session("tokens", "clear_expired")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).
		Update("is_expired", false).Error
}

// SetSora2Support records the upstream feature probe result.
func (r *TokenRepo) SetSora2Support(id uint, supported bool, inviteCode *string, redeemed, total, remaining int) error {
	db, err := r.store.session("tokens", "set_sora2_support")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).Updates(map[string]interface{}{
		"sora2_supported":       supported,
		"sora2_invite_code":     inviteCode,
		"sora2_redeemed_count":  redeemed,
		"sora2_total_count":     total,
		"sora2_remaining_count": remaining,
	}).Error
}

func (r *TokenRepo) SetSora2Remaining(id uint, remaining int) error {
	db, err := r.store.session("tokens", "set_sora2_remaining")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).
		Update("sora2_remaining_count", remaining).Error
}

// SetSora2Cooldown sets or clears (nil) the feature-specific cooldown.
func (r *TokenRepo) SetSora2Cooldown(id uint, until *time.Time) error {
	db, err := r.store.session("tokens", "set_sora2_cooldown")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).
		Update("sora2_cooldown_until", until).Error
}

// SetCooldown excludes the token from selection until the given time.
func (r *TokenRepo) SetCooldown(id uint, until time.Time) error {
	db, err := r.store.session("tokens", "set_cooldown")
	if err != nil {
		return err
	}
	return db.Model(&Token{}).Where("id = ?", id).
		Update("cooled_until", until).Error
}

// Delete removes the stats row before the token row, respecting the
// ownership relationship. Tasks and request logs keep their weak reference
// and are not cascaded.
func (r *TokenRepo) Delete(id uint) error {
	db, err := r.store.session("tokens", "delete")
	if err != nil {
		return err
	}
	if err := db.Where("token_id = ?", id).Delete(&TokenStats{}).Error; err != nil {
		return err
	}
	return db.Delete(&Token{}, id).Error
}

// Stats returns the usage counters for a token, or (nil, nil) when absent.
func (r *TokenRepo) Stats(id uint) (*TokenStats, error) {
	db, err := r.store.session("tokens", "stats")
	if err != nil {
		return nil, err
	}
	var stats TokenStats
	if err := db.Where("token_id = ?", id).First(&stats).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

// mediaColumns maps a media type onto its lifetime and today counter
// columns. Identifiers come only from this table, never from callers.
func mediaColumns(media MediaType) (lifetime, today string, err error) {
	switch media {
	case MediaImage:
		return "image_count", "today_image_count", nil
	case MediaVideo:
		return "video_count", "today_video_count", nil
	default:
		return "", "", fmt.Errorf("unknown media type %q", media)
	}
}

// IncrementMediaCount bumps the lifetime counter and the today counter for
// one media type. The rollover and the increment are a single conditional
// statement, so concurrent increments on the date boundary cannot lose an
// update: when the stored day marker no longer matches, the today counter
// restarts at exactly 1.
func (r *TokenRepo) IncrementMediaCount(id uint, media MediaType) error {
	lifetime, today, err := mediaColumns(media)
	if err != nil {
		return err
	}
	db, err := r.store.session("tokens", "increment_"+string(media))
	if err != nil {
		return err
	}
	day := time.Now().Format("2006-01-02")
	stmt := fmt.Sprintf(`UPDATE token_stats
		SET %[1]s = %[1]s + 1,
		    %[2]s = CASE WHEN today_date = ? THEN %[2]s + 1 ELSE 1 END,
		    today_date = ?
		WHERE token_id = ?`, lifetime, today)
	return db.Exec(stmt, day, day, id).Error
}

// IncrementErrorCount bumps the lifetime and today error counters with the
// same day-rollover rule and stamps last_error_at. The consecutive streak
// advances only when countsTowardStreak is true (failures that should not
// ban a token, e.g. caller mistakes, pass false).
func (r *TokenRepo) IncrementErrorCount(id uint, countsTowardStreak bool) error {
	db, err := r.store.session("tokens", "increment_error")
	if err != nil {
		return err
	}
	streak := 0
	if countsTowardStreak {
		streak = 1
	}
	day := time.Now().Format("2006-01-02")
	return db.Exec(`UPDATE token_stats
		SET error_count = error_count + 1,
		    consecutive_error_count = consecutive_error_count + ?,
		    today_error_count = CASE WHEN today_date = ? THEN today_error_count + 1 ELSE 1 END,
		    today_date = ?,
		    last_error_at = ?
		WHERE token_id = ?`, streak, day, day, time.Now(), id).Error
}

// ResetErrorStreak zeroes the consecutive error count only; called by
// collaborators on a successful operation.
func (r *TokenRepo) ResetErrorStreak(id uint) error {
	db, err := r.store.session("tokens", "reset_error_streak")
	if err != nil {
		return err
	}
	return db.Model(&TokenStats{}).Where("token_id = ?", id).
		Update("consecutive_error_count", 0).Error
}
