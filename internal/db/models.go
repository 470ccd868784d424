package db

import (
	"time"

	"gorm.io/datatypes"
)

// Token is one reusable upstream credential together with its health and
// plan metadata. A token is usable when it is active, its cooldown (if any)
// has passed and its expiry time is in the future; IsExpired is a terminal
// health flag distinct from the reversible IsActive toggle.
type Token struct {
	ID uint `gorm:"primaryKey"`

	Token    string `gorm:"uniqueIndex;not null"`
	Email    string `gorm:"not null"`
	Username string `gorm:"not null"`
	Name     string `gorm:"not null"`

	// ST/RT are the upstream session and refresh secrets.
	ST *string `gorm:"column:st"`
	RT *string `gorm:"column:rt"`

	ClientID *string `gorm:"column:client_id"`
	ProxyURL *string `gorm:"column:proxy_url"`
	Remark   *string

	ExpiryTime  *time.Time
	IsActive    bool `gorm:"index"`
	CooledUntil *time.Time
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	UseCount    int `gorm:"not null"`

	PlanType        *string
	PlanTitle       *string
	SubscriptionEnd *time.Time

	Sora2Supported      *bool      `gorm:"column:sora2_supported"`
	Sora2InviteCode     *string    `gorm:"column:sora2_invite_code"`
	Sora2RedeemedCount  int        `gorm:"column:sora2_redeemed_count"`
	Sora2TotalCount     int        `gorm:"column:sora2_total_count"`
	Sora2RemainingCount int        `gorm:"column:sora2_remaining_count"`
	Sora2CooldownUntil  *time.Time `gorm:"column:sora2_cooldown_until"`

	ImageEnabled bool
	VideoEnabled bool
	// Concurrency caps per media type; -1 means unlimited.
	ImageConcurrency int
	VideoConcurrency int

	IsExpired bool
}

func (Token) TableName() string { return "tokens" }

// TokenStats is the usage counter row owned 1:1 by a Token; it is created
// together with the token and deleted before it. Lifetime counters only
// ever accumulate; the today_* counters reset when TodayDate rolls over.
type TokenStats struct {
	ID      uint `gorm:"primaryKey"`
	TokenID uint `gorm:"index;not null"`

	ImageCount  int
	VideoCount  int
	ErrorCount  int
	LastErrorAt *time.Time

	TodayImageCount int
	TodayVideoCount int
	TodayErrorCount int
	// TodayDate marks which day the today_* counters belong to, as an
	// ISO-8601 day string ("2006-01-02").
	TodayDate string `gorm:"size:10"`

	// ConsecutiveErrorCount is the unbroken failure streak since the last
	// success signal (ResetErrorStreak).
	ConsecutiveErrorCount int
}

func (TokenStats) TableName() string { return "token_stats" }

// Task is one asynchronous generation task as reported by the upstream API.
// TaskID is caller-assigned; CompletedAt is set only when the status is
// terminal (completed or failed).
type Task struct {
	ID uint `gorm:"primaryKey"`

	TaskID  string `gorm:"uniqueIndex;not null"`
	TokenID uint   `gorm:"not null"`

	Model  string `gorm:"not null"`
	Prompt string `gorm:"not null"`

	Status   string `gorm:"index;not null"`
	Progress float64

	ResultURLs   datatypes.JSONSlice[string] `gorm:"column:result_urls"`
	ErrorMessage *string

	RetryCount  int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (Task) TableName() string { return "tasks" }

// Task status values with terminal semantics. Callers may store other
// in-flight statuses; only these two stamp CompletedAt.
const (
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// RequestLog is an append-only audit record of one outbound relay attempt.
// TokenID is a weak reference: deleting a token does not cascade here, so
// readers must tolerate a dangling id. The row is only ever touched again
// to attach a late-arriving task id or completion fields.
type RequestLog struct {
	ID uint `gorm:"primaryKey"`

	TokenID *uint `gorm:"index"`
	TaskID  *string

	Operation    string `gorm:"not null"`
	RequestBody  *string
	ResponseBody *string

	StatusCode int     `gorm:"not null"`
	Duration   float64 `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt *time.Time `gorm:"autoUpdateTime:false"`
}

func (RequestLog) TableName() string { return "request_logs" }
