package db

import (
	"time"
)

// singletonID is the fixed primary key shared by every config category:
// each table holds exactly one row after bootstrap.
const singletonID = 1

// Call modes recognized by CallLogicConfig. Anything else written through
// the bootstrap path falls back to the legacy polling boolean.
const (
	CallModeDefault = "default"
	CallModePolling = "polling"
)

// AdminConfig holds the admin credentials and the token health policy.
type AdminConfig struct {
	ID int `gorm:"primaryKey"`

	AdminUsername string `gorm:"not null"`
	AdminPassword string `gorm:"not null"`
	APIKey        string `gorm:"column:api_key;not null"`

	// ErrorBanThreshold is the consecutive-error streak at which a
	// collaborator takes a token out of rotation.
	ErrorBanThreshold int
	TaskRetryEnabled  bool
	TaskMaxRetries    int
	AutoDisableOn401  bool `gorm:"column:auto_disable_on_401"`

	UpdatedAt time.Time
}

func (AdminConfig) TableName() string { return "admin_config" }

func defaultAdminConfig() AdminConfig {
	return AdminConfig{
		ID:                singletonID,
		AdminUsername:     "admin",
		AdminPassword:     "admin",
		APIKey:            "han1234",
		ErrorBanThreshold: 3,
		TaskRetryEnabled:  true,
		TaskMaxRetries:    3,
		AutoDisableOn401:  true,
	}
}

// ProxyConfig holds the outbound proxy toggle and URL.
type ProxyConfig struct {
	ID int `gorm:"primaryKey"`

	ProxyEnabled bool
	ProxyURL     *string `gorm:"column:proxy_url"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ProxyConfig) TableName() string { return "proxy_config" }

func defaultProxyConfig() ProxyConfig {
	return ProxyConfig{ID: singletonID, ProxyEnabled: false}
}

// WatermarkFreeConfig controls watermark-free result parsing.
type WatermarkFreeConfig struct {
	ID int `gorm:"primaryKey"`

	WatermarkFreeEnabled bool
	ParseMethod          string `gorm:"not null"`
	CustomParseURL       *string `gorm:"column:custom_parse_url"`
	CustomParseToken     *string
	FallbackOnFailure    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WatermarkFreeConfig) TableName() string { return "watermark_free_config" }

func defaultWatermarkFreeConfig() WatermarkFreeConfig {
	return WatermarkFreeConfig{
		ID:                singletonID,
		ParseMethod:       "third_party",
		FallbackOnFailure: true,
	}
}

// CacheConfig controls the response cache collaborators may use.
type CacheConfig struct {
	ID int `gorm:"primaryKey"`

	CacheEnabled bool
	CacheTimeout int
	CacheBaseURL *string `gorm:"column:cache_base_url"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CacheConfig) TableName() string { return "cache_config" }

func defaultCacheConfig() CacheConfig {
	return CacheConfig{ID: singletonID, CacheTimeout: 600}
}

// GenerationConfig holds per-media generation timeouts in seconds.
type GenerationConfig struct {
	ID int `gorm:"primaryKey"`

	ImageTimeout int
	VideoTimeout int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GenerationConfig) TableName() string { return "generation_config" }

func defaultGenerationConfig() GenerationConfig {
	return GenerationConfig{ID: singletonID, ImageTimeout: 300, VideoTimeout: 3000}
}

// TokenRefreshConfig toggles automatic access-token refresh.
type TokenRefreshConfig struct {
	ID int `gorm:"primaryKey"`

	ATAutoRefreshEnabled bool `gorm:"column:at_auto_refresh_enabled"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TokenRefreshConfig) TableName() string { return "token_refresh_config" }

func defaultTokenRefreshConfig() TokenRefreshConfig {
	return TokenRefreshConfig{ID: singletonID}
}

// CallLogicConfig selects how requests are dispatched. CallMode is the
// current representation; PollingModeEnabled is the legacy boolean kept
// consistent with it on every write.
type CallLogicConfig struct {
	ID int `gorm:"primaryKey"`

	CallMode           string `gorm:"not null"`
	PollingModeEnabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CallLogicConfig) TableName() string { return "call_logic_config" }

func defaultCallLogicConfig() CallLogicConfig {
	return CallLogicConfig{ID: singletonID, CallMode: CallModeDefault}
}

// PowProxyConfig holds the proof-of-work proxy settings.
type PowProxyConfig struct {
	ID int `gorm:"primaryKey"`

	PowProxyEnabled bool
	PowProxyURL     *string `gorm:"column:pow_proxy_url"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PowProxyConfig) TableName() string { return "pow_proxy_config" }

func defaultPowProxyConfig() PowProxyConfig {
	return PowProxyConfig{ID: singletonID}
}
