package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/afiq90/sora2api/internal/config"
)

// ConfigStore manages the eight singleton configuration categories. Every
// Get returns hard-coded defaults when the row is absent, never "not
// found"; updates touch only the fields the caller provided.
type ConfigStore struct {
	store *Store
}

func NewConfigStore(s *Store) *ConfigStore {
	return &ConfigStore{store: s}
}

// EnsureDefaults inserts a singleton row for every category that does not
// have one yet. On first startup the optional bootstrap overrides win
// field-by-field over the hard defaults; in upgrade mode the overrides are
// ignored so re-running bootstrap never clobbers operator-edited rows.
func (c *ConfigStore) EnsureDefaults(ov *config.Bootstrap, firstStartup bool) error {
	db, err := c.store.session("config", "ensure_defaults")
	if err != nil {
		return err
	}
	if !firstStartup {
		ov = nil
	}
	if ov == nil {
		ov = &config.Bootstrap{}
	}

	if err := c.ensureAdmin(db, ov); err != nil {
		return err
	}
	if err := c.ensureProxy(db, ov); err != nil {
		return err
	}
	if err := c.ensureWatermarkFree(db, ov); err != nil {
		return err
	}
	if err := c.ensureCache(db, ov); err != nil {
		return err
	}
	if err := c.ensureGeneration(db, ov); err != nil {
		return err
	}
	if err := c.ensureTokenRefresh(db, ov); err != nil {
		return err
	}
	if err := c.ensureCallLogic(db, ov); err != nil {
		return err
	}
	return c.ensurePowProxy(db, ov)
}

func (c *ConfigStore) ensureAdmin(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&AdminConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count admin_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultAdminConfig()
	if g := ov.Global; g != nil {
		row.AdminUsername = strOr(g.AdminUsername, row.AdminUsername)
		row.AdminPassword = strOr(g.AdminPassword, row.AdminPassword)
		row.APIKey = strOr(g.APIKey, row.APIKey)
	}
	if a := ov.Admin; a != nil {
		row.ErrorBanThreshold = intOr(a.ErrorBanThreshold, row.ErrorBanThreshold)
		row.TaskRetryEnabled = boolOr(a.TaskRetryEnabled, row.TaskRetryEnabled)
		row.TaskMaxRetries = intOr(a.TaskMaxRetries, row.TaskMaxRetries)
		row.AutoDisableOn401 = boolOr(a.AutoDisableOn401, row.AutoDisableOn401)
	}
	return db.Create(&row).Error
}

func (c *ConfigStore) ensureProxy(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&ProxyConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count proxy_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultProxyConfig()
	if p := ov.Proxy; p != nil {
		row.ProxyEnabled = boolOr(p.ProxyEnabled, row.ProxyEnabled)
		row.ProxyURL = optionalString(p.ProxyURL)
	}
	return db.Create(&row).Error
}

func (c *ConfigStore) ensureWatermarkFree(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&WatermarkFreeConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count watermark_free_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultWatermarkFreeConfig()
	if w := ov.WatermarkFree; w != nil {
		row.WatermarkFreeEnabled = boolOr(w.WatermarkFreeEnabled, row.WatermarkFreeEnabled)
		row.ParseMethod = strOr(w.ParseMethod, row.ParseMethod)
		row.CustomParseURL = optionalString(w.CustomParseURL)
		row.CustomParseToken = optionalString(w.CustomParseToken)
		row.FallbackOnFailure = boolOr(w.FallbackOnFailure, row.FallbackOnFailure)
	}
	return db.Create(&row).Error
}

func (c *ConfigStore) ensureCache(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&CacheConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count cache_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultCacheConfig()
	if cc := ov.Cache; cc != nil {
		row.CacheEnabled = boolOr(cc.Enabled, row.CacheEnabled)
		row.CacheTimeout = intOr(cc.Timeout, row.CacheTimeout)
		row.CacheBaseURL = optionalString(cc.BaseURL)
	}
	return db.Create(&row).Error
}

func (c *ConfigStore) ensureGeneration(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&GenerationConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count generation_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultGenerationConfig()
	if g := ov.Generation; g != nil {
		row.ImageTimeout = intOr(g.ImageTimeout, row.ImageTimeout)
		row.VideoTimeout = intOr(g.VideoTimeout, row.VideoTimeout)
	}
	return db.Create(&row).Error
}

func (c *ConfigStore) ensureTokenRefresh(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&TokenRefreshConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count token_refresh_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultTokenRefreshConfig()
	if t := ov.TokenRefresh; t != nil {
		row.ATAutoRefreshEnabled = boolOr(t.ATAutoRefreshEnabled, row.ATAutoRefreshEnabled)
	}
	return db.Create(&row).Error
}

func (c *ConfigStore) ensureCallLogic(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&CallLogicConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count call_logic_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultCallLogicConfig()
	if cl := ov.CallLogic; cl != nil {
		mode := strOr(cl.CallMode, "")
		if mode != CallModeDefault && mode != CallModePolling {
			// Unrecognized mode: fall back to the legacy boolean.
			row.PollingModeEnabled = boolOr(cl.PollingModeEnabled, false)
			if row.PollingModeEnabled {
				row.CallMode = CallModePolling
			} else {
				row.CallMode = CallModeDefault
			}
		} else {
			row.CallMode = mode
			row.PollingModeEnabled = mode == CallModePolling
		}
	}
	return db.Create(&row).Error
}

func (c *ConfigStore) ensurePowProxy(db *gorm.DB, ov *config.Bootstrap) error {
	var n int64
	if err := db.Model(&PowProxyConfig{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count pow_proxy_config: %w", err)
	}
	if n > 0 {
		return nil
	}
	row := defaultPowProxyConfig()
	if p := ov.PowProxy; p != nil {
		row.PowProxyEnabled = boolOr(p.PowProxyEnabled, row.PowProxyEnabled)
		row.PowProxyURL = optionalString(p.PowProxyURL)
	}
	return db.Create(&row).Error
}

// GetAdminConfig returns the admin config row, or defaults if absent.
func (c *ConfigStore) GetAdminConfig() (AdminConfig, error) {
	db, err := c.store.session("config", "get_admin")
	if err != nil {
		return AdminConfig{}, err
	}
	var row AdminConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultAdminConfig(), nil
		}
		return AdminConfig{}, err
	}
	return row, nil
}

// AdminConfigUpdate is a sparse update for the admin category; nil fields
// are left untouched.
type AdminConfigUpdate struct {
	AdminUsername     *string
	AdminPassword     *string
	APIKey            *string
	ErrorBanThreshold *int
	TaskRetryEnabled  *bool
	TaskMaxRetries    *int
	AutoDisableOn401  *bool
}

func (c *ConfigStore) UpdateAdminConfig(u AdminConfigUpdate) error {
	updates := map[string]interface{}{}
	if u.AdminUsername != nil {
		updates["admin_username"] = *u.AdminUsername
	}
	if u.AdminPassword != nil {
		updates["admin_password"] = *u.AdminPassword
	}
	if u.APIKey != nil {
		updates["api_key"] = *u.APIKey
	}
	if u.ErrorBanThreshold != nil {
		updates["error_ban_threshold"] = *u.ErrorBanThreshold
	}
	if u.TaskRetryEnabled != nil {
		updates["task_retry_enabled"] = *u.TaskRetryEnabled
	}
	if u.TaskMaxRetries != nil {
		updates["task_max_retries"] = *u.TaskMaxRetries
	}
	if u.AutoDisableOn401 != nil {
		updates["auto_disable_on_401"] = *u.AutoDisableOn401
	}
	if len(updates) == 0 {
		return nil
	}
	db, err := c.store.session("config", "update_admin")
	if err != nil {
		return err
	}
	return db.Model(&AdminConfig{ID: singletonID}).Updates(updates).Error
}

// GetProxyConfig returns the proxy config row, or defaults if absent.
func (c *ConfigStore) GetProxyConfig() (ProxyConfig, error) {
	db, err := c.store.session("config", "get_proxy")
	if err != nil {
		return ProxyConfig{}, err
	}
	var row ProxyConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultProxyConfig(), nil
		}
		return ProxyConfig{}, err
	}
	return row, nil
}

func (c *ConfigStore) UpdateProxyConfig(enabled *bool, proxyURL *string) error {
	updates := map[string]interface{}{}
	if enabled != nil {
		updates["proxy_enabled"] = *enabled
	}
	if proxyURL != nil {
		updates["proxy_url"] = nilIfEmpty(*proxyURL)
	}
	if len(updates) == 0 {
		return nil
	}
	db, err := c.store.session("config", "update_proxy")
	if err != nil {
		return err
	}
	return db.Model(&ProxyConfig{ID: singletonID}).Updates(updates).Error
}

// GetWatermarkFreeConfig returns the watermark-free row, or defaults.
func (c *ConfigStore) GetWatermarkFreeConfig() (WatermarkFreeConfig, error) {
	db, err := c.store.session("config", "get_watermark_free")
	if err != nil {
		return WatermarkFreeConfig{}, err
	}
	var row WatermarkFreeConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultWatermarkFreeConfig(), nil
		}
		return WatermarkFreeConfig{}, err
	}
	return row, nil
}

// WatermarkFreeConfigUpdate is a sparse update for the watermark-free
// category.
type WatermarkFreeConfigUpdate struct {
	WatermarkFreeEnabled *bool
	ParseMethod          *string
	CustomParseURL       *string
	CustomParseToken     *string
	FallbackOnFailure    *bool
}

func (c *ConfigStore) UpdateWatermarkFreeConfig(u WatermarkFreeConfigUpdate) error {
	updates := map[string]interface{}{}
	if u.WatermarkFreeEnabled != nil {
		updates["watermark_free_enabled"] = *u.WatermarkFreeEnabled
	}
	if u.ParseMethod != nil {
		updates["parse_method"] = *u.ParseMethod
	}
	if u.CustomParseURL != nil {
		updates["custom_parse_url"] = nilIfEmpty(*u.CustomParseURL)
	}
	if u.CustomParseToken != nil {
		updates["custom_parse_token"] = nilIfEmpty(*u.CustomParseToken)
	}
	if u.FallbackOnFailure != nil {
		updates["fallback_on_failure"] = *u.FallbackOnFailure
	}
	if len(updates) == 0 {
		return nil
	}
	db, err := c.store.session("config", "update_watermark_free")
	if err != nil {
		return err
	}
	return db.Model(&WatermarkFreeConfig{ID: singletonID}).Updates(updates).Error
}

// GetCacheConfig returns the cache config row, or defaults if absent.
func (c *ConfigStore) GetCacheConfig() (CacheConfig, error) {
	db, err := c.store.session("config", "get_cache")
	if err != nil {
		return CacheConfig{}, err
	}
	var row CacheConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultCacheConfig(), nil
		}
		return CacheConfig{}, err
	}
	return row, nil
}

func (c *ConfigStore) UpdateCacheConfig(enabled *bool, timeout *int, baseURL *string) error {
	updates := map[string]interface{}{}
	if enabled != nil {
		updates["cache_enabled"] = *enabled
	}
	if timeout != nil {
		updates["cache_timeout"] = *timeout
	}
	if baseURL != nil {
		updates["cache_base_url"] = nilIfEmpty(*baseURL)
	}
	if len(updates) == 0 {
		return nil
	}
	db, err := c.store.session("config", "update_cache")
	if err != nil {
		return err
	}
	return db.Model(&CacheConfig{ID: singletonID}).Updates(updates).Error
}

// GetGenerationConfig returns the generation timeouts, or defaults.
func (c *ConfigStore) GetGenerationConfig() (GenerationConfig, error) {
	db, err := c.store.session("config", "get_generation")
	if err != nil {
		return GenerationConfig{}, err
	}
	var row GenerationConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultGenerationConfig(), nil
		}
		return GenerationConfig{}, err
	}
	return row, nil
}

func (c *ConfigStore) UpdateGenerationConfig(imageTimeout, videoTimeout *int) error {
	updates := map[string]interface{}{}
	if imageTimeout != nil {
		updates["image_timeout"] = *imageTimeout
	}
	if videoTimeout != nil {
		updates["video_timeout"] = *videoTimeout
	}
	if len(updates) == 0 {
		return nil
	}
	db, err := c.store.session("config", "update_generation")
	if err != nil {
		return err
	}
	return db.Model(&GenerationConfig{ID: singletonID}).Updates(updates).Error
}

// GetTokenRefreshConfig returns the token-refresh toggle, or defaults.
func (c *ConfigStore) GetTokenRefreshConfig() (TokenRefreshConfig, error) {
	db, err := c.store.session("config", "get_token_refresh")
	if err != nil {
		return TokenRefreshConfig{}, err
	}
	var row TokenRefreshConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultTokenRefreshConfig(), nil
		}
		return TokenRefreshConfig{}, err
	}
	return row, nil
}

func (c *ConfigStore) UpdateTokenRefreshConfig(atAutoRefreshEnabled bool) error {
	db, err := c.store.session("config", "update_token_refresh")
	if err != nil {
		return err
	}
	return db.Model(&TokenRefreshConfig{ID: singletonID}).
		Updates(map[string]interface{}{"at_auto_refresh_enabled": atAutoRefreshEnabled}).Error
}

// GetCallLogicConfig returns the call-mode settings, or defaults. Rows
// written before the enum existed carry only the legacy boolean; the enum
// is backfilled from it on read.
func (c *ConfigStore) GetCallLogicConfig() (CallLogicConfig, error) {
	db, err := c.store.session("config", "get_call_logic")
	if err != nil {
		return CallLogicConfig{}, err
	}
	var row CallLogicConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultCallLogicConfig(), nil
		}
		return CallLogicConfig{}, err
	}
	if row.CallMode == "" {
		if row.PollingModeEnabled {
			row.CallMode = CallModePolling
		} else {
			row.CallMode = CallModeDefault
		}
	}
	return row, nil
}

// UpdateCallMode normalizes the requested mode at the write boundary and
// keeps the legacy boolean consistent with it. Inserts the row if missing.
func (c *ConfigStore) UpdateCallMode(mode string) error {
	normalized := CallModeDefault
	if mode == CallModePolling {
		normalized = CallModePolling
	}
	polling := normalized == CallModePolling

	db, err := c.store.session("config", "update_call_logic")
	if err != nil {
		return err
	}
	var n int64
	if err := db.Model(&CallLogicConfig{}).Where("id = ?", singletonID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return db.Create(&CallLogicConfig{
			ID:                 singletonID,
			CallMode:           normalized,
			PollingModeEnabled: polling,
		}).Error
	}
	return db.Model(&CallLogicConfig{ID: singletonID}).Updates(map[string]interface{}{
		"call_mode":            normalized,
		"polling_mode_enabled": polling,
	}).Error
}

// GetPowProxyConfig returns the POW proxy settings, or defaults.
func (c *ConfigStore) GetPowProxyConfig() (PowProxyConfig, error) {
	db, err := c.store.session("config", "get_pow_proxy")
	if err != nil {
		return PowProxyConfig{}, err
	}
	var row PowProxyConfig
	if err := db.First(&row, singletonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return defaultPowProxyConfig(), nil
		}
		return PowProxyConfig{}, err
	}
	return row, nil
}

// UpdatePowProxyConfig writes the POW proxy settings, inserting the row if
// missing.
func (c *ConfigStore) UpdatePowProxyConfig(enabled bool, powProxyURL *string) error {
	db, err := c.store.session("config", "update_pow_proxy")
	if err != nil {
		return err
	}
	var urlValue *string
	if powProxyURL != nil {
		urlValue = nilIfEmpty(*powProxyURL)
	}
	var n int64
	if err := db.Model(&PowProxyConfig{}).Where("id = ?", singletonID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return db.Create(&PowProxyConfig{
			ID:              singletonID,
			PowProxyEnabled: enabled,
			PowProxyURL:     urlValue,
		}).Error
	}
	return db.Model(&PowProxyConfig{ID: singletonID}).Updates(map[string]interface{}{
		"pow_proxy_enabled": enabled,
		"pow_proxy_url":     urlValue,
	}).Error
}

func strOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

// nilIfEmpty maps empty strings for optional URL/token-like fields to NULL
// so they are never stored as "".
func nilIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// optionalString is nilIfEmpty over an override pointer: absent or empty
// both mean NULL.
func optionalString(p *string) *string {
	if p == nil {
		return nil
	}
	return nilIfEmpty(*p)
}
