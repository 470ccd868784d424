package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Bootstrap carries operator-supplied seed values for the config tables,
// read from setting.toml. Every field is a pointer so that "not set in the
// file" is distinguishable from a zero value; the config store falls back
// to its hard-coded defaults field by field.
type Bootstrap struct {
	Global        *GlobalSettings        `toml:"global"`
	Admin         *AdminSettings         `toml:"admin"`
	Proxy         *ProxySettings         `toml:"proxy"`
	WatermarkFree *WatermarkFreeSettings `toml:"watermark_free"`
	Cache         *CacheSettings         `toml:"cache"`
	Generation    *GenerationSettings    `toml:"generation"`
	TokenRefresh  *TokenRefreshSettings  `toml:"token_refresh"`
	CallLogic     *CallLogicSettings     `toml:"call_logic"`
	PowProxy      *PowProxySettings      `toml:"pow_proxy"`
}

type GlobalSettings struct {
	AdminUsername *string `toml:"admin_username"`
	AdminPassword *string `toml:"admin_password"`
	APIKey        *string `toml:"api_key"`
}

type AdminSettings struct {
	ErrorBanThreshold *int  `toml:"error_ban_threshold"`
	TaskRetryEnabled  *bool `toml:"task_retry_enabled"`
	TaskMaxRetries    *int  `toml:"task_max_retries"`
	AutoDisableOn401  *bool `toml:"auto_disable_on_401"`
}

type ProxySettings struct {
	ProxyEnabled *bool   `toml:"proxy_enabled"`
	ProxyURL     *string `toml:"proxy_url"`
}

type WatermarkFreeSettings struct {
	WatermarkFreeEnabled *bool   `toml:"watermark_free_enabled"`
	ParseMethod          *string `toml:"parse_method"`
	CustomParseURL       *string `toml:"custom_parse_url"`
	CustomParseToken     *string `toml:"custom_parse_token"`
	FallbackOnFailure    *bool   `toml:"fallback_on_failure"`
}

type CacheSettings struct {
	Enabled *bool   `toml:"enabled"`
	Timeout *int    `toml:"timeout"`
	BaseURL *string `toml:"base_url"`
}

type GenerationSettings struct {
	ImageTimeout *int `toml:"image_timeout"`
	VideoTimeout *int `toml:"video_timeout"`
}

type TokenRefreshSettings struct {
	ATAutoRefreshEnabled *bool `toml:"at_auto_refresh_enabled"`
}

type CallLogicSettings struct {
	CallMode           *string `toml:"call_mode"`
	PollingModeEnabled *bool   `toml:"polling_mode_enabled"`
}

type PowProxySettings struct {
	PowProxyEnabled *bool   `toml:"pow_proxy_enabled"`
	PowProxyURL     *string `toml:"pow_proxy_url"`
}

// LoadBootstrap parses the setting file at path. A missing file is not an
// error; it simply means no overrides, so (nil, nil) is returned.
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var b Bootstrap
	if err := toml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &b, nil
}
