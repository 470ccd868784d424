package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBootstrapMissingFile(t *testing.T) {
	b, err := LoadBootstrap(filepath.Join(t.TempDir(), "setting.toml"))
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestLoadBootstrapPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setting.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[global]
admin_username = "operator"
api_key = "sk-test"

[generation]
video_timeout = 600

[call_logic]
call_mode = "polling"
`), 0o644))

	b, err := LoadBootstrap(path)
	require.NoError(t, err)
	require.NotNil(t, b)

	require.NotNil(t, b.Global)
	require.NotNil(t, b.Global.AdminUsername)
	assert.Equal(t, "operator", *b.Global.AdminUsername)
	assert.Equal(t, "sk-test", *b.Global.APIKey)
	// Unset keys stay nil so the defaults win field by field.
	assert.Nil(t, b.Global.AdminPassword)

	require.NotNil(t, b.Generation)
	assert.Equal(t, 600, *b.Generation.VideoTimeout)
	assert.Nil(t, b.Generation.ImageTimeout)

	require.NotNil(t, b.CallLogic)
	assert.Equal(t, "polling", *b.CallLogic.CallMode)

	// Sections absent from the file stay nil entirely.
	assert.Nil(t, b.Admin)
	assert.Nil(t, b.Proxy)
	assert.Nil(t, b.PowProxy)
}

func TestLoadBootstrapRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setting.toml")
	require.NoError(t, os.WriteFile(path, []byte("[global\nbroken"), 0o644))

	_, err := LoadBootstrap(path)
	require.Error(t, err)
}
