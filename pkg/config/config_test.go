package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, 30, cfg.Sync.IntervalSeconds)
	assert.Equal(t, 5, cfg.Sync.SignatureLimit)
	assert.Equal(t, 15000.0, cfg.Price.FallbackINRRate)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"backend": {"base_url": "https://api.example.test/v1", "user_id": "usr_file"},
		"sync": {"interval_seconds": 45, "signature_limit": 3}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("MONOPAY_BACKEND_USER_ID", "usr_env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.test/v1", cfg.Backend.BaseURL)
	assert.Equal(t, "usr_env", cfg.Backend.UserID, "env overrides file")
	assert.Equal(t, 45, cfg.Sync.IntervalSeconds)
	assert.Equal(t, 3, cfg.Sync.SignatureLimit)
	// untouched sections keep defaults
	assert.Equal(t, 200, cfg.Sync.DetailDelayMS)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"bad backend url", `{"backend": {"base_url": "not a url"}}`},
		{"zero fallback", `{"price": {"fallback_inr_rate": 0}}`},
		{"zero interval", `{"sync": {"interval_seconds": 0}}`},
		{"non-native token", `{"payment": {"token": "USDC"}}`},
		{"malformed json", `{"backend": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.json), 0o600))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Backend.UserID = "usr_saved"

	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "usr_saved", loaded.Backend.UserID)
}

func TestEnsureUserID(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.EnsureUserID())
	id := cfg.Backend.UserID
	assert.NotEmpty(t, id)
	assert.False(t, cfg.EnsureUserID())
	assert.Equal(t, id, cfg.Backend.UserID)
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".monopay/vault.db"), expandHome("~/.monopay/vault.db"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
	assert.Equal(t, "", expandHome(""))
}

func TestExplorerLink(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "https://solscan.io/tx/abc?cluster=devnet", cfg.ExplorerLink("abc"))
	cfg.Ledger.ExplorerURL = ""
	assert.Equal(t, "", cfg.ExplorerLink("abc"))
}

func TestLoadConfig_TokenNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"payment": {"token": "sol"}}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, NativeToken, cfg.Payment.Token)
}
