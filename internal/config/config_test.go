package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"patscan/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Setenv("GITHUB_TOKENS", "ghp_a,ghp_b")
	defer os.Unsetenv("GITHUB_TOKENS")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, []string{"ghp_a", "ghp_b"}, cfg.GitHubTokens)
	assert.Equal(t, "data", cfg.DataPath)
	assert.Equal(t, 365, cfg.DateRangeDays)
	assert.Equal(t, 7, cfg.DeepScanIntervalDays)
	assert.Equal(t, 10, cfg.SearchMaxPages)
	assert.Equal(t, 5, cfg.SearchRetriesPerPage)
	assert.Equal(t, 60, cfg.CooldownBasePenaltySec)
	assert.Equal(t, 8000, cfg.ServerPort)
	assert.False(t, cfg.EnablePostgres)
	assert.False(t, cfg.EnableNSQ)
	assert.Contains(t, cfg.FilePathBlacklist, "node_modules")
}

func TestLoadConfig_MissingTokens(t *testing.T) {
	os.Unsetenv("GITHUB_TOKENS")

	_, err := config.Load()
	assert.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingRequired)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("GITHUB_TOKENS=ghp_fromfile\nDATA_PATH=/tmp/scan")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, []string{"ghp_fromfile"}, cfg.GitHubTokens)
	assert.Equal(t, "/tmp/scan", cfg.DataPath)
}

func TestValidate_SyncChannels(t *testing.T) {
	t.Run("Balancer Without Auth", func(t *testing.T) {
		cfg := &config.Config{
			GitHubTokens:         []string{"ghp_x"},
			DateRangeDays:        365,
			DeepScanIntervalDays: 7,
			BalancerSyncEnabled:  true,
			BalancerURL:          "http://balancer",
		}
		assert.ErrorIs(t, cfg.Validate(), config.ErrMissingRequired)
	})

	t.Run("GPTLoad Without Groups", func(t *testing.T) {
		cfg := &config.Config{
			GitHubTokens:         []string{"ghp_x"},
			DateRangeDays:        365,
			DeepScanIntervalDays: 7,
			GPTLoadSyncEnabled:   true,
			GPTLoadURL:           "http://gpt-load",
			GPTLoadAuth:          "secret",
		}
		assert.ErrorIs(t, cfg.Validate(), config.ErrMissingRequired)
	})

	t.Run("Complete", func(t *testing.T) {
		cfg := &config.Config{
			GitHubTokens:         []string{"ghp_x"},
			DateRangeDays:        365,
			DeepScanIntervalDays: 7,
			BalancerSyncEnabled:  true,
			BalancerURL:          "http://balancer",
			BalancerAuth:         "secret",
		}
		assert.NoError(t, cfg.Validate())
	})
}
