package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealzen/deals-cli/internal/config"
)

func TestDefaultConfigConsistent(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, WeightSum(cfg))
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoadRulesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"min_deals_per_page: 3\nexcellent_threshold: 90\nmax_duplicate_rate: 0.10\n",
	), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, LoadRules(path, &cfg))

	assert.Equal(t, 3, cfg.MinDealsPerPage)
	assert.Equal(t, 90, cfg.ExcellentThreshold)
	assert.InDelta(t, 0.10, cfg.MaxDuplicateRate, 1e-9)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60, cfg.MaxDealsPerPage)
	assert.Equal(t, 30, cfg.RequiredFieldsWeight)
}

func TestLoadRulesMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	assert.Error(t, err)
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	t.Run("weights_off_sum", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DuplicateWeight = 10
		assert.ErrorContains(t, ValidateConfig(cfg), "sum to 100")
	})

	t.Run("inverted_price_band", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MinPrice = 100
		cfg.MaxPrice = 1
		assert.ErrorContains(t, ValidateConfig(cfg), "price band")
	})

	t.Run("rate_out_of_range", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxDuplicateRate = 1.5
		assert.ErrorContains(t, ValidateConfig(cfg), "max_duplicate_rate")
	})

	t.Run("unordered_thresholds", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.GoodThreshold = 95
		assert.ErrorContains(t, ValidateConfig(cfg), "thresholds")
	})
}

func TestNewFallsBackToDefaults(t *testing.T) {
	v := New(DefaultConfig())
	zero := New(config.ValidationConfig{})

	deals := goodBatch(20)
	assert.Equal(t, v.Validate(deals).Score, zero.Validate(deals).Score)
}
