// Package validate implements the automated quality gate for extracted
// deal batches: a 0-100 weighted score and an accept/retry/reject decision.
package validate

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/dealzen/deals-cli/internal/config"
)

// DefaultConfig returns a config.ValidationConfig with production defaults.
// Weights sum to 100.
func DefaultConfig() config.ValidationConfig {
	return config.ValidationConfig{
		// Deal count thresholds. Below the minimum usually means the
		// extractor missed part of the page; above the maximum usually
		// means duplicates or a multi-page scan.
		MinDealsPerPage: 8,
		MaxDealsPerPage: 60,
		OptimalDealsMin: 15,
		OptimalDealsMax: 35,

		// Data quality thresholds.
		MinSKUCoveragePct: 20,
		MinPrice:          0.10,  // cards, candy
		MaxPrice:          10000, // appliances can be high
		MaxPriceOutlierRate:      0.15,
		MaxCategoryConcentration: 0.85,
		MaxDuplicateRate:         0.05,

		// Decision thresholds.
		ExcellentThreshold: 85,
		GoodThreshold:      70,
		RetryThreshold:     50,

		// Weights (sum = 100).
		DealCountWeight:      25,
		RequiredFieldsWeight: 30,
		PriceQualityWeight:   15,
		CategoryWeight:       15,
		CompletenessWeight:   10,
		DuplicateWeight:      5,

		// Deductions.
		DeductPerMissingDeal:  3,
		DeductPerExcessDeal:   2,
		DeductPerMissingField: 10,
		DeductPerOutlier:      2,
		DeductForBias:         20,
		DeductForLowSKU:       5,
		DeductPerDuplicate:    1,
	}
}

// LoadRules overlays values from a standalone YAML rules file onto cfg.
// Keys absent from the file keep their current values.
func LoadRules(path string, cfg *config.ValidationConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "validate: read rules file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return eris.Wrapf(err, "validate: parse rules file %s", path)
	}
	return nil
}

// WeightSum returns the sum of all criterion weights.
func WeightSum(c config.ValidationConfig) int {
	return c.DealCountWeight + c.RequiredFieldsWeight + c.PriceQualityWeight +
		c.CategoryWeight + c.CompletenessWeight + c.DuplicateWeight
}

// ValidateConfig checks that a ValidationConfig is internally consistent.
func ValidateConfig(c config.ValidationConfig) error {
	var errs []string

	weights := map[string]int{
		"deal_count_weight":      c.DealCountWeight,
		"required_fields_weight": c.RequiredFieldsWeight,
		"price_quality_weight":   c.PriceQualityWeight,
		"category_weight":        c.CategoryWeight,
		"completeness_weight":    c.CompletenessWeight,
		"duplicate_weight":       c.DuplicateWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	if sum := WeightSum(c); sum != 100 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %d", sum))
	}

	if c.MinDealsPerPage < 0 || c.MaxDealsPerPage < c.MinDealsPerPage {
		errs = append(errs, "deal count range is inverted")
	}
	if c.OptimalDealsMin < c.MinDealsPerPage || c.OptimalDealsMax > c.MaxDealsPerPage {
		errs = append(errs, "optimal range must sit inside [min, max] deals per page")
	}
	if c.MinPrice < 0 || c.MaxPrice < c.MinPrice {
		errs = append(errs, "price band is inverted")
	}
	for name, rate := range map[string]float64{
		"max_category_concentration": c.MaxCategoryConcentration,
		"max_duplicate_rate":         c.MaxDuplicateRate,
		"max_price_outlier_rate":     c.MaxPriceOutlierRate,
	} {
		if rate < 0 || rate > 1 {
			errs = append(errs, fmt.Sprintf("%s must be in [0,1]", name))
		}
	}
	if c.ExcellentThreshold < c.GoodThreshold || c.GoodThreshold < c.RetryThreshold {
		errs = append(errs, "decision thresholds must be ordered excellent >= good >= retry")
	}

	if len(errs) > 0 {
		return eris.Errorf("validate: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
