package validate

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/dealzen/deals-cli/internal/config"
	"github.com/dealzen/deals-cli/internal/model"
)

// Decision is the automated ingestion-gate outcome for a batch.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionRetry  Decision = "RETRY"
	DecisionReject Decision = "REJECT"
)

// Report is the result of validating one extraction batch. It is created
// fresh per call and never mutated after return.
type Report struct {
	Score     int            `json:"score"`
	Decision  Decision       `json:"decision"`
	Reason    string         `json:"reason"`
	Errors    []string       `json:"errors"`
	Warnings  []string       `json:"warnings"`
	Info      map[string]any `json:"info"`
	Breakdown map[string]int `json:"breakdown"`
}

// maxFieldErrors caps per-deal missing-field messages for readability.
// The full missing count still affects the score and is reported separately.
const maxFieldErrors = 5

// maxOutlierWarnings caps per-deal price outlier warnings.
const maxOutlierWarnings = 3

// Validator scores extraction batches against the configured quality gate.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	cfg config.ValidationConfig
}

// New creates a Validator. A zero-value config falls back to DefaultConfig.
func New(cfg config.ValidationConfig) *Validator {
	if WeightSum(cfg) == 0 {
		cfg = DefaultConfig()
	}
	return &Validator{cfg: cfg}
}

// run accumulates the working state of a single validation pass.
type run struct {
	errors    []string
	warnings  []string
	info      map[string]any
	breakdown map[string]int
}

// ValidateFile loads a deals JSON file and validates it. File and parse
// failures are reported conditions, not faults: they yield a rejected
// report with score zero.
func (v *Validator) ValidateFile(path string) *Report {
	data, err := os.ReadFile(path)
	if err != nil {
		return rejectedLoad(fmt.Sprintf("Deals file not found: %s", path))
	}
	deals, err := model.ParseBatch(data)
	if err != nil {
		return rejectedLoad(fmt.Sprintf("Invalid JSON: %s", err))
	}
	return v.Validate(deals)
}

func rejectedLoad(msg string) *Report {
	return &Report{
		Score:     0,
		Decision:  DecisionReject,
		Reason:    "Failed to load deals file",
		Errors:    []string{msg},
		Warnings:  []string{},
		Info:      map[string]any{},
		Breakdown: map[string]int{},
	}
}

// Validate scores a batch across the six weighted criteria and issues the
// automated decision. Critical errors force a reject regardless of score.
func (v *Validator) Validate(deals []model.Deal) *Report {
	r := &run{
		info:      map[string]any{},
		breakdown: map[string]int{},
	}

	var score int
	if len(deals) == 0 {
		r.errors = append(r.errors, "CRITICAL: Zero deals extracted")
		r.breakdown["deal_count"] = 0
	} else {
		score += v.scoreDealCount(r, deals)
		score += v.scoreRequiredFields(r, deals)
		score += v.scorePriceQuality(r, deals)
		score += v.scoreCategoryDiversity(r, deals)
		score += v.scoreDataCompleteness(r, deals)
		score += v.scoreDuplicates(r, deals)
		v.collectStats(r, deals)
	}

	// Defensive clamp against bonus overshoot.
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	decision, reason := v.decide(score, r.errors)

	switch {
	case decision == DecisionAccept && score >= v.cfg.ExcellentThreshold:
		zap.L().Debug("validate: batch accepted",
			zap.Int("score", score),
			zap.Int("deals", len(deals)),
		)
	case decision == DecisionAccept:
		zap.L().Info("validate: batch accepted for audit",
			zap.Int("score", score),
			zap.Int("deals", len(deals)),
			zap.Int("warnings", len(r.warnings)),
		)
	case decision == DecisionRetry:
		zap.L().Warn("validate: batch flagged for retry",
			zap.Int("score", score),
			zap.Int("deals", len(deals)),
		)
	default:
		zap.L().Warn("validate: batch rejected",
			zap.Int("score", score),
			zap.Int("deals", len(deals)),
			zap.Int("errors", len(r.errors)),
		)
	}

	return &Report{
		Score:     score,
		Decision:  decision,
		Reason:    reason,
		Errors:    r.errors,
		Warnings:  r.warnings,
		Info:      r.info,
		Breakdown: r.breakdown,
	}
}

// decide maps score and error state to the automated decision. Critical
// errors are absolute: the numeric score only discriminates among batches
// with a clean error list.
func (v *Validator) decide(score int, errors []string) (Decision, string) {
	if len(errors) > 0 {
		return DecisionReject, fmt.Sprintf("Critical errors found: %d", len(errors))
	}
	if score >= v.cfg.ExcellentThreshold {
		return DecisionAccept, fmt.Sprintf("Excellent quality (score: %d)", score)
	}
	if score >= v.cfg.GoodThreshold {
		return DecisionAccept, fmt.Sprintf("Good quality (score: %d)", score)
	}
	if score >= v.cfg.RetryThreshold {
		return DecisionRetry, fmt.Sprintf("Borderline quality (score: %d) - suggest retry", score)
	}
	return DecisionReject, fmt.Sprintf("Poor quality (score: %d)", score)
}

func (v *Validator) scoreDealCount(r *run, deals []model.Deal) int {
	count := len(deals)
	weight := v.cfg.DealCountWeight

	var pts int
	switch {
	case count >= v.cfg.OptimalDealsMin && count <= v.cfg.OptimalDealsMax:
		pts = weight
	case count < v.cfg.MinDealsPerPage:
		deduction := (v.cfg.MinDealsPerPage - count) * v.cfg.DeductPerMissingDeal
		r.warnings = append(r.warnings, fmt.Sprintf(
			"Low deal count: %d (expected %d-%d)", count, v.cfg.OptimalDealsMin, v.cfg.OptimalDealsMax))
		pts = max(0, weight-deduction)
	case count > v.cfg.MaxDealsPerPage:
		deduction := (count - v.cfg.MaxDealsPerPage) * v.cfg.DeductPerExcessDeal
		r.warnings = append(r.warnings, fmt.Sprintf(
			"Very high deal count: %d (check for duplicates)", count))
		pts = max(0, weight-deduction)
	default:
		// Between the minimum and the optimal range.
		pts = weight - 5
	}

	r.breakdown["deal_count"] = pts
	return pts
}

func (v *Validator) scoreRequiredFields(r *run, deals []model.Deal) int {
	weight := v.cfg.RequiredFieldsWeight

	missingTotal := 0
	emitted := 0
	for i := range deals {
		missing := deals[i].MissingCriticalFields()
		if len(missing) == 0 {
			continue
		}
		missingTotal += len(missing)
		if emitted < maxFieldErrors {
			r.errors = append(r.errors, fmt.Sprintf(
				"Deal #%d: Missing required fields: %s", i+1, strings.Join(missing, ", ")))
			emitted++
		}
	}

	if missingTotal > 0 {
		r.errors = append(r.errors, fmt.Sprintf("Total missing required fields: %d", missingTotal))
	}

	pts := max(0, weight-missingTotal*v.cfg.DeductPerMissingField)
	r.breakdown["required_fields"] = pts
	return pts
}

func (v *Validator) scorePriceQuality(r *run, deals []model.Deal) int {
	weight := v.cfg.PriceQualityWeight

	priced := 0
	outliers := 0
	for i := range deals {
		if deals[i].Price == nil {
			continue
		}
		priced++
		price := *deals[i].Price
		if price >= v.cfg.MinPrice && price <= v.cfg.MaxPrice {
			continue
		}
		outliers++
		if outliers <= maxOutlierWarnings {
			name := deals[i].ProductName
			if name == "" {
				name = "Unknown"
			}
			kind := "Very low"
			if price > v.cfg.MaxPrice {
				kind = "Very high"
			}
			r.warnings = append(r.warnings, fmt.Sprintf(
				"Deal #%d (%s): %s price $%v", i+1, name, kind, price))
		}
	}

	// No numeric prices at all exempts this criterion.
	if priced == 0 {
		r.breakdown["price_quality"] = weight
		return weight
	}

	var pts int
	outlierRate := float64(outliers) / float64(priced)
	if outlierRate > v.cfg.MaxPriceOutlierRate {
		deduction := int((outlierRate - v.cfg.MaxPriceOutlierRate) * 100)
		pts = max(0, weight-deduction)
	} else {
		pts = max(0, weight-outliers*v.cfg.DeductPerOutlier)
	}

	r.breakdown["price_quality"] = pts
	return pts
}

func (v *Validator) scoreCategoryDiversity(r *run, deals []model.Deal) int {
	weight := v.cfg.CategoryWeight

	counts := map[string]int{}
	for i := range deals {
		counts[deals[i].TopCategory()]++
	}

	topCategory, topCount := "", 0
	for cat, n := range counts {
		if n > topCount {
			topCategory, topCount = cat, n
		}
	}

	concentration := float64(topCount) / float64(len(deals))
	var pts int
	if concentration > v.cfg.MaxCategoryConcentration {
		r.errors = append(r.errors, fmt.Sprintf(
			"Extraction bias: %.0f%% of deals in '%s' (likely missed other categories)",
			concentration*100, topCategory))
		pts = max(0, weight-v.cfg.DeductForBias)
	} else {
		// More diverse = better score, bonus capped at the weight.
		bonus := min(len(counts)-1, 5)
		pts = min(weight, weight-5+bonus)
	}

	r.breakdown["category_diversity"] = pts
	return pts
}

func (v *Validator) scoreDataCompleteness(r *run, deals []model.Deal) int {
	weight := v.cfg.CompletenessWeight

	withSKU := 0
	for i := range deals {
		if deals[i].SKU != nil && strings.TrimSpace(*deals[i].SKU) != "" {
			withSKU++
		}
	}
	coverage := float64(withSKU) / float64(len(deals)) * 100
	r.info["sku_coverage"] = fmt.Sprintf("%.1f%%", coverage)

	pts := weight
	if coverage < v.cfg.MinSKUCoveragePct {
		r.warnings = append(r.warnings, fmt.Sprintf(
			"Low SKU coverage: %.1f%% (optional, not critical)", coverage))
		pts = weight - v.cfg.DeductForLowSKU
	}

	r.breakdown["data_completeness"] = pts
	return pts
}

func (v *Validator) scoreDuplicates(r *run, deals []model.Deal) int {
	weight := v.cfg.DuplicateWeight

	// Unicode case folding so "AirPods" and "AIRPODS" collide.
	folder := cases.Fold()
	counts := map[string]int{}
	for i := range deals {
		name := strings.TrimSpace(deals[i].ProductName)
		if name == "" {
			continue
		}
		counts[folder.String(name)]++
	}

	duplicateNames := 0
	duplicateCount := 0
	for _, n := range counts {
		if n > 1 {
			duplicateNames++
			duplicateCount += n - 1
		}
	}
	duplicateRate := float64(duplicateCount) / float64(len(deals))
	r.info["duplicate_count"] = duplicateCount

	if duplicateRate > v.cfg.MaxDuplicateRate {
		r.errors = append(r.errors, fmt.Sprintf(
			"High duplicate rate: %.1f%% (%d duplicates)", duplicateRate*100, duplicateCount))
		r.breakdown["duplicate_check"] = 0
		return 0
	}

	if duplicateNames > 0 {
		r.warnings = append(r.warnings, fmt.Sprintf(
			"Found %d duplicate product names (may be variants/choices)", duplicateNames))
	}

	pts := max(0, weight-duplicateCount*v.cfg.DeductPerDuplicate)
	r.breakdown["duplicate_check"] = pts
	return pts
}

// collectStats attaches observability statistics to the report.
func (v *Validator) collectStats(r *run, deals []model.Deal) {
	var prices []float64
	for i := range deals {
		if deals[i].Price != nil {
			prices = append(prices, *deals[i].Price)
		}
	}
	if len(prices) > 0 {
		sum, lo, hi := 0.0, prices[0], prices[0]
		for _, p := range prices {
			sum += p
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
		r.info["price_stats"] = map[string]float64{
			"average": math.Round(sum/float64(len(prices))*100) / 100,
			"min":     lo,
			"max":     hi,
		}
	}

	counts := map[string]int{}
	for i := range deals {
		counts[deals[i].TopCategory()]++
	}
	type catCount struct {
		name string
		n    int
	}
	ranked := make([]catCount, 0, len(counts))
	for cat, n := range counts {
		ranked = append(ranked, catCount{cat, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return ranked[i].name < ranked[j].name
	})
	top := map[string]int{}
	for i, c := range ranked {
		if i == 5 {
			break
		}
		top[c.name] = c.n
	}
	r.info["top_categories"] = top
	r.info["total_deals"] = len(deals)
}
