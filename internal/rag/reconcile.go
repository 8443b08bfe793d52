// Package rag answers shopper queries over the deal index: hybrid retrieval,
// context assembly, answer generation, and relevance reconciliation.
package rag

import (
	"strconv"
	"strings"

	"github.com/dealzen/deals-cli/internal/config"
	"github.com/dealzen/deals-cli/internal/model"
)

// RelevanceMarker is the literal the generator appends before its
// comma-separated list of 1-based deal numbers.
const RelevanceMarker = "RELEVANT_DEALS:"

// Reconcile computes the final deal set shown to the user from the ranked
// retrieval candidates and the generator's free-text answer. Pure function.
//
// The generator is trusted by default: an answer with the marker and an
// empty index list shows nothing. Setting cfg.MinRelevantFraction > 0
// switches to a confidence floor where an implausibly small relevant set is
// replaced with the top-ranked candidates.
func Reconcile(candidates []model.Deal, answer string, cfg config.ReconcileConfig) (string, []model.Deal) {
	display, indices, hasMarker, parseOK := splitAnswer(answer)

	// A "no deals" phrasing wins over everything, including a non-empty
	// index list. Contradictory generator output must not surface deals.
	lower := strings.ToLower(display)
	for _, phrase := range cfg.NoDealsPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return display, []model.Deal{}
		}
	}

	// Marker absent or list unparseable: fail open, show everything.
	if !hasMarker || !parseOK {
		return display, append([]model.Deal(nil), candidates...)
	}

	shown := make([]model.Deal, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(candidates) {
			shown = append(shown, candidates[idx])
		}
	}

	if cfg.MinRelevantFraction > 0 && len(candidates) > 0 {
		covered := float64(len(shown)) / float64(len(candidates))
		if covered < cfg.MinRelevantFraction {
			shown = topCandidates(candidates, cfg.TopFallback)
		}
		if len(shown) == 0 {
			// Never show nothing while retrieval found something.
			shown = candidates[:1]
		}
	}

	return display, shown
}

// splitAnswer separates the display text from the relevance marker and
// parses the index list to 0-based indices, preserving order. parseOK is
// false when a numeric token is present but cannot be read as an integer.
func splitAnswer(answer string) (display string, indices []int, hasMarker, parseOK bool) {
	pos := strings.Index(answer, RelevanceMarker)
	if pos < 0 {
		return strings.TrimSpace(answer), nil, false, true
	}

	display = strings.TrimSpace(answer[:pos])
	tail := strings.TrimSpace(answer[pos+len(RelevanceMarker):])

	for _, token := range strings.Split(tail, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			// Anything non-numeric in the list voids the filter entirely.
			return display, nil, true, false
		}
		if n > 0 {
			indices = append(indices, n-1)
		}
	}
	return display, indices, true, true
}

func topCandidates(candidates []model.Deal, n int) []model.Deal {
	if n <= 0 || n > len(candidates) {
		n = len(candidates)
	}
	return append([]model.Deal(nil), candidates[:n]...)
}
