package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealzen/deals-cli/internal/config"
	"github.com/dealzen/deals-cli/internal/model"
)

func testReconcileConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		NoDealsPhrases: []string{
			"couldn't find any deals",
			"couldn't find any specific deals",
			"no deals",
			"not find any deals",
			"don't have any deals",
		},
	}
}

func candidateDeals(n int) []model.Deal {
	deals := make([]model.Deal, 0, n)
	for i := 0; i < n; i++ {
		deals = append(deals, model.Deal{
			ProductName: fmt.Sprintf("Deal %d", i+1),
			Store:       "Best Buy",
		})
	}
	return deals
}

func names(deals []model.Deal) []string {
	out := make([]string, len(deals))
	for i, d := range deals {
		out[i] = d.ProductName
	}
	return out
}

func TestReconcileMarkerFiltering(t *testing.T) {
	candidates := candidateDeals(5)

	answer := "Great TVs on sale today!\nRELEVANT_DEALS: 1, 3"
	display, shown := Reconcile(candidates, answer, testReconcileConfig())

	assert.Equal(t, "Great TVs on sale today!", display)
	assert.Equal(t, []string{"Deal 1", "Deal 3"}, names(shown))
}

func TestReconcilePreservesListedOrder(t *testing.T) {
	candidates := candidateDeals(5)

	_, shown := Reconcile(candidates, "Found a few.\nRELEVANT_DEALS: 4, 1, 2", testReconcileConfig())
	assert.Equal(t, []string{"Deal 4", "Deal 1", "Deal 2"}, names(shown))
}

func TestReconcileSkipsOutOfRange(t *testing.T) {
	candidates := candidateDeals(3)

	_, shown := Reconcile(candidates, "Here you go.\nRELEVANT_DEALS: 2, 9, 3", testReconcileConfig())
	assert.Equal(t, []string{"Deal 2", "Deal 3"}, names(shown))
}

func TestReconcileMarkerAbsent(t *testing.T) {
	candidates := candidateDeals(4)

	answer := "Here are some great deals on headphones."
	display, shown := Reconcile(candidates, answer, testReconcileConfig())

	assert.Equal(t, answer, display)
	assert.Len(t, shown, 4, "no marker means the generator did not opt into filtering")
}

func TestReconcileFailOpenOnUnparseableList(t *testing.T) {
	candidates := candidateDeals(5)

	tests := []struct {
		name   string
		answer string
	}{
		{"words", "Found these.\nRELEVANT_DEALS: one, two"},
		{"garbage", "Found these.\nRELEVANT_DEALS: 1a, $2"},
		{"mixed", "Found these.\nRELEVANT_DEALS: 1, banana, 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, shown := Reconcile(candidates, tt.answer, testReconcileConfig())
			assert.Len(t, shown, len(candidates), "unparseable list must fail open")
		})
	}
}

func TestReconcileNoDealsOverride(t *testing.T) {
	candidates := candidateDeals(5)

	// Contradictory output: a "no deals" phrase plus valid indices.
	answer := "Sorry, I couldn't find any deals.\nRELEVANT_DEALS: 1,2"
	display, shown := Reconcile(candidates, answer, testReconcileConfig())

	assert.Equal(t, "Sorry, I couldn't find any deals.", display)
	assert.Empty(t, shown)
}

func TestReconcileNoDealsPhraseWithoutMarker(t *testing.T) {
	candidates := candidateDeals(5)

	_, shown := Reconcile(candidates, "I'm sorry, there are NO DEALS for that.", testReconcileConfig())
	assert.Empty(t, shown, "phrase matching is case-insensitive")
}

func TestReconcileStrictTrustEmptyList(t *testing.T) {
	candidates := candidateDeals(5)

	// Default policy: a present marker with an empty list shows nothing.
	_, shown := Reconcile(candidates, "These might interest you.\nRELEVANT_DEALS:", testReconcileConfig())
	assert.Empty(t, shown)
}

func TestReconcileConfidenceFloor(t *testing.T) {
	cfg := testReconcileConfig()
	cfg.MinRelevantFraction = 0.3
	cfg.TopFallback = 3

	candidates := candidateDeals(10)

	t.Run("sparse_set_replaced_with_top_n", func(t *testing.T) {
		// 1 of 10 is under the 30% floor.
		_, shown := Reconcile(candidates, "One match.\nRELEVANT_DEALS: 7", cfg)
		assert.Equal(t, []string{"Deal 1", "Deal 2", "Deal 3"}, names(shown))
	})

	t.Run("adequate_set_kept", func(t *testing.T) {
		_, shown := Reconcile(candidates, "Several.\nRELEVANT_DEALS: 2, 5, 6, 9", cfg)
		assert.Equal(t, []string{"Deal 2", "Deal 5", "Deal 6", "Deal 9"}, names(shown))
	})

	t.Run("never_empty_while_candidates_exist", func(t *testing.T) {
		floorCfg := cfg
		floorCfg.TopFallback = 0
		_, shown := Reconcile(candidates, "Hmm.\nRELEVANT_DEALS:", floorCfg)
		assert.NotEmpty(t, shown)
	})

	t.Run("no_deals_phrase_still_wins", func(t *testing.T) {
		_, shown := Reconcile(candidates, "I couldn't find any deals for that.\nRELEVANT_DEALS: 1", cfg)
		assert.Empty(t, shown)
	})
}

func TestReconcileEmptyCandidates(t *testing.T) {
	display, shown := Reconcile(nil, "Nothing retrieved.\nRELEVANT_DEALS: 1, 2", testReconcileConfig())
	assert.Equal(t, "Nothing retrieved.", display)
	assert.Empty(t, shown)
}

func TestReconcileDoesNotMutateCandidates(t *testing.T) {
	candidates := candidateDeals(3)
	_, shown := Reconcile(candidates, "All good.\nRELEVANT_DEALS: 3, 2, 1", testReconcileConfig())
	require.Len(t, shown, 3)
	assert.Equal(t, []string{"Deal 1", "Deal 2", "Deal 3"}, names(candidates))
}
