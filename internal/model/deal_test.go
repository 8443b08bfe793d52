package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestMissingCriticalFields(t *testing.T) {
	tests := []struct {
		name string
		deal Deal
		want []string
	}{
		{
			"complete",
			Deal{ProductName: "Sony Bravia 55", Price: ptr(499.99), Store: "Best Buy"},
			nil,
		},
		{
			"all_missing",
			Deal{},
			[]string{"product_name", "price", "store"},
		},
		{
			"whitespace_name",
			Deal{ProductName: "   ", Price: ptr(499.99), Store: "Best Buy"},
			[]string{"product_name"},
		},
		{
			"nil_price",
			Deal{ProductName: "Sony Bravia 55", Store: "Best Buy"},
			[]string{"price"},
		},
		{
			"zero_price_is_present",
			Deal{ProductName: "Freebie", Price: ptr(0.0), Store: "Best Buy"},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.deal.MissingCriticalFields())
		})
	}
}

func TestTopCategory(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"Electronics > Televisions > QLED TVs", "Electronics"},
		{"Electronics", "Electronics"},
		{"", "Unknown"},
		{"   ", "Unknown"},
	}
	for _, tt := range tests {
		d := Deal{ProductCategory: tt.category}
		assert.Equal(t, tt.want, d.TopCategory(), "category %q", tt.category)
	}
}

func TestVectorText(t *testing.T) {
	d := Deal{
		ProductName:     "Sony Bravia 55",
		ProductCategory: "Electronics > Televisions",
		Store:           "Best Buy",
		DealType:        "Door Crasher",
		Attributes:      []string{"OLED", "55-inch"},
		DealConditions:  []string{"Limit 1 per customer"},
	}

	text := d.VectorText()
	assert.Equal(t,
		"Product: Sony Bravia 55. Category: Electronics > Televisions. Store: Best Buy. "+
			"Type of Deal: Door Crasher. Features: OLED, 55-inch. Conditions: Limit 1 per customer.",
		text)
}

func TestParseBatch(t *testing.T) {
	data := []byte(`[
		{
			"product_name": "Samsung 55\" QLED TV",
			"sku": "QN55Q80C",
			"product_category": "Electronics > Televisions",
			"price": 499.99,
			"original_price": 799.99,
			"store": "Best Buy",
			"valid_from": "2025-11-27T08:00:00",
			"valid_to": null,
			"deal_type": "Black Friday Door Crasher",
			"in_store_only": true,
			"deal_conditions": ["Limit 1 per customer"],
			"attributes": ["QLED", "55-inch"]
		},
		{"product_name": "Mystery Box", "sku": null, "price": 9.99, "store": "Walmart"}
	]`)

	deals, err := ParseBatch(data)
	require.NoError(t, err)
	require.Len(t, deals, 2)

	first := deals[0]
	assert.Equal(t, `Samsung 55" QLED TV`, first.ProductName)
	require.NotNil(t, first.SKU)
	assert.Equal(t, "QN55Q80C", *first.SKU)
	require.NotNil(t, first.Price)
	assert.InDelta(t, 499.99, *first.Price, 1e-9)
	require.NotNil(t, first.OriginalPrice)
	assert.True(t, first.InStoreOnly)
	assert.Nil(t, first.ValidTo)
	assert.Equal(t, []string{"QLED", "55-inch"}, first.Attributes)

	second := deals[1]
	assert.Nil(t, second.SKU)
	assert.False(t, second.InStoreOnly)
}

func TestParseBatchRejectsNonArray(t *testing.T) {
	_, err := ParseBatch([]byte(`{"product_name": "not a list"}`))
	require.Error(t, err)

	_, err = ParseBatch([]byte(`not json at all`))
	require.Error(t, err)
}
