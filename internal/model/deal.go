// Package model defines the deal record shared across extraction,
// validation, ingestion, and the query pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CriticalFields are the fields whose absence always blocks ingestion.
var CriticalFields = []string{"product_name", "price", "store"}

// Deal is one candidate deal parsed from a flyer image. It is produced by
// the vision extractor and must be treated as untrusted until validated.
type Deal struct {
	ProductName      string   `json:"product_name"`
	SKU              *string  `json:"sku"`
	ProductCategory  string   `json:"product_category"`
	Price            *float64 `json:"price"`
	OriginalPrice    *float64 `json:"original_price"`
	Store            string   `json:"store"`
	ValidFrom        *string  `json:"valid_from"`
	ValidTo          *string  `json:"valid_to"`
	DealType         string   `json:"deal_type"`
	InStoreOnly      bool     `json:"in_store_only"`
	DealConditions   []string `json:"deal_conditions"`
	BundleDeal       bool     `json:"bundle_deal"`
	RequiredPurchase *string  `json:"required_purchase"`
	FreeItem         *string  `json:"free_item"`
	Attributes       []string `json:"attributes"`
}

// categoryDelimiter separates segments of a hierarchical category,
// e.g. "Electronics > Televisions > QLED TVs".
const categoryDelimiter = " > "

// MissingCriticalFields returns the names of required fields this deal
// lacks, in the canonical order of CriticalFields.
func (d *Deal) MissingCriticalFields() []string {
	var missing []string
	if strings.TrimSpace(d.ProductName) == "" {
		missing = append(missing, "product_name")
	}
	if d.Price == nil {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(d.Store) == "" {
		missing = append(missing, "store")
	}
	return missing
}

// TopCategory returns the first segment of the hierarchical category, or
// "Unknown" when no category was extracted. This is the grouping key for
// diversity scoring.
func (d *Deal) TopCategory() string {
	cat := strings.TrimSpace(d.ProductCategory)
	if cat == "" {
		return "Unknown"
	}
	if idx := strings.Index(cat, categoryDelimiter); idx >= 0 {
		return cat[:idx]
	}
	return cat
}

// VectorText builds the derived search text used for semantic vectorization.
// It is indexed but never persisted back onto the record.
func (d *Deal) VectorText() string {
	attrs := strings.Join(d.Attributes, ", ")
	conditions := strings.Join(d.DealConditions, ", ")
	return fmt.Sprintf(
		"Product: %s. Category: %s. Store: %s. Type of Deal: %s. Features: %s. Conditions: %s.",
		d.ProductName, d.ProductCategory, d.Store, d.DealType, attrs, conditions,
	)
}

// ParseBatch decodes a JSON array of deals. Anything that is not a valid
// array of deal objects is an error; callers map that to a rejected batch
// rather than a fault.
func ParseBatch(data []byte) ([]Deal, error) {
	var deals []Deal
	if err := json.Unmarshal(data, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}
