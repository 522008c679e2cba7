package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies an instrument for display grouping
type Category string

const (
	CategoryGold     Category = "gold"
	CategoryCurrency Category = "currency"
	CategorySilver   Category = "silver"
	CategoryOther    Category = "other"
)

// PriceRecord represents one instrument at one point in time.
// Raw fields come from the upstream feed; calculated fields are the
// shop-facing numbers after margin rules.
type PriceRecord struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Category        Category        `json:"category"`
	RawAlis         decimal.Decimal `json:"rawAlis"`
	RawSatis        decimal.Decimal `json:"rawSatis"`
	CalculatedAlis  decimal.Decimal `json:"calculatedAlis"`
	CalculatedSatis decimal.Decimal `json:"calculatedSatis"`
	IsCustom        bool            `json:"isCustom"`
	IsVisible       bool            `json:"isVisible"`
	Order           int             `json:"order"`
}

// PriceMeta accompanies every broadcast and cached price list
type PriceMeta struct {
	Time time.Time `json:"time"`
}

// HasValidRaw reports whether the upstream numbers are usable.
// Zero or negative quotes are treated as feed garbage and excluded
// from calculation rather than propagated with sentinel values.
func (p *PriceRecord) HasValidRaw() bool {
	return p.RawAlis.IsPositive() && p.RawSatis.IsPositive()
}

// Spread returns (satis - alis) / alis, a display-only derived metric.
// The second return value is false when the spread is undefined.
func (p *PriceRecord) Spread() (decimal.Decimal, bool) {
	if p.CalculatedAlis.IsZero() {
		return decimal.Zero, false
	}
	return p.CalculatedSatis.Sub(p.CalculatedAlis).Div(p.CalculatedAlis), true
}

// SourceView strips a record down to its upstream fields.
// Snapshot rows for raw prices carry only these.
func (p *PriceRecord) SourceView() PriceRecord {
	return PriceRecord{
		Code:      p.Code,
		Name:      p.Name,
		Category:  p.Category,
		RawAlis:   p.RawAlis,
		RawSatis:  p.RawSatis,
		IsVisible: true,
	}
}

// SortRecords orders records for display: Order ascending, ties broken
// by Code ascending.
func SortRecords(records []PriceRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Order != records[j].Order {
			return records[i].Order < records[j].Order
		}
		return records[i].Code < records[j].Code
	})
}

// CloneRecords returns a copy so callers cannot mutate shared state
func CloneRecords(records []PriceRecord) []PriceRecord {
	out := make([]PriceRecord, len(records))
	copy(out, records)
	return out
}

// FilterVisible returns the subset included in viewer-facing lists
func FilterVisible(records []PriceRecord) []PriceRecord {
	out := make([]PriceRecord, 0, len(records))
	for _, r := range records {
		if r.IsVisible {
			out = append(out, r)
		}
	}
	return out
}

// FilterNonCustom returns direct feed passthrough records only
func FilterNonCustom(records []PriceRecord) []PriceRecord {
	out := make([]PriceRecord, 0, len(records))
	for _, r := range records {
		if !r.IsCustom {
			out = append(out, r)
		}
	}
	return out
}

// ClassifyRule maps keyword matches to a category. The keyword lists are
// configuration data, not control flow.
type ClassifyRule struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// DefaultClassifyRules covers the usual Turkish bullion and FX codes
func DefaultClassifyRules() []ClassifyRule {
	return []ClassifyRule{
		{Category: CategorySilver, Keywords: []string{"GUMUS", "SILVER", "XAG"}},
		{Category: CategoryGold, Keywords: []string{"GRAM", "ALTIN", "AYAR", "CEYREK", "YARIM", "TAM", "ATA", "ONS", "XAU", "GOLD", "HAS", "BILEZIK"}},
		{Category: CategoryCurrency, Keywords: []string{"USD", "EUR", "GBP", "CHF", "TRY", "JPY", "SAR", "AUD", "CAD", "RUB", "DOLAR", "EURO", "STERLIN"}},
	}
}

// Classify resolves a category from code and name using the first rule
// with a matching keyword. Unmatched instruments fall through to "other".
func Classify(code, name string, rules []ClassifyRule) Category {
	haystack := strings.ToUpper(code) + " " + strings.ToUpper(name)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(haystack, kw) {
				return rule.Category
			}
		}
	}
	return CategoryOther
}
