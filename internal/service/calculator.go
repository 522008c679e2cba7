package service

import (
	"log/slog"

	"sarraf_go/internal/domain"

	"github.com/shopspring/decimal"
)

// PriceCalculator transforms raw source prices into shop-facing prices:
// margin rules, two-decimal rounding, bid/ask clamping, category tagging
// and synthesis of shop-defined composite products.
type PriceCalculator struct {
	classifyRules []domain.ClassifyRule
}

// NewPriceCalculator creates a calculator with the given classification rules
func NewPriceCalculator(classifyRules []domain.ClassifyRule) *PriceCalculator {
	if len(classifyRules) == 0 {
		classifyRules = domain.DefaultClassifyRules()
	}
	return &PriceCalculator{classifyRules: classifyRules}
}

// Compute applies the rule set to each raw instrument and appends the
// configured custom products. Records failing validation are excluded
// from the output rather than propagated with sentinel values; an
// all-invalid input yields an empty (not nil) slice and it is the
// caller's job to treat that as a reportable condition.
func (c *PriceCalculator) Compute(raw []domain.PriceRecord, rules domain.MarginRuleSet) []domain.PriceRecord {
	out := make([]domain.PriceRecord, 0, len(raw)+len(rules.Custom))
	baseline := make(map[string]domain.PriceRecord, len(raw))

	for i, r := range raw {
		if !r.HasValidRaw() {
			slog.Debug("Excluding invalid raw record",
				slog.String("code", r.Code),
				slog.String("alis", r.RawAlis.String()),
				slog.String("satis", r.RawSatis.String()),
			)
			continue
		}

		rule := rules.RuleFor(r.Code)
		alis, satis := rule.Apply(r.RawAlis, r.RawSatis)
		alis, satis = normalizeQuote(alis, satis)

		rec := domain.PriceRecord{
			Code:            r.Code,
			Name:            r.Name,
			Category:        c.categoryFor(r),
			RawAlis:         r.RawAlis,
			RawSatis:        r.RawSatis,
			CalculatedAlis:  alis,
			CalculatedSatis: satis,
			IsVisible:       !rule.Hidden,
			Order:           displayOrder(rule, i),
		}
		out = append(out, rec)
		baseline[rec.Code] = rec
	}

	out = append(out, c.computeCustom(rules, baseline, len(raw))...)

	domain.SortRecords(out)
	return out
}

// computeCustom synthesizes composite products from their base codes.
// A product whose base is missing this cycle is withheld rather than
// emitted with stale numbers.
func (c *PriceCalculator) computeCustom(rules domain.MarginRuleSet, baseline map[string]domain.PriceRecord, offset int) []domain.PriceRecord {
	out := make([]domain.PriceRecord, 0, len(rules.Custom))
	for i, cp := range rules.Custom {
		base, ok := baseline[cp.BaseCode]
		if !ok {
			slog.Debug("Withholding custom product, base missing",
				slog.String("code", cp.Code),
				slog.String("base", cp.BaseCode),
			)
			continue
		}

		alis, satis := cp.Margin.Apply(
			base.RawAlis.Mul(cp.Multiplier),
			base.RawSatis.Mul(cp.Multiplier),
		)
		alis, satis = normalizeQuote(alis, satis)

		out = append(out, domain.PriceRecord{
			Code:            cp.Code,
			Name:            cp.Name,
			Category:        domain.Classify(cp.Code, cp.Name, c.classifyRules),
			CalculatedAlis:  alis,
			CalculatedSatis: satis,
			IsCustom:        true,
			IsVisible:       !cp.Margin.Hidden,
			Order:           displayOrder(cp.Margin, offset+i),
		})
	}
	return out
}

func (c *PriceCalculator) categoryFor(r domain.PriceRecord) domain.Category {
	if r.Category != "" {
		return r.Category
	}
	return domain.Classify(r.Code, r.Name, c.classifyRules)
}

// normalizeQuote rounds to currency precision and enforces the
// calculatedSatis >= calculatedAlis >= 0 invariant.
func normalizeQuote(alis, satis decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	alis = alis.Round(2)
	satis = satis.Round(2)
	if alis.IsNegative() {
		alis = decimal.Zero
	}
	if satis.LessThan(alis) {
		satis = alis
	}
	return alis, satis
}

// displayOrder prefers the configured order; unconfigured records keep
// their feed position, shifted past the configured range.
func displayOrder(rule domain.MarginRule, position int) int {
	if rule.Order != 0 {
		return rule.Order
	}
	return 1000 + position
}
