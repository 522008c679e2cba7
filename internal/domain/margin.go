package domain

import "github.com/shopspring/decimal"

// MarginRule adjusts a raw quote into a shop-facing quote.
// The percent margins are applied first, then the absolute ones.
// Hidden inverts the default so the yaml zero value means "visible".
type MarginRule struct {
	AlisMarginPct  decimal.Decimal `yaml:"alis_margin_pct"`
	SatisMarginPct decimal.Decimal `yaml:"satis_margin_pct"`
	AlisMarginAbs  decimal.Decimal `yaml:"alis_margin_abs"`
	SatisMarginAbs decimal.Decimal `yaml:"satis_margin_abs"`
	Order          int             `yaml:"order"`
	Hidden         bool            `yaml:"hidden"`
}

// Apply produces the margin-adjusted bid/ask pair, before rounding and
// clamping (the calculator owns those).
func (r MarginRule) Apply(rawAlis, rawSatis decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	alis := rawAlis.Mul(hundred.Add(r.AlisMarginPct)).Div(hundred).Add(r.AlisMarginAbs)
	satis := rawSatis.Mul(hundred.Add(r.SatisMarginPct)).Div(hundred).Add(r.SatisMarginAbs)
	return alis, satis
}

// CustomProduct defines a shop composite instrument derived from a base
// feed code, e.g. a 22-carat gram quoted as a multiple of the 24-carat one.
// When the base code is missing from a cycle the product is withheld.
type CustomProduct struct {
	Code       string          `yaml:"code"`
	Name       string          `yaml:"name"`
	BaseCode   string          `yaml:"base_code"`
	Multiplier decimal.Decimal `yaml:"multiplier"`
	Margin     MarginRule      `yaml:"margin"`
}

// MarginRuleSet is the shop owner's full pricing configuration.
// Rule content is external configuration; only the mechanism is fixed.
type MarginRuleSet struct {
	Default MarginRule            `yaml:"default"`
	Rules   map[string]MarginRule `yaml:"rules"`
	Custom  []CustomProduct       `yaml:"custom"`
}

// RuleFor returns the per-code rule, falling back to the default
func (s *MarginRuleSet) RuleFor(code string) MarginRule {
	if rule, ok := s.Rules[code]; ok {
		return rule
	}
	return s.Default
}
