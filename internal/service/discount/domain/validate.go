package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validate 在评估开始前校验活动配置。返回 *ConfigurationError 或 nil。
// 重复的作用域键不在此处报错: 评估时按"最后定义者胜出"处理并记录告警。
func (c *Campaign) Validate() error {
	errs := &ConfigurationError{}

	if !c.ValidFrom.IsZero() && !c.ValidTo.IsZero() && c.ValidTo.Before(c.ValidFrom) {
		errs.Add("valid_to", "must not be before valid_from")
	}

	validateBundle(errs, "defaults", c.Defaults)
	for i, cfg := range c.ProductConfigurations {
		path := fmt.Sprintf("product_configurations[%d]", i)
		if strings.TrimSpace(cfg.ScopeKey) == "" {
			errs.Add(path+".scope_key", "product id is required")
		}
		validateBundle(errs, path+".rules", cfg.Rules)
	}
	for i, cfg := range c.BatchConfigurations {
		path := fmt.Sprintf("batch_configurations[%d]", i)
		if strings.TrimSpace(cfg.ScopeKey) == "" {
			errs.Add(path+".scope_key", "batch id is required")
		}
		validateBundle(errs, path+".rules", cfg.Rules)
	}
	for i, r := range c.BuyGetRules {
		validateBuyGet(errs, fmt.Sprintf("buy_get_rules[%d]", i), r)
	}
	if c.CartPriceRule != nil {
		validateRule(errs, "cart_price_rule", CategoryCartPrice, *c.CartPriceRule)
	}
	if c.CartQuantityRule != nil {
		validateRule(errs, "cart_quantity_rule", CategoryCartQuantity, *c.CartQuantityRule)
	}
	return errs.OrNil()
}

// Validate 校验购物车输入, 包括收银员手工覆盖。
func (c *Cart) Validate() error {
	errs := &ConfigurationError{}
	for i, l := range c.Lines {
		path := fmt.Sprintf("cart.lines[%d]", i)
		if strings.TrimSpace(l.ProductID) == "" {
			errs.Add(path+".product_id", "is required")
		}
		if l.Quantity.IsNegative() {
			errs.Add(path+".quantity", "must not be negative, got %s", l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			errs.Add(path+".unit_price", "must not be negative, got %s", l.UnitPrice)
		}
		seen := make(map[Category]bool, len(l.Overrides))
		for j, o := range l.Overrides {
			opath := fmt.Sprintf("%s.overrides[%d]", path, j)
			if !o.Category.IsLine() {
				errs.Add(opath+".category", "unsupported override category %q", o.Category)
				continue
			}
			if seen[o.Category] {
				errs.Add(opath+".category", "duplicate override for %s", o.Category)
			}
			seen[o.Category] = true
			validateRule(errs, opath+".rule", o.Category, o.Rule)
		}
	}
	return errs.OrNil()
}

func validateBundle(errs *ConfigurationError, path string, b RuleBundle) {
	for _, c := range LineCategories {
		if r := b.Get(c); r != nil {
			validateRule(errs, path+"."+strings.ToLower(string(c)), c, *r)
		}
	}
}

func validateRule(errs *ConfigurationError, path string, category Category, r Rule) {
	validateAmount(errs, path, r.Type, r.Amount)
	switch {
	case r.ConditionMin.Valid && !r.ConditionMin.Decimal.IsPositive():
		errs.Add(path+".condition_min", "threshold must be greater than 0, got %s", r.ConditionMin.Decimal)
	case category.IsThreshold() && !r.ConditionMin.Valid:
		errs.Add(path+".condition_min", "is required for %s rules", category)
	}
}

func validateBuyGet(errs *ConfigurationError, path string, r BuyGetRule) {
	if strings.TrimSpace(r.ProductID) == "" {
		errs.Add(path+".product_id", "is required")
	}
	if !r.BuyQuantity.IsPositive() {
		errs.Add(path+".buy_quantity", "must be greater than 0, got %s", r.BuyQuantity)
	}
	if !r.GetQuantity.IsPositive() {
		errs.Add(path+".get_quantity", "must be greater than 0, got %s", r.GetQuantity)
	}
	validateAmount(errs, path, r.Type, r.Amount)
}

func validateAmount(errs *ConfigurationError, path string, t DiscountType, amount decimal.Decimal) {
	switch t {
	case DiscountTypeFixedAmount, DiscountTypePercentage:
	default:
		errs.Add(path+".type", "unknown discount type %q", t)
	}
	if amount.IsNegative() {
		errs.Add(path+".amount", "must not be negative, got %s", amount)
	}
	if t == DiscountTypePercentage && amount.GreaterThan(hundred) {
		errs.Add(path+".amount", "percentage must not exceed 100, got %s", amount)
	}
}
