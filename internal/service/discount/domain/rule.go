// internal/service/discount/domain/rule.go
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountType 定义了优惠的计算方式。
type DiscountType string

const (
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT" // 立减
	DiscountTypePercentage  DiscountType = "PERCENTAGE"   // 折扣, amount 为百分比
)

// Category 是规则的类别。每个类别在解析时相互独立。
type Category string

const (
	CategoryValue              Category = "VALUE"
	CategoryQuantity           Category = "QUANTITY"
	CategoryQuantityThreshold  Category = "QUANTITY_THRESHOLD"
	CategoryUnitPriceThreshold Category = "UNIT_PRICE_THRESHOLD"
	CategoryBuyGet             Category = "BUY_GET"
	CategoryCartPrice          Category = "CART_PRICE"
	CategoryCartQuantity       Category = "CART_QUANTITY"
)

// LineCategories 是参与分层解析的行级类别，顺序即评估顺序。
var LineCategories = []Category{
	CategoryValue,
	CategoryQuantity,
	CategoryQuantityThreshold,
	CategoryUnitPriceThreshold,
}

// IsThreshold 阈值类规则必须设置 ConditionMin。
func (c Category) IsThreshold() bool {
	return c == CategoryQuantityThreshold || c == CategoryUnitPriceThreshold
}

// IsLine 报告该类别是否可以出现在 RuleBundle 或收银员手工覆盖中。
func (c Category) IsLine() bool {
	for _, lc := range LineCategories {
		if lc == c {
			return true
		}
	}
	return false
}

// Tier 是规则配置的优先级层级, 从高到低: Custom > Batch > Product > Default > Cart。
type Tier string

const (
	TierCustom   Tier = "CUSTOM"
	TierBatch    Tier = "BATCH"
	TierProduct  Tier = "PRODUCT"
	TierDefault  Tier = "DEFAULT"
	TierCampaign Tier = "CAMPAIGN" // 买N送M, 活动范围扫描, 不分层
	TierCart     Tier = "CART"
)

// Rule 是任意类别的一条折扣规则。
type Rule struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	IsEnabled bool            `json:"is_enabled"`
	Type      DiscountType    `json:"type"`
	Amount    decimal.Decimal `json:"amount"`

	// ConditionMin 为空表示无条件。阈值类规则必填。
	ConditionMin decimal.NullDecimal `json:"condition_min"`

	// ApplyFixedOnce 仅对 FIXED_AMOUNT 有意义: true 时每行只计一次, 与数量无关。
	ApplyFixedOnce bool `json:"apply_fixed_once,omitempty"`
}

// ConditionMet 报告 observed 是否满足 ConditionMin。未设置条件时总是满足。
func (r Rule) ConditionMet(observed decimal.Decimal) bool {
	if !r.ConditionMin.Valid {
		return true
	}
	return observed.GreaterThanOrEqual(r.ConditionMin.Decimal)
}

// DisplayName 在规则未命名时给出一个可读的名字，用于小票和审计。
func (r Rule) DisplayName(category Category) string {
	if r.Name != "" {
		return r.Name
	}
	if r.ID != "" {
		return r.ID
	}
	return fmt.Sprintf("%s %s", category, r.Type)
}

// RuleBundle 是一个作用域 (商品、批次或活动默认) 下各类别的规则槽位。
type RuleBundle struct {
	Value              *Rule `json:"value,omitempty"`
	Quantity           *Rule `json:"quantity,omitempty"`
	QuantityThreshold  *Rule `json:"quantity_threshold,omitempty"`
	UnitPriceThreshold *Rule `json:"unit_price_threshold,omitempty"`
}

// Get 返回指定类别的规则槽位, 没有时为 nil。
func (b RuleBundle) Get(c Category) *Rule {
	switch c {
	case CategoryValue:
		return b.Value
	case CategoryQuantity:
		return b.Quantity
	case CategoryQuantityThreshold:
		return b.QuantityThreshold
	case CategoryUnitPriceThreshold:
		return b.UnitPriceThreshold
	}
	return nil
}

// Set 写入指定类别的槽位。非行级类别会被忽略。
func (b *RuleBundle) Set(c Category, r *Rule) {
	switch c {
	case CategoryValue:
		b.Value = r
	case CategoryQuantity:
		b.Quantity = r
	case CategoryQuantityThreshold:
		b.QuantityThreshold = r
	case CategoryUnitPriceThreshold:
		b.UnitPriceThreshold = r
	}
}

// EnabledRule 返回该类别下已启用的规则。
func (b RuleBundle) EnabledRule(c Category) (Rule, bool) {
	r := b.Get(c)
	if r == nil || !r.IsEnabled {
		return Rule{}, false
	}
	return *r, true
}

// BuyGetRule 买N送M: 每凑满 BuyQuantity 件付费加 GetQuantity 件奖励, 奖励件按 Type/Amount 优惠。
// PERCENTAGE 100 即为免费。
type BuyGetRule struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	IsEnabled   bool            `json:"is_enabled"`
	ProductID   string          `json:"product_id"`
	BuyQuantity decimal.Decimal `json:"buy_quantity"`
	GetQuantity decimal.Decimal `json:"get_quantity"`
	Type        DiscountType    `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
}

// DisplayName 同 Rule.DisplayName。
func (r BuyGetRule) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	if r.ID != "" {
		return r.ID
	}
	return fmt.Sprintf("buy %s get %s on %s", r.BuyQuantity, r.GetQuantity, r.ProductID)
}
