package engine

import (
	"github.com/shopspring/decimal"

	"pricepoint/internal/service/discount/domain"
)

// CartEvaluator 在所有行确定后运行一次, 评估整单金额规则与整单数量规则。
type CartEvaluator struct {
	scale int32
}

func NewCartEvaluator(scale int32) *CartEvaluator {
	return &CartEvaluator{scale: scale}
}

// Evaluate 以行折后小计为门槛和百分比基数评估整单金额规则, 以总件数为门槛评估整单数量规则。
// 整单折扣总额不会超过行折后小计。
func (e *CartEvaluator) Evaluate(c *domain.Campaign, lines []domain.LineDiscount) ([]domain.Contribution, bool) {
	net, units := decimal.Zero, decimal.Zero
	for _, l := range lines {
		net = net.Add(l.NetValue)
		units = units.Add(l.Quantity)
	}

	records := []domain.Contribution{}
	add := func(category domain.Category, r *domain.Rule, gate decimal.Decimal) {
		if r == nil || !r.IsEnabled || !r.ConditionMet(gate) {
			return
		}
		amount := kindAmount(*r, net, units).Round(e.scale)
		if !amount.IsPositive() {
			return
		}
		records = append(records, domain.Contribution{
			RuleKey:   ruleKey(domain.TierCart, "", category, *r),
			RuleName:  r.DisplayName(category),
			Category:  category,
			Tier:      domain.TierCart,
			Amount:    amount,
			FixedOnce: r.Type == domain.DiscountTypeFixedAmount && r.ApplyFixedOnce,
		})
	}
	add(domain.CategoryCartPrice, c.CartPriceRule, net)
	add(domain.CategoryCartQuantity, c.CartQuantityRule, units)

	_, capped := clamp(records, net)
	return records, capped
}
