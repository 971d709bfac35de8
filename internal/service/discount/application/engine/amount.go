package engine

import (
	"github.com/shopspring/decimal"

	"pricepoint/internal/service/discount/domain"
)

var hundred = decimal.NewFromInt(100)

// kindAmount 按规则类型计算折扣:
// 固定金额且只计一次 -> amount; 固定金额按件 -> amount × units; 百分比 -> base × amount / 100。
// 行级规则的 base 是整行金额, 百分比永远作用于整行而不是单件。
func kindAmount(r domain.Rule, base, units decimal.Decimal) decimal.Decimal {
	switch r.Type {
	case domain.DiscountTypeFixedAmount:
		if r.ApplyFixedOnce {
			return r.Amount
		}
		return r.Amount.Mul(units)
	case domain.DiscountTypePercentage:
		return base.Mul(r.Amount).Div(hundred)
	}
	return decimal.Zero
}

// observed 返回类别门槛所比较的量。
func observed(category domain.Category, line domain.LineItem) decimal.Decimal {
	switch category {
	case domain.CategoryValue:
		return line.Value()
	case domain.CategoryQuantity, domain.CategoryQuantityThreshold:
		return line.Quantity
	case domain.CategoryUnitPriceThreshold:
		return line.UnitPrice
	}
	return decimal.Zero
}

func sumAmounts(contribs []domain.Contribution) decimal.Decimal {
	total := decimal.Zero
	for _, c := range contribs {
		total = total.Add(c.Amount)
	}
	return total
}

// clamp 把贡献总额限制在 ceiling 以内, 从最后一条贡献开始削减。
func clamp(contribs []domain.Contribution, ceiling decimal.Decimal) (decimal.Decimal, bool) {
	if ceiling.IsNegative() {
		ceiling = decimal.Zero
	}
	total := sumAmounts(contribs)
	if total.LessThanOrEqual(ceiling) {
		return total, false
	}

	excess := total.Sub(ceiling)
	for i := len(contribs) - 1; i >= 0 && excess.IsPositive(); i-- {
		cut := decimal.Min(excess, contribs[i].Amount)
		if !cut.IsPositive() {
			continue
		}
		contribs[i].Amount = contribs[i].Amount.Sub(cut)
		contribs[i].Capped = true
		excess = excess.Sub(cut)
	}
	return ceiling, true
}
