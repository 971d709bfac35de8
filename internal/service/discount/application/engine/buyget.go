package engine

import (
	"github.com/shopspring/decimal"

	"pricepoint/internal/service/discount/domain"
)

// rewardedUnits 每凑满 (buy + get) 件, 其中 get 件为奖励件。小数数量按整组向下取整。
func rewardedUnits(r domain.BuyGetRule, quantity decimal.Decimal) decimal.Decimal {
	group := r.BuyQuantity.Add(r.GetQuantity)
	if !group.IsPositive() || quantity.LessThan(group) {
		return decimal.Zero
	}
	return quantity.Div(group).Floor().Mul(r.GetQuantity)
}

// buyGetAmount 是奖励件的总优惠。固定金额按件计算且不超过单价。
func buyGetAmount(r domain.BuyGetRule, line domain.LineItem) decimal.Decimal {
	units := rewardedUnits(r, line.Quantity)
	if units.IsZero() {
		return decimal.Zero
	}

	var perUnit decimal.Decimal
	switch r.Type {
	case domain.DiscountTypeFixedAmount:
		perUnit = decimal.Min(r.Amount, line.UnitPrice)
	case domain.DiscountTypePercentage:
		perUnit = line.UnitPrice.Mul(r.Amount).Div(hundred)
	default:
		return decimal.Zero
	}
	return perUnit.Mul(units)
}
