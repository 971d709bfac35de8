package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pricepoint/internal/service/discount/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func minOf(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

func fixedOnce(amount string) *domain.Rule {
	return &domain.Rule{IsEnabled: true, Type: domain.DiscountTypeFixedAmount, Amount: d(amount), ApplyFixedOnce: true}
}

func fixedPerUnit(amount string) *domain.Rule {
	return &domain.Rule{IsEnabled: true, Type: domain.DiscountTypeFixedAmount, Amount: d(amount)}
}

func percent(amount string) *domain.Rule {
	return &domain.Rule{IsEnabled: true, Type: domain.DiscountTypePercentage, Amount: d(amount)}
}

func named(r *domain.Rule, id, name string) *domain.Rule {
	r.ID = id
	r.Name = name
	return r
}

func withMin(r *domain.Rule, min string) *domain.Rule {
	r.ConditionMin = minOf(min)
	return r
}

func line(productID, price, qty string) domain.LineItem {
	return domain.LineItem{ProductID: productID, UnitPrice: d(price), Quantity: d(qty)}
}

func cartOf(lines ...domain.LineItem) *domain.Cart {
	return &domain.Cart{ID: "cart-1", Lines: lines}
}

func activeCampaign() *domain.Campaign {
	return &domain.Campaign{ID: "cmp-1", Name: "spring sale", IsActive: true, IsDefault: true}
}

func evaluate(t *testing.T, c *domain.Campaign, cart *domain.Cart, opts ...Option) domain.DiscountResult {
	t.Helper()
	res := New(opts...).Evaluate(context.Background(), c, cart)
	require.NotEmpty(t, res.Status)
	return res
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}
