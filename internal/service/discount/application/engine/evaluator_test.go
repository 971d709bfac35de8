package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricepoint/internal/service/discount/domain"
)

func TestKindAmount(t *testing.T) {
	tests := []struct {
		name  string
		rule  *domain.Rule
		base  string
		units string
		want  string
	}{
		{name: "fixed once", rule: fixedOnce("100"), base: "1000", units: "5", want: "100"},
		{name: "fixed per unit", rule: fixedPerUnit("100"), base: "1000", units: "5", want: "500"},
		{name: "fixed per fractional unit", rule: fixedPerUnit("2"), base: "10", units: "1.25", want: "2.5"},
		{name: "percentage of base", rule: percent("10"), base: "600", units: "3", want: "60"},
		{name: "unknown type", rule: &domain.Rule{Type: "BOGUS", Amount: d("5")}, base: "10", units: "1", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := kindAmount(*tt.rule, d(tt.base), d(tt.units))
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestLineEvaluator_ThresholdGates(t *testing.T) {
	e := NewLineEvaluator(DefaultScale)

	tests := []struct {
		name     string
		category domain.Category
		min      string
		line     domain.LineItem
		applies  bool
	}{
		{name: "quantity threshold below", category: domain.CategoryQuantityThreshold, min: "3", line: line("A", "10", "2.99"), applies: false},
		{name: "quantity threshold at", category: domain.CategoryQuantityThreshold, min: "3", line: line("A", "10", "3"), applies: true},
		{name: "unit price threshold below", category: domain.CategoryUnitPriceThreshold, min: "50", line: line("A", "49.99", "1"), applies: false},
		{name: "unit price threshold at", category: domain.CategoryUnitPriceThreshold, min: "50", line: line("A", "50", "1"), applies: true},
		{name: "value rule gated by line value", category: domain.CategoryValue, min: "100", line: line("A", "33.33", "3"), applies: false},
		{name: "value rule passes on line value", category: domain.CategoryValue, min: "100", line: line("A", "50", "2"), applies: true},
		{name: "quantity rule gated by quantity", category: domain.CategoryQuantity, min: "2", line: line("A", "500", "1"), applies: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bindings := LineBindings{Rules: []Binding{{
				Category: tt.category,
				Rule:     *withMin(fixedOnce("1"), tt.min),
				Tier:     domain.TierProduct,
				Key:      "k",
			}}}
			ld := e.Evaluate(0, tt.line, bindings, NewOneTimeTracker(false))
			if tt.applies {
				assert.Equal(t, "1.00", money(ld.Discount))
				require.Len(t, ld.Contributions, 1)
			} else {
				assert.True(t, ld.Discount.IsZero())
				assert.Empty(t, ld.Contributions)
			}
		})
	}
}

func TestLineEvaluator_ClampTrimsLatestContributionsFirst(t *testing.T) {
	e := NewLineEvaluator(DefaultScale)
	bindings := LineBindings{Rules: []Binding{
		{Category: domain.CategoryValue, Rule: *fixedOnce("6"), Tier: domain.TierDefault, Key: "v"},
		{Category: domain.CategoryQuantity, Rule: *fixedOnce("8"), Tier: domain.TierDefault, Key: "q"},
	}}

	ld := e.Evaluate(0, line("A", "10", "1"), bindings, NewOneTimeTracker(false))

	assert.True(t, ld.Capped)
	assert.Equal(t, "10.00", money(ld.Discount))
	assert.True(t, ld.NetValue.IsZero())
	assert.Equal(t, "6.00", money(ld.Contributions[0].Amount))
	assert.False(t, ld.Contributions[0].Capped)
	assert.Equal(t, "4.00", money(ld.Contributions[1].Amount))
	assert.True(t, ld.Contributions[1].Capped)
}

func TestBuyGetAmount(t *testing.T) {
	free := domain.BuyGetRule{IsEnabled: true, ProductID: "A", BuyQuantity: d("2"), GetQuantity: d("1"), Type: domain.DiscountTypePercentage, Amount: d("100")}
	half := free
	half.Amount = d("50")
	fixed := free
	fixed.Type = domain.DiscountTypeFixedAmount
	fixed.Amount = d("15")

	tests := []struct {
		name string
		rule domain.BuyGetRule
		qty  string
		want string
	}{
		{name: "below one group", rule: free, qty: "2", want: "0"},
		{name: "one full group", rule: free, qty: "3", want: "10"},
		{name: "partial second group", rule: free, qty: "5", want: "10"},
		{name: "two groups", rule: free, qty: "7", want: "20"},
		{name: "fractional quantity floors", rule: free, qty: "5.9", want: "10"},
		{name: "half price reward", rule: half, qty: "6", want: "10"},
		{name: "fixed reward capped at unit price", rule: fixed, qty: "3", want: "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buyGetAmount(tt.rule, line("A", "10", tt.qty))
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestCartEvaluator(t *testing.T) {
	e := NewCartEvaluator(DefaultScale)
	lines := []domain.LineDiscount{
		{ProductID: "A", Quantity: d("2"), NetValue: d("80")},
		{ProductID: "B", Quantity: d("3"), NetValue: d("40")},
	}

	t.Run("gated separately", func(t *testing.T) {
		c := activeCampaign()
		c.CartPriceRule = withMin(fixedOnce("10"), "121")
		c.CartQuantityRule = withMin(percent("5"), "5")

		records, capped := e.Evaluate(c, lines)

		assert.False(t, capped)
		require.Len(t, records, 1)
		assert.Equal(t, domain.CategoryCartQuantity, records[0].Category)
		assert.Equal(t, "6.00", money(records[0].Amount))
		assert.Equal(t, "CART//CART_QUANTITY", records[0].RuleKey)
	})

	t.Run("disabled rule never fires", func(t *testing.T) {
		c := activeCampaign()
		c.CartPriceRule = fixedOnce("10")
		c.CartPriceRule.IsEnabled = false

		records, _ := e.Evaluate(c, lines)
		assert.Empty(t, records)
	})

	t.Run("capped at post-line subtotal", func(t *testing.T) {
		c := activeCampaign()
		c.CartPriceRule = fixedOnce("100")
		c.CartQuantityRule = fixedPerUnit("10")

		records, capped := e.Evaluate(c, lines)

		assert.True(t, capped)
		require.Len(t, records, 2)
		assert.Equal(t, "100.00", money(records[0].Amount))
		assert.Equal(t, "20.00", money(records[1].Amount))
		assert.True(t, records[1].Capped)
	})
}

func TestOneTimeTracker(t *testing.T) {
	inactive := NewOneTimeTracker(false)
	assert.False(t, inactive.Active())
	assert.True(t, inactive.Claim("r"))
	assert.True(t, inactive.Claim("r"))
	assert.Equal(t, 0, inactive.Len())

	active := NewOneTimeTracker(true)
	assert.False(t, active.Claimed("r"))
	assert.True(t, active.Claim("r"))
	assert.True(t, active.Claimed("r"))
	assert.False(t, active.Claim("r"))
	assert.True(t, active.Claim("s"))
	assert.Equal(t, 2, active.Len())

	var missing *OneTimeTracker
	assert.False(t, missing.Active())
	assert.True(t, missing.Claim("r"))
}
