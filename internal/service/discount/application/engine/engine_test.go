package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/infrastructure/rule"
)

func TestEvaluate_DefaultFixedOnceEndToEnd(t *testing.T) {
	c := activeCampaign()
	c.Defaults.Value = named(fixedOnce("2"), "", "store default")

	res := evaluate(t, c, cartOf(line("A", "100", "5")))

	require.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, "500.00", money(res.OriginalSubtotal))
	assert.Equal(t, "2.00", money(res.TotalItemDiscount))
	assert.Equal(t, "0.00", money(res.TotalCartDiscount))
	assert.Equal(t, "2.00", money(res.TotalDiscount))
	assert.Equal(t, "498.00", money(res.FinalTotal))

	require.Len(t, res.Lines, 1)
	require.Len(t, res.Lines[0].Contributions, 1)
	contrib := res.Lines[0].Contributions[0]
	assert.Equal(t, "store default", contrib.RuleName)
	assert.Equal(t, domain.TierDefault, contrib.Tier)
	assert.Equal(t, domain.CategoryValue, contrib.Category)
	assert.True(t, contrib.FixedOnce)

	require.Len(t, res.AppliedRules, 1)
	assert.Equal(t, "A", res.AppliedRules[0].ProductID)
	assert.Equal(t, "2.00", money(res.AppliedRules[0].Amount))
}

func TestEvaluate_FixedAmountSemantics(t *testing.T) {
	tests := []struct {
		name string
		rule *domain.Rule
		want string
	}{
		{name: "fixed once ignores quantity", rule: fixedOnce("100"), want: "100.00"},
		{name: "fixed per unit multiplies by quantity", rule: fixedPerUnit("100"), want: "500.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCampaign()
			c.ProductConfigurations = []domain.ScopeConfiguration{
				{ScopeKey: "A", IsActive: true, Rules: domain.RuleBundle{Value: tt.rule}},
			}
			res := evaluate(t, c, cartOf(line("A", "1000", "5")))
			assert.Equal(t, tt.want, money(res.TotalItemDiscount))
		})
	}
}

func TestEvaluate_PercentageAppliesToFullLineValue(t *testing.T) {
	c := activeCampaign()
	c.Defaults.Value = percent("10")

	res := evaluate(t, c, cartOf(line("A", "200", "3")))

	assert.Equal(t, "60.00", money(res.TotalItemDiscount))
	assert.Equal(t, "540.00", money(res.FinalTotal))
}

func TestEvaluate_BatchBeatsProduct(t *testing.T) {
	c := activeCampaign()
	c.ProductConfigurations = []domain.ScopeConfiguration{
		{ScopeKey: "A", IsActive: true, Rules: domain.RuleBundle{Value: named(fixedOnce("50"), "prod-a", "product A")}},
	}
	c.BatchConfigurations = []domain.ScopeConfiguration{
		{ScopeKey: "B-7", IsActive: true, Rules: domain.RuleBundle{Value: named(percent("10"), "batch-b7", "batch B-7 clearance")}},
	}
	l := line("A", "100", "2")
	l.BatchID = "B-7"

	res := evaluate(t, c, cartOf(l))

	require.Len(t, res.Lines[0].Contributions, 1)
	assert.Equal(t, "batch B-7 clearance", res.Lines[0].Contributions[0].RuleName)
	assert.Equal(t, domain.TierBatch, res.Lines[0].Contributions[0].Tier)
	assert.Equal(t, "20.00", money(res.TotalItemDiscount))
	for _, applied := range res.AppliedRules {
		assert.NotEqual(t, "product A", applied.RuleName)
	}
}

func TestEvaluate_OneTimePerTransaction(t *testing.T) {
	build := func(oneTime bool) *domain.Campaign {
		c := activeCampaign()
		c.IsOneTimePerTransaction = oneTime
		c.ProductConfigurations = []domain.ScopeConfiguration{
			{ScopeKey: "A", IsActive: true, Rules: domain.RuleBundle{Value: named(fixedOnce("10"), "r-1", "welcome")}},
		}
		return c
	}
	cart := cartOf(line("A", "50", "1"), line("B", "30", "1"), line("A", "50", "2"))

	t.Run("counted once across lines", func(t *testing.T) {
		res := evaluate(t, build(true), cart)

		assert.Equal(t, "10.00", money(res.TotalItemDiscount))
		first := res.Lines[0].Contributions[0]
		assert.True(t, first.OneTime)
		assert.False(t, first.AlreadyApplied)
		assert.Equal(t, "10.00", money(first.Amount))

		require.Len(t, res.Lines[2].Contributions, 1, "later occurrence is still resolved")
		later := res.Lines[2].Contributions[0]
		assert.True(t, later.AlreadyApplied)
		assert.True(t, later.Amount.IsZero())

		require.Len(t, res.AppliedRules, 1)
		assert.True(t, res.AppliedRules[0].OneTime)
		assert.Equal(t, "10.00", money(res.AppliedRules[0].Amount))
	})

	t.Run("counted per line without the flag", func(t *testing.T) {
		res := evaluate(t, build(false), cart)

		assert.Equal(t, "20.00", money(res.TotalItemDiscount))
		require.Len(t, res.AppliedRules, 1)
		assert.False(t, res.AppliedRules[0].OneTime)
		assert.Equal(t, "20.00", money(res.AppliedRules[0].Amount))
	})
}

func TestEvaluate_OneTimeSkipsOccurrenceClampedToZero(t *testing.T) {
	c := activeCampaign()
	c.IsOneTimePerTransaction = true
	c.ProductConfigurations = []domain.ScopeConfiguration{
		{ScopeKey: "A", IsActive: true, Rules: domain.RuleBundle{Value: fixedOnce("10")}},
	}

	res := evaluate(t, c, cartOf(line("A", "0", "1"), line("A", "100", "1")))

	require.Equal(t, domain.StatusOK, res.Status)
	free := res.Lines[0].Contributions[0]
	assert.True(t, free.Capped)
	assert.True(t, free.Amount.IsZero())
	assert.False(t, free.AlreadyApplied)

	paid := res.Lines[1].Contributions[0]
	assert.False(t, paid.AlreadyApplied)
	assert.Equal(t, "10.00", money(paid.Amount))
	assert.Equal(t, "10.00", money(res.TotalItemDiscount))
	assert.Equal(t, "90.00", money(res.FinalTotal))
}

func TestEvaluate_OneTimeRuleSharedAcrossCategoriesOnOneLine(t *testing.T) {
	c := activeCampaign()
	c.IsOneTimePerTransaction = true
	c.Defaults = domain.RuleBundle{
		Value:    named(fixedOnce("5"), "shared", "shared"),
		Quantity: named(fixedOnce("5"), "shared", "shared"),
	}

	res := evaluate(t, c, cartOf(line("A", "100", "1")))

	require.Len(t, res.Lines[0].Contributions, 2)
	assert.False(t, res.Lines[0].Contributions[0].AlreadyApplied)
	assert.True(t, res.Lines[0].Contributions[1].AlreadyApplied)
	assert.Equal(t, "5.00", money(res.Lines[0].Discount))
	assert.Equal(t, "95.00", money(res.Lines[0].NetValue))
}

func TestEvaluate_OneTimeDoesNotAffectCartRulesOrOverrides(t *testing.T) {
	c := activeCampaign()
	c.IsOneTimePerTransaction = true
	c.CartQuantityRule = withMin(fixedOnce("5"), "2")

	first := line("A", "50", "1")
	first.Overrides = []domain.Override{{Category: domain.CategoryValue, Rule: *fixedOnce("3")}}
	second := line("A", "50", "1")
	second.Overrides = []domain.Override{{Category: domain.CategoryValue, Rule: *fixedOnce("3")}}

	res := evaluate(t, c, cartOf(first, second))

	assert.Equal(t, "6.00", money(res.TotalItemDiscount))
	assert.Equal(t, "5.00", money(res.TotalCartDiscount))
	for _, l := range res.Lines {
		assert.False(t, l.Contributions[0].OneTime)
		assert.Equal(t, domain.TierCustom, l.Contributions[0].Tier)
	}
}

func TestEvaluate_CartPriceBoundary(t *testing.T) {
	c := activeCampaign()
	c.CartPriceRule = named(withMin(fixedOnce("100"), "10000"), "", "big basket")

	below := evaluate(t, c, cartOf(line("A", "9999.99", "1")))
	assert.True(t, below.TotalCartDiscount.IsZero())
	assert.Empty(t, below.CartDiscounts)
	assert.Equal(t, "9999.99", money(below.FinalTotal))

	at := evaluate(t, c, cartOf(line("A", "10000.00", "1")))
	require.Len(t, at.CartDiscounts, 1)
	assert.Equal(t, "100.00", money(at.TotalCartDiscount))
	assert.Equal(t, domain.TierCart, at.CartDiscounts[0].Tier)
	assert.Equal(t, "9900.00", money(at.FinalTotal))
}

func TestEvaluate_CartRulesUsePostLineSubtotal(t *testing.T) {
	c := activeCampaign()
	c.Defaults.Value = percent("50")
	c.CartPriceRule = withMin(percent("10"), "100")
	c.CartQuantityRule = withMin(fixedPerUnit("1"), "4")

	// 折前 300, 行折后 150, 共 4 件
	res := evaluate(t, c, cartOf(line("A", "100", "2"), line("B", "50", "2")))

	assert.Equal(t, "150.00", money(res.TotalItemDiscount))
	require.Len(t, res.CartDiscounts, 2)
	assert.Equal(t, domain.CategoryCartPrice, res.CartDiscounts[0].Category)
	assert.Equal(t, "15.00", money(res.CartDiscounts[0].Amount))
	assert.Equal(t, domain.CategoryCartQuantity, res.CartDiscounts[1].Category)
	assert.Equal(t, "4.00", money(res.CartDiscounts[1].Amount))
	assert.Equal(t, "131.00", money(res.FinalTotal))

	for _, l := range res.Lines {
		for _, contrib := range l.Contributions {
			assert.NotEqual(t, domain.TierCart, contrib.Tier, "cart discounts are never merged into line records")
		}
	}
}

func TestEvaluate_NonNegativity(t *testing.T) {
	c := activeCampaign()
	c.Defaults.Value = fixedPerUnit("1000")
	c.Defaults.Quantity = fixedOnce("5")
	c.CartPriceRule = fixedOnce("1000000")

	res := evaluate(t, c, cartOf(line("A", "10", "3"), line("B", "0.99", "0.5")))

	for _, l := range res.Lines {
		assert.False(t, l.NetValue.IsNegative())
		assert.True(t, l.Capped)
		assert.Equal(t, money(l.OriginalValue), money(l.Discount))
	}
	assert.True(t, res.FinalTotal.IsZero())
	assert.False(t, res.FinalTotal.IsNegative())

	require.Len(t, res.CartDiscounts, 1)
	assert.True(t, res.CartDiscounts[0].Capped)
	assert.True(t, res.CartDiscounts[0].Amount.IsZero())

	var capped int
	for _, w := range res.Warnings {
		if w.Code == domain.WarningCapped {
			capped++
		}
	}
	assert.Equal(t, 3, capped)
}

func TestEvaluate_Idempotent(t *testing.T) {
	c := activeCampaign()
	c.IsOneTimePerTransaction = true
	c.Defaults.Value = percent("5")
	c.Defaults.QuantityThreshold = withMin(fixedPerUnit("0.5"), "3")
	c.BuyGetRules = []domain.BuyGetRule{{ID: "bogo", IsEnabled: true, ProductID: "A", BuyQuantity: d("1"), GetQuantity: d("1"), Type: domain.DiscountTypePercentage, Amount: d("100")}}
	c.CartPriceRule = withMin(percent("2"), "50")
	cart := cartOf(line("A", "12.5", "4"), line("B", "3.99", "1.25"), line("A", "12.5", "2"))

	eng := New()
	first := eng.Evaluate(context.Background(), c, cart)
	second := eng.Evaluate(context.Background(), c, cart)

	assert.Equal(t, first, second)
}

func TestEvaluate_ConcurrentCallsDoNotShareState(t *testing.T) {
	c := activeCampaign()
	c.IsOneTimePerTransaction = true
	c.Defaults.Value = fixedOnce("1")

	eng := New()
	var wg sync.WaitGroup
	results := make([]domain.DiscountResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = eng.Evaluate(context.Background(), c, cartOf(line("A", "10", "1"), line("B", "10", "1")))
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, "1.00", money(res.TotalItemDiscount))
	}
}

func TestEvaluate_ConfigurationErrorBlocksEvaluation(t *testing.T) {
	c := activeCampaign()
	c.Defaults.Value = percent("150")
	c.ProductConfigurations = []domain.ScopeConfiguration{
		{ScopeKey: "A", IsActive: true, Rules: domain.RuleBundle{QuantityThreshold: fixedOnce("1")}},
	}

	res := evaluate(t, c, cartOf(line("A", "10", "2")))

	assert.Equal(t, domain.StatusConfigurationError, res.Status)
	assert.Contains(t, res.Error, "percentage must not exceed 100")
	assert.Contains(t, res.Error, "condition_min")
	assert.Empty(t, res.Lines)
	assert.True(t, res.TotalDiscount.IsZero())
	assert.Equal(t, "20.00", money(res.OriginalSubtotal))
	assert.Equal(t, "20.00", money(res.FinalTotal))
	assert.False(t, res.Succeeded())
}

func TestEvaluate_InvalidCartIsConfigurationError(t *testing.T) {
	res := evaluate(t, activeCampaign(), cartOf(line("", "10", "1"), line("B", "-1", "1")))

	assert.Equal(t, domain.StatusConfigurationError, res.Status)
	assert.Contains(t, res.Error, "cart.lines[0].product_id")
	assert.Contains(t, res.Error, "cart.lines[1].unit_price")
	assert.True(t, res.OriginalSubtotal.IsZero())
}

func TestEvaluate_NilCampaign(t *testing.T) {
	res := evaluate(t, nil, cartOf(line("A", "10", "1")))

	assert.Equal(t, domain.StatusConfigurationError, res.Status)
	assert.Contains(t, res.Error, "no campaign supplied")
}

func TestEvaluate_AmbiguousScopeWarns(t *testing.T) {
	c := activeCampaign()
	c.ProductConfigurations = []domain.ScopeConfiguration{
		{ScopeKey: "A", IsActive: true, Rules: domain.RuleBundle{Value: fixedOnce("5")}},
		{ScopeKey: "A", IsActive: true, Rules: domain.RuleBundle{Value: fixedOnce("7")}},
	}

	res := evaluate(t, c, cartOf(line("A", "100", "1")))

	assert.Equal(t, domain.StatusOK, res.Status)
	assert.Equal(t, "7.00", money(res.TotalItemDiscount), "most recently defined configuration wins")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, domain.WarningAmbiguousScope, res.Warnings[0].Code)
}

func TestEvaluate_CampaignNotApplicable(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("inactive flag", func(t *testing.T) {
		c := activeCampaign()
		c.IsActive = false
		c.Defaults.Value = fixedOnce("5")

		res := evaluate(t, c, cartOf(line("A", "10", "1")))
		assert.Equal(t, domain.StatusCampaignInactive, res.Status)
		assert.True(t, res.TotalDiscount.IsZero())
		assert.Equal(t, "10.00", money(res.FinalTotal))
		assert.True(t, res.Succeeded())
	})

	t.Run("outside window", func(t *testing.T) {
		c := activeCampaign()
		c.ValidFrom = now.Add(-48 * time.Hour)
		c.ValidTo = now.Add(-24 * time.Hour)
		c.Defaults.Value = fixedOnce("5")
		cart := cartOf(line("A", "10", "1"))
		cart.At = now

		res := evaluate(t, c, cart)
		assert.Equal(t, domain.StatusCampaignInactive, res.Status)
	})

	t.Run("window boundary is inclusive", func(t *testing.T) {
		c := activeCampaign()
		c.ValidFrom = now
		c.ValidTo = now
		c.Defaults.Value = fixedOnce("5")
		cart := cartOf(line("A", "10", "1"))
		cart.At = now

		res := evaluate(t, c, cart)
		assert.Equal(t, domain.StatusOK, res.Status)
		assert.Equal(t, "5.00", money(res.TotalDiscount))
	})
}

func TestEvaluate_Eligibility(t *testing.T) {
	cel, err := rule.NewCELRuleEngine()
	require.NoError(t, err)

	c := activeCampaign()
	c.Eligibility = `subtotal >= 100.0 && "A" in products`
	c.Defaults.Value = fixedOnce("5")

	eligible := evaluate(t, c, cartOf(line("A", "60", "2")), WithRuleEngine(cel))
	assert.Equal(t, domain.StatusOK, eligible.Status)
	assert.Equal(t, "5.00", money(eligible.TotalDiscount))

	notEligible := evaluate(t, c, cartOf(line("B", "60", "2")), WithRuleEngine(cel))
	assert.Equal(t, domain.StatusNotEligible, notEligible.Status)
	assert.True(t, notEligible.TotalDiscount.IsZero())

	withoutEngine := evaluate(t, c, cartOf(line("A", "60", "2")))
	assert.Equal(t, domain.StatusConfigurationError, withoutEngine.Status)

	c.Eligibility = `subtotal >=`
	broken := evaluate(t, c, cartOf(line("A", "60", "2")), WithRuleEngine(cel))
	assert.Equal(t, domain.StatusConfigurationError, broken.Status)
	assert.Contains(t, broken.Error, "eligibility")
}

func TestEvaluate_CategoriesStackAdditively(t *testing.T) {
	c := activeCampaign()
	c.ProductConfigurations = []domain.ScopeConfiguration{{
		ScopeKey: "A",
		IsActive: true,
		Rules: domain.RuleBundle{
			Value:              named(percent("10"), "", "ten off"),
			Quantity:           named(withMin(fixedOnce("2"), "2"), "", "multi buy"),
			QuantityThreshold:  named(withMin(fixedPerUnit("1"), "6"), "", "six pack"),
			UnitPriceThreshold: named(withMin(fixedOnce("3"), "10"), "", "premium"),
		},
	}}
	c.BuyGetRules = []domain.BuyGetRule{{Name: "2+1", IsEnabled: true, ProductID: "A", BuyQuantity: d("2"), GetQuantity: d("1"), Type: domain.DiscountTypePercentage, Amount: d("100")}}

	res := evaluate(t, c, cartOf(line("A", "10", "6")))

	contribs := res.Lines[0].Contributions
	require.Len(t, contribs, 5)
	wantOrder := []domain.Category{
		domain.CategoryValue,
		domain.CategoryQuantity,
		domain.CategoryQuantityThreshold,
		domain.CategoryUnitPriceThreshold,
		domain.CategoryBuyGet,
	}
	for i, want := range wantOrder {
		assert.Equal(t, want, contribs[i].Category)
	}
	// 6.00 + 2.00 + 6.00 + 3.00 + 20.00 (两件免费)
	assert.Equal(t, "37.00", money(res.TotalItemDiscount))
	assert.Equal(t, "23.00", money(res.FinalTotal))
}

func TestEvaluate_FractionalQuantityRounding(t *testing.T) {
	c := activeCampaign()
	c.Defaults.Value = percent("10")

	res := evaluate(t, c, cartOf(line("APPLES", "3.99", "1.5")))

	assert.Equal(t, "5.99", money(res.OriginalSubtotal))
	assert.Equal(t, "0.60", money(res.TotalItemDiscount))
	assert.Equal(t, "5.39", money(res.FinalTotal))
}

func TestEvaluate_EmptyCart(t *testing.T) {
	c := activeCampaign()
	c.CartPriceRule = fixedOnce("10")

	res := evaluate(t, c, &domain.Cart{})

	assert.Equal(t, domain.StatusOK, res.Status)
	assert.True(t, res.FinalTotal.IsZero())
	assert.True(t, res.TotalCartDiscount.IsZero())
	assert.NotNil(t, res.Lines)
	assert.NotNil(t, res.AppliedRules)
}
