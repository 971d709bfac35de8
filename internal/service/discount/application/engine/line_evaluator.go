package engine

import (
	"github.com/shopspring/decimal"

	"pricepoint/internal/service/discount/domain"
)

// LineEvaluator 计算一行中每个胜出类别的折扣贡献, 并把整行折扣限制在行金额以内。
type LineEvaluator struct {
	scale int32
}

func NewLineEvaluator(scale int32) *LineEvaluator {
	return &LineEvaluator{scale: scale}
}

// Evaluate 按 value, quantity, quantity-threshold, unit-price-threshold, buy-get 的顺序记录贡献。
func (e *LineEvaluator) Evaluate(index int, line domain.LineItem, bindings LineBindings, tracker *OneTimeTracker) domain.LineDiscount {
	value := line.Value()
	ld := domain.LineDiscount{
		Index:         index,
		ProductID:     line.ProductID,
		BatchID:       line.BatchID,
		Quantity:      line.Quantity,
		UnitPrice:     line.UnitPrice,
		OriginalValue: value.Round(e.scale),
		Contributions: []domain.Contribution{},
	}

	for _, b := range bindings.Rules {
		if !b.Rule.ConditionMet(observed(b.Category, line)) {
			continue
		}
		amount := kindAmount(b.Rule, value, line.Quantity).Round(e.scale)
		e.record(&ld, domain.Contribution{
			RuleKey:   b.Key,
			RuleName:  b.Rule.DisplayName(b.Category),
			Category:  b.Category,
			Tier:      b.Tier,
			ScopeKey:  b.ScopeKey,
			Amount:    amount,
			FixedOnce: b.Rule.Type == domain.DiscountTypeFixedAmount && b.Rule.ApplyFixedOnce,
		}, tracker)
	}

	if bg := bindings.BuyGet; bg != nil {
		amount := buyGetAmount(bg.Rule, line).Round(e.scale)
		e.record(&ld, domain.Contribution{
			RuleKey:  bg.Key,
			RuleName: bg.Rule.DisplayName(),
			Category: domain.CategoryBuyGet,
			Tier:     domain.TierCampaign,
			ScopeKey: bg.Rule.ProductID,
			Amount:   amount,
		}, tracker)
	}

	discount, capped := clamp(ld.Contributions, ld.OriginalValue)
	// 限额之后仍为正的贡献才占用单次生效名额
	if claimOneTime(ld.Contributions, tracker) {
		discount = sumAmounts(ld.Contributions)
	}
	ld.Discount = discount
	ld.NetValue = ld.OriginalValue.Sub(discount)
	ld.Capped = capped
	return ld
}

// record 追加一条贡献。金额为 0 的规则不算合格出现, 不记录也不占用单次生效名额。
// 已在更靠前的行计入过的规则记为 0 并标记 AlreadyApplied。
func (e *LineEvaluator) record(ld *domain.LineDiscount, c domain.Contribution, tracker *OneTimeTracker) {
	if !c.Amount.IsPositive() {
		return
	}
	if c.Tier != domain.TierCustom && tracker.Active() {
		c.OneTime = true
		if tracker.Claimed(c.RuleKey) {
			c.Amount = decimal.Zero
			c.AlreadyApplied = true
		}
	}
	ld.Contributions = append(ld.Contributions, c)
}

// claimOneTime 为限额后仍有金额的单次规则登记名额。同一行内重复出现的规则只保留第一次,
// 返回 true 表示有贡献被清零, 需要重新汇总。
func claimOneTime(contribs []domain.Contribution, tracker *OneTimeTracker) bool {
	zeroed := false
	for i := range contribs {
		c := &contribs[i]
		if !c.OneTime || c.AlreadyApplied || !c.Amount.IsPositive() {
			continue
		}
		if !tracker.Claim(c.RuleKey) {
			c.Amount = decimal.Zero
			c.AlreadyApplied = true
			zeroed = true
		}
	}
	return zeroed
}
