package engine

import (
	"github.com/shopspring/decimal"

	"pricepoint/internal/service/discount/domain"
)

// ResultAssembler 汇总行折扣与整单折扣, 生成可序列化的结果和扁平化的规则摘要。
type ResultAssembler struct{}

func (ResultAssembler) Assemble(ec *EvaluationContext) domain.DiscountResult {
	res := domain.DiscountResult{
		Status:           ec.Status,
		OriginalSubtotal: ec.subtotal,
		Lines:            make([]domain.LineDiscount, 0, len(ec.lines)),
		CartDiscounts:    make([]domain.Contribution, 0, len(ec.cartDiscounts)),
		AppliedRules:     []domain.AppliedRule{},
	}
	if ec.Campaign != nil {
		res.CampaignID = ec.Campaign.ID
	}
	if ec.Cart != nil {
		res.CartID = ec.Cart.ID
	}
	if ec.Err != nil {
		res.Error = ec.Err.Error()
	}
	if len(ec.Warnings) > 0 {
		res.Warnings = append([]domain.Warning(nil), ec.Warnings...)
	}

	item := decimal.Zero
	for _, l := range ec.lines {
		l.Contributions = append([]domain.Contribution{}, l.Contributions...)
		res.Lines = append(res.Lines, l)
		item = item.Add(l.Discount)
	}
	cart := decimal.Zero
	for _, c := range ec.cartDiscounts {
		res.CartDiscounts = append(res.CartDiscounts, c)
		cart = cart.Add(c.Amount)
	}

	res.TotalItemDiscount = item
	res.TotalCartDiscount = cart
	res.TotalDiscount = item.Add(cart)
	res.FinalTotal = decimal.Max(decimal.Zero, res.OriginalSubtotal.Sub(res.TotalDiscount))
	res.AppliedRules = summarize(res.Lines, res.CartDiscounts)
	return res
}

// summarize 按 (规则标识, 商品) 合并金额, 保持首次出现的顺序。只统计实际产生金额的贡献。
func summarize(lines []domain.LineDiscount, cart []domain.Contribution) []domain.AppliedRule {
	applied := []domain.AppliedRule{}
	index := make(map[string]int)

	add := func(c domain.Contribution, productID string) {
		if !c.Amount.IsPositive() {
			return
		}
		key := c.RuleKey + "|" + productID
		if i, ok := index[key]; ok {
			applied[i].Amount = applied[i].Amount.Add(c.Amount)
			return
		}
		index[key] = len(applied)
		applied = append(applied, domain.AppliedRule{
			RuleKey:   c.RuleKey,
			RuleName:  c.RuleName,
			Category:  c.Category,
			Tier:      c.Tier,
			ProductID: productID,
			OneTime:   c.OneTime,
			Amount:    c.Amount,
		})
	}

	for _, l := range lines {
		for _, c := range l.Contributions {
			add(c, l.ProductID)
		}
	}
	for _, c := range cart {
		add(c, "")
	}
	return applied
}
