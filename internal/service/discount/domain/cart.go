package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Override 是收银员在某一行上手工录入的折扣 (Custom 层级), 对所属类别直接胜出。
type Override struct {
	Category Category `json:"category"`
	Rule     Rule     `json:"rule"`
}

// LineItem 是购物车中的一行。Quantity 已由外部换算到商品的基本单位, 可以是小数。
type LineItem struct {
	ProductID string          `json:"product_id"`
	BatchID   string          `json:"batch_id,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Overrides []Override      `json:"overrides,omitempty"`
}

// Value 是行的原始金额 unitPrice × quantity。
func (l LineItem) Value() decimal.Decimal {
	return l.UnitPrice.Mul(l.Quantity)
}

// Override 返回该行指定类别的手工覆盖。
func (l LineItem) Override(c Category) (Rule, bool) {
	for _, o := range l.Overrides {
		if o.Category == c {
			return o.Rule, true
		}
	}
	return Rule{}, false
}

// Cart 是一次评估的购物车快照。
type Cart struct {
	ID    string     `json:"id"`
	Lines []LineItem `json:"lines"`

	// At 是评估时刻, 用于活动窗口判断。零值表示不检查窗口。
	At time.Time `json:"at,omitempty"`
}

// Subtotal 是所有行折前金额之和。
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Value())
	}
	return total
}

// TotalQuantity 是所有行的数量之和。
func (c *Cart) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Quantity)
	}
	return total
}
