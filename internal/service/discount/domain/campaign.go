// internal/service/discount/domain/campaign.go
package domain

import (
	"fmt"
	"time"
)

// ScopeConfiguration 是某个商品或批次在活动中的规则配置。
// 同一活动中每个作用域键只应有一条配置, 该约束在写入时校验。
type ScopeConfiguration struct {
	ScopeKey string     `json:"scope_key"` // productId 或 batchId
	IsActive bool       `json:"is_active"`
	Rules    RuleBundle `json:"rules"`
}

// Campaign (DiscountSet) 是一组带有生效窗口和开关的折扣规则。
// 它是只读配置: 由管理员在评估之外创建和编辑, 评估时以快照形式传入。
type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ValidFrom time.Time `json:"valid_from,omitempty"` // 零值表示不限
	ValidTo   time.Time `json:"valid_to,omitempty"`   // 零值表示不限

	IsActive                bool `json:"is_active"`
	IsDefault               bool `json:"is_default"`
	IsOneTimePerTransaction bool `json:"is_one_time_per_transaction"`

	// Eligibility 是可选的 CEL 布尔表达式, 在整单层面决定活动是否适用。
	Eligibility string `json:"eligibility,omitempty"`

	Defaults              RuleBundle           `json:"defaults"`
	ProductConfigurations []ScopeConfiguration `json:"product_configurations,omitempty"`
	BatchConfigurations   []ScopeConfiguration `json:"batch_configurations,omitempty"`
	BuyGetRules           []BuyGetRule         `json:"buy_get_rules,omitempty"`
	CartPriceRule         *Rule                `json:"cart_price_rule,omitempty"`
	CartQuantityRule      *Rule                `json:"cart_quantity_rule,omitempty"`

	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// InWindow 检查 at 是否落在活动的生效窗口内 (含边界)。at 为零值时不做窗口检查。
func (c *Campaign) InWindow(at time.Time) bool {
	if at.IsZero() {
		return true
	}
	if !c.ValidFrom.IsZero() && at.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidTo.IsZero() && at.After(c.ValidTo) {
		return false
	}
	return true
}

// IsApplicableAt 活动已启用且在窗口内。
func (c *Campaign) IsApplicableAt(at time.Time) bool {
	return c.IsActive && c.InWindow(at)
}

// DuplicateScopeKeys 返回同一层级内重复出现的作用域键, 形如 "PRODUCT:sku-1"。
// 评估时重复键会以"最后定义者胜出"处理, 但写入边界应拒绝它们。
func (c *Campaign) DuplicateScopeKeys() []string {
	var dups []string
	collect := func(tier Tier, configs []ScopeConfiguration) {
		seen := make(map[string]int, len(configs))
		for _, cfg := range configs {
			seen[cfg.ScopeKey]++
			if seen[cfg.ScopeKey] == 2 {
				dups = append(dups, fmt.Sprintf("%s:%s", tier, cfg.ScopeKey))
			}
		}
	}
	collect(TierBatch, c.BatchConfigurations)
	collect(TierProduct, c.ProductConfigurations)

	// 停用的买N送M规则不参与解析, 也不算重复
	seen := make(map[string]int, len(c.BuyGetRules))
	for _, r := range c.BuyGetRules {
		if !r.IsEnabled {
			continue
		}
		seen[r.ProductID]++
		if seen[r.ProductID] == 2 {
			dups = append(dups, fmt.Sprintf("%s:%s", TierCampaign, r.ProductID))
		}
	}
	return dups
}
