package engine

import (
	"fmt"

	"pricepoint/internal/service/discount/domain"
)

// Binding 是某一行某个类别上胜出的规则。
type Binding struct {
	Category domain.Category
	Rule     domain.Rule
	Tier     domain.Tier
	ScopeKey string
	Key      string // 规则的稳定标识
}

// BuyGetBinding 是某一行匹配到的买N送M规则。
type BuyGetBinding struct {
	Rule domain.BuyGetRule
	Key  string
}

// LineBindings 是一行的解析结果, Rules 按 domain.LineCategories 的顺序排列, 未命中的类别不出现。
type LineBindings struct {
	Rules  []Binding
	BuyGet *BuyGetBinding
}

// Get 返回某个类别的绑定。
func (lb LineBindings) Get(c domain.Category) (Binding, bool) {
	for _, b := range lb.Rules {
		if b.Category == c {
			return b, true
		}
	}
	return Binding{}, false
}

// scopeTier 是一个优先级层级: 作用域键到规则槽位的映射。
type scopeTier struct {
	tier    domain.Tier
	scopeOf func(domain.LineItem) string
	bundles map[string]domain.RuleBundle
}

// RuleResolver 按 Custom > Batch > Product > Default 的顺序为每行每个类别挑选规则, 首个命中者胜出。
// 买N送M规则不分层, 在活动范围内按 productId 匹配。
type RuleResolver struct {
	tiers    []scopeTier
	buyGet   map[string]domain.BuyGetRule
	warnings []domain.Warning
}

// NewRuleResolver 为一个活动快照建立层级索引。同层重复的作用域键以最后定义者为准并记录告警。
func NewRuleResolver(c *domain.Campaign) *RuleResolver {
	r := &RuleResolver{}
	r.tiers = []scopeTier{
		{
			tier:    domain.TierBatch,
			scopeOf: func(l domain.LineItem) string { return l.BatchID },
			bundles: r.index(domain.TierBatch, c.BatchConfigurations),
		},
		{
			tier:    domain.TierProduct,
			scopeOf: func(l domain.LineItem) string { return l.ProductID },
			bundles: r.index(domain.TierProduct, c.ProductConfigurations),
		},
		{
			tier:    domain.TierDefault,
			scopeOf: func(domain.LineItem) string { return "" },
			bundles: map[string]domain.RuleBundle{"": c.Defaults},
		},
	}
	r.buyGet = r.indexBuyGet(c.BuyGetRules)
	return r
}

func (r *RuleResolver) index(tier domain.Tier, configs []domain.ScopeConfiguration) map[string]domain.RuleBundle {
	bundles := make(map[string]domain.RuleBundle, len(configs))
	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}
		if _, dup := bundles[cfg.ScopeKey]; dup {
			r.warn(tier, cfg.ScopeKey)
		}
		bundles[cfg.ScopeKey] = cfg.Rules
	}
	return bundles
}

func (r *RuleResolver) indexBuyGet(rules []domain.BuyGetRule) map[string]domain.BuyGetRule {
	byProduct := make(map[string]domain.BuyGetRule, len(rules))
	for _, rule := range rules {
		if !rule.IsEnabled {
			continue
		}
		if _, dup := byProduct[rule.ProductID]; dup {
			r.warn(domain.TierCampaign, rule.ProductID)
		}
		byProduct[rule.ProductID] = rule
	}
	return byProduct
}

func (r *RuleResolver) warn(tier domain.Tier, key string) {
	r.warnings = append(r.warnings, domain.Warning{
		Code:    domain.WarningAmbiguousScope,
		Message: fmt.Sprintf("%s scope %q is configured more than once; the most recently defined configuration wins", tier, key),
	})
}

// Warnings 返回建立索引时发现的歧义告警。
func (r *RuleResolver) Warnings() []domain.Warning {
	return append([]domain.Warning(nil), r.warnings...)
}

// Resolve 解析一行 (index 为其在购物车中的位置) 的所有类别。
func (r *RuleResolver) Resolve(index int, line domain.LineItem) LineBindings {
	var lb LineBindings
	for _, category := range domain.LineCategories {
		if b, ok := r.resolveCategory(index, line, category); ok {
			lb.Rules = append(lb.Rules, b)
		}
	}
	if rule, ok := r.buyGet[line.ProductID]; ok {
		lb.BuyGet = &BuyGetBinding{
			Rule: rule,
			Key:  buyGetKey(rule),
		}
	}
	return lb
}

func (r *RuleResolver) resolveCategory(index int, line domain.LineItem, category domain.Category) (Binding, bool) {
	// 手工覆盖直接胜出, 不再扫描后续层级
	if rule, ok := line.Override(category); ok {
		scope := fmt.Sprintf("line-%d", index)
		return Binding{
			Category: category,
			Rule:     rule,
			Tier:     domain.TierCustom,
			ScopeKey: scope,
			Key:      ruleKey(domain.TierCustom, scope, category, domain.Rule{}),
		}, rule.IsEnabled
	}

	for _, t := range r.tiers {
		key := t.scopeOf(line)
		if key == "" && t.tier != domain.TierDefault {
			continue
		}
		bundle, ok := t.bundles[key]
		if !ok {
			continue
		}
		if rule, ok := bundle.EnabledRule(category); ok {
			return Binding{
				Category: category,
				Rule:     rule,
				Tier:     t.tier,
				ScopeKey: key,
				Key:      ruleKey(t.tier, key, category, rule),
			}, true
		}
	}
	return Binding{}, false
}

// ruleKey 优先使用规则自身的 ID, 否则由层级、作用域与类别派生。
func ruleKey(tier domain.Tier, scopeKey string, category domain.Category, r domain.Rule) string {
	if r.ID != "" {
		return "id:" + r.ID
	}
	return fmt.Sprintf("%s/%s/%s", tier, scopeKey, category)
}

func buyGetKey(r domain.BuyGetRule) string {
	if r.ID != "" {
		return "id:" + r.ID
	}
	return fmt.Sprintf("%s/%s/%s", domain.TierCampaign, r.ProductID, domain.CategoryBuyGet)
}
