package infrastructure

import (
	"database/sql"
	"sort"
	"time"

	"pricepoint/internal/service/discount/domain"
)

// ToDomainCampaign 将数据库模型 (含关联) 转换为领域模型
func ToDomainCampaign(model *CampaignModel) *domain.Campaign {
	if model == nil {
		return nil
	}
	c := &domain.Campaign{
		ID:                      model.ID,
		Name:                    model.Name,
		ValidFrom:               fromNullTime(model.ValidFrom),
		ValidTo:                 fromNullTime(model.ValidTo),
		IsActive:                model.IsActive,
		IsDefault:               model.IsDefault,
		IsOneTimePerTransaction: model.IsOneTimePerTransaction,
		Eligibility:             model.Eligibility,
		Version:                 model.Version,
		UpdatedAt:               model.UpdatedAt,
	}

	scopes := append([]ScopeConfigModel(nil), model.Scopes...)
	sort.SliceStable(scopes, func(i, j int) bool { return scopes[i].Position < scopes[j].Position })
	index := map[string]*domain.ScopeConfiguration{}
	for _, s := range scopes {
		cfg := domain.ScopeConfiguration{ScopeKey: s.ScopeKey, IsActive: s.IsActive}
		switch domain.Tier(s.Tier) {
		case domain.TierProduct:
			c.ProductConfigurations = append(c.ProductConfigurations, cfg)
		case domain.TierBatch:
			c.BatchConfigurations = append(c.BatchConfigurations, cfg)
		}
	}
	// 切片追加完毕后再取地址
	for i := range c.ProductConfigurations {
		index[scopeIndexKey(domain.TierProduct, c.ProductConfigurations[i].ScopeKey)] = &c.ProductConfigurations[i]
	}
	for i := range c.BatchConfigurations {
		index[scopeIndexKey(domain.TierBatch, c.BatchConfigurations[i].ScopeKey)] = &c.BatchConfigurations[i]
	}

	rules := append([]RuleModel(nil), model.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Position < rules[j].Position })
	for i := range rules {
		rm := rules[i]
		category := domain.Category(rm.Category)
		rule := toDomainRule(&rm)
		switch domain.Tier(rm.Tier) {
		case domain.TierDefault:
			c.Defaults.Set(category, rule)
		case domain.TierProduct, domain.TierBatch:
			if cfg, ok := index[scopeIndexKey(domain.Tier(rm.Tier), rm.ScopeKey)]; ok {
				cfg.Rules.Set(category, rule)
			}
		case domain.TierCart:
			switch category {
			case domain.CategoryCartPrice:
				c.CartPriceRule = rule
			case domain.CategoryCartQuantity:
				c.CartQuantityRule = rule
			}
		}
	}

	buyGet := append([]BuyGetRuleModel(nil), model.BuyGetRules...)
	sort.SliceStable(buyGet, func(i, j int) bool { return buyGet[i].Position < buyGet[j].Position })
	for _, bg := range buyGet {
		c.BuyGetRules = append(c.BuyGetRules, domain.BuyGetRule{
			ID:          bg.RuleCode,
			Name:        bg.Name,
			IsEnabled:   bg.IsEnabled,
			ProductID:   bg.ProductID,
			BuyQuantity: bg.BuyQuantity,
			GetQuantity: bg.GetQuantity,
			Type:        domain.DiscountType(bg.Type),
			Amount:      bg.Amount,
		})
	}
	return c
}

// FromDomainCampaign 将领域模型转换为数据库模型, 规则按定义顺序记录 Position
func FromDomainCampaign(c *domain.Campaign) *CampaignModel {
	if c == nil {
		return nil
	}
	model := &CampaignModel{
		ID:                      c.ID,
		Name:                    c.Name,
		ValidFrom:               toNullTime(c.ValidFrom),
		ValidTo:                 toNullTime(c.ValidTo),
		IsActive:                c.IsActive,
		IsDefault:               c.IsDefault,
		IsOneTimePerTransaction: c.IsOneTimePerTransaction,
		Eligibility:             c.Eligibility,
		Version:                 c.Version,
		UpdatedAt:               c.UpdatedAt,
	}

	addBundle := func(tier domain.Tier, scopeKey string, bundle domain.RuleBundle) {
		for _, category := range domain.LineCategories {
			if r := bundle.Get(category); r != nil {
				model.Rules = append(model.Rules, fromDomainRule(c.ID, tier, scopeKey, category, r, len(model.Rules)))
			}
		}
	}
	addBundle(domain.TierDefault, "", c.Defaults)

	addScopes := func(tier domain.Tier, configs []domain.ScopeConfiguration) {
		for _, cfg := range configs {
			model.Scopes = append(model.Scopes, ScopeConfigModel{
				CampaignID: c.ID,
				Tier:       string(tier),
				ScopeKey:   cfg.ScopeKey,
				IsActive:   cfg.IsActive,
				Position:   len(model.Scopes),
			})
			addBundle(tier, cfg.ScopeKey, cfg.Rules)
		}
	}
	addScopes(domain.TierProduct, c.ProductConfigurations)
	addScopes(domain.TierBatch, c.BatchConfigurations)

	if c.CartPriceRule != nil {
		model.Rules = append(model.Rules, fromDomainRule(c.ID, domain.TierCart, "", domain.CategoryCartPrice, c.CartPriceRule, len(model.Rules)))
	}
	if c.CartQuantityRule != nil {
		model.Rules = append(model.Rules, fromDomainRule(c.ID, domain.TierCart, "", domain.CategoryCartQuantity, c.CartQuantityRule, len(model.Rules)))
	}

	for i, bg := range c.BuyGetRules {
		model.BuyGetRules = append(model.BuyGetRules, BuyGetRuleModel{
			CampaignID:  c.ID,
			RuleCode:    bg.ID,
			Name:        bg.Name,
			IsEnabled:   bg.IsEnabled,
			ProductID:   bg.ProductID,
			BuyQuantity: bg.BuyQuantity,
			GetQuantity: bg.GetQuantity,
			Type:        string(bg.Type),
			Amount:      bg.Amount,
			Position:    i,
		})
	}
	return model
}

func toDomainRule(m *RuleModel) *domain.Rule {
	return &domain.Rule{
		ID:             m.RuleCode,
		Name:           m.Name,
		IsEnabled:      m.IsEnabled,
		Type:           domain.DiscountType(m.Type),
		Amount:         m.Amount,
		ConditionMin:   m.ConditionMin,
		ApplyFixedOnce: m.ApplyFixedOnce,
	}
}

func fromDomainRule(campaignID string, tier domain.Tier, scopeKey string, category domain.Category, r *domain.Rule, position int) RuleModel {
	return RuleModel{
		CampaignID:     campaignID,
		Tier:           string(tier),
		ScopeKey:       scopeKey,
		Category:       string(category),
		RuleCode:       r.ID,
		Name:           r.Name,
		IsEnabled:      r.IsEnabled,
		Type:           string(r.Type),
		Amount:         r.Amount,
		ConditionMin:   r.ConditionMin,
		ApplyFixedOnce: r.ApplyFixedOnce,
		Position:       position,
	}
}

func scopeIndexKey(tier domain.Tier, key string) string {
	return string(tier) + "/" + key
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
