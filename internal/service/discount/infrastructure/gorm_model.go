package infrastructure

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// CampaignModel 对应数据库中的 discount_campaign 表
type CampaignModel struct {
	ID                      string `gorm:"primaryKey;size:64"`
	Name                    string `gorm:"size:128"`
	ValidFrom               sql.NullTime
	ValidTo                 sql.NullTime
	IsActive                bool
	IsDefault               bool `gorm:"index"`
	IsOneTimePerTransaction bool
	Eligibility             string `gorm:"type:text"`
	Version                 int64
	CreatedAt               time.Time
	UpdatedAt               time.Time

	// 关联关系
	Scopes      []ScopeConfigModel `gorm:"foreignKey:CampaignID"`
	Rules       []RuleModel        `gorm:"foreignKey:CampaignID"`
	BuyGetRules []BuyGetRuleModel  `gorm:"foreignKey:CampaignID"`
}

// TableName 指定 GORM 应该使用的表名
func (CampaignModel) TableName() string {
	return "discount_campaign"
}

// ScopeConfigModel 是商品或批次的作用域配置。
// (campaign_id, tier, scope_key) 唯一, 重复键在写入时即被拒绝。
type ScopeConfigModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	CampaignID string `gorm:"size:64;uniqueIndex:uk_campaign_scope,priority:1"`
	Tier       string `gorm:"size:16;uniqueIndex:uk_campaign_scope,priority:2"`
	ScopeKey   string `gorm:"size:64;uniqueIndex:uk_campaign_scope,priority:3"`
	IsActive   bool
	Position   int
}

func (ScopeConfigModel) TableName() string {
	return "discount_scope_config"
}

// RuleModel 存储所有层级的规则, 通过 tier + scope_key + category 定位槽位
type RuleModel struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	CampaignID     string `gorm:"size:64;index:idx_rule_campaign"`
	Tier           string `gorm:"size:16"`
	ScopeKey       string `gorm:"size:64"`
	Category       string `gorm:"size:32"`
	RuleCode       string `gorm:"size:64"`
	Name           string `gorm:"size:128"`
	IsEnabled      bool
	Type           string              `gorm:"size:16"`
	Amount         decimal.Decimal     `gorm:"type:decimal(14,4)"`
	ConditionMin   decimal.NullDecimal `gorm:"type:decimal(14,4)"`
	ApplyFixedOnce bool
	Position       int
}

func (RuleModel) TableName() string {
	return "discount_rule"
}

// BuyGetRuleModel 对应 discount_buy_get_rule 表
type BuyGetRuleModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	CampaignID  string `gorm:"size:64;index:idx_buy_get_campaign"`
	RuleCode    string `gorm:"size:64"`
	Name        string `gorm:"size:128"`
	IsEnabled   bool
	ProductID   string          `gorm:"size:64"`
	BuyQuantity decimal.Decimal `gorm:"type:decimal(14,4)"`
	GetQuantity decimal.Decimal `gorm:"type:decimal(14,4)"`
	Type        string          `gorm:"size:16"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,4)"`
	Position    int
}

func (BuyGetRuleModel) TableName() string {
	return "discount_buy_get_rule"
}
