package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status 是一次评估的结果状态。只有 CONFIGURATION_ERROR 和 INTERNAL_ERROR 表示失败。
type Status string

const (
	StatusOK                 Status = "OK"
	StatusCampaignInactive   Status = "CAMPAIGN_INACTIVE"
	StatusNotEligible        Status = "NOT_ELIGIBLE"
	StatusConfigurationError Status = "CONFIGURATION_ERROR"
	StatusInternalError      Status = "INTERNAL_ERROR"
)

// WarningCode 标识非致命的评估告警。
type WarningCode string

const (
	WarningAmbiguousScope WarningCode = "AMBIGUOUS_SCOPE"
	WarningCapped         WarningCode = "CAPPED"
	WarningCampaign       WarningCode = "CAMPAIGN"
)

// Warning 是随结果返回的非致命告警。
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Contribution 是一条规则对某行 (或整单) 的折扣贡献。
type Contribution struct {
	RuleKey  string          `json:"rule_key"` // 规则的稳定标识, 用于单次生效跟踪
	RuleName string          `json:"rule_name"`
	Category Category        `json:"category"`
	Tier     Tier            `json:"tier"`
	ScopeKey string          `json:"scope_key,omitempty"`
	Amount   decimal.Decimal `json:"amount"`

	FixedOnce      bool `json:"fixed_once,omitempty"`
	OneTime        bool `json:"one_time,omitempty"`        // 在"整单仅生效一次"约束下计入
	AlreadyApplied bool `json:"already_applied,omitempty"` // 已在前面的行计入, 本次金额为 0
	Capped         bool `json:"capped,omitempty"`          // 因封顶被削减
}

// LineDiscount 是一行的折扣明细。
type LineDiscount struct {
	Index         int             `json:"index"`
	ProductID     string          `json:"product_id"`
	BatchID       string          `json:"batch_id,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	OriginalValue decimal.Decimal `json:"original_value"`
	Discount      decimal.Decimal `json:"discount"`
	NetValue      decimal.Decimal `json:"net_value"`
	Capped        bool            `json:"capped,omitempty"`
	Contributions []Contribution  `json:"contributions"`
}

// AppliedRule 是扁平化的已应用规则摘要, 供审计面板展示。
type AppliedRule struct {
	RuleKey   string          `json:"rule_key"`
	RuleName  string          `json:"rule_name"`
	Category  Category        `json:"category"`
	Tier      Tier            `json:"tier"`
	ProductID string          `json:"product_id,omitempty"`
	OneTime   bool            `json:"one_time"`
	Amount    decimal.Decimal `json:"amount"`
}

// DiscountResult 是一次评估的完整结果。它是纯值, 不引用活动或评估内部状态。
type DiscountResult struct {
	EvaluationID string    `json:"evaluation_id,omitempty"`
	CampaignID   string    `json:"campaign_id"`
	CartID       string    `json:"cart_id,omitempty"`
	EvaluatedAt  time.Time `json:"evaluated_at,omitempty"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	OriginalSubtotal  decimal.Decimal `json:"original_subtotal"`
	TotalItemDiscount decimal.Decimal `json:"total_item_discount"`
	TotalCartDiscount decimal.Decimal `json:"total_cart_discount"`
	TotalDiscount     decimal.Decimal `json:"total_discount"`
	FinalTotal        decimal.Decimal `json:"final_total"`

	Lines         []LineDiscount `json:"lines"`
	CartDiscounts []Contribution `json:"cart_discounts"`
	AppliedRules  []AppliedRule  `json:"applied_rules"`
	Warnings      []Warning      `json:"warnings,omitempty"`
}

// Succeeded 报告评估是否正常完成 (包括活动不适用的情况)。
func (r *DiscountResult) Succeeded() bool {
	return r.Status != StatusConfigurationError && r.Status != StatusInternalError
}
