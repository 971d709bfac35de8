package domain

import "time"

// DiscountEvaluated 在每次评估完成后发布, 供小票、交易持久化与审计消费。
type DiscountEvaluated struct {
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Result     *DiscountResult `json:"result"`
}

// CampaignUpdated 在活动配置写入后发布, 各实例据此失效本地快照。
type CampaignUpdated struct {
	EventID    string    `json:"event_id"`
	CampaignID string    `json:"campaign_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
