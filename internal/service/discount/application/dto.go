package application

import "pricepoint/internal/service/discount/domain"

// EvaluateRequest 是单个购物车的评估请求。CampaignID 为空时使用默认活动。
type EvaluateRequest struct {
	CampaignID string      `json:"campaign_id,omitempty"`
	Cart       domain.Cart `json:"cart"`
}

// BatchEvaluateRequest 是批量评估的请求体
type BatchEvaluateRequest struct {
	Requests []EvaluateRequest `json:"requests"`
}

// BatchItem 是批量评估中单个请求的结果, 单项失败不影响其他请求
type BatchItem struct {
	Result *domain.DiscountResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// BatchEvaluateResponse 按请求顺序返回结果
type BatchEvaluateResponse struct {
	Items []BatchItem `json:"items"`
}

// SaveCampaignResponse 返回写入后的版本号
type SaveCampaignResponse struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// ImportReport 汇总一次目录导入
type ImportReport struct {
	Saved  []string `json:"saved"`
	Failed []string `json:"failed,omitempty"`
}
