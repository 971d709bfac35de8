package domain

import "context"

// CampaignRepository 定义了活动配置的持久化接口
// 这是领域层与基础设施层之间的"插座"
type CampaignRepository interface {
	FindByID(ctx context.Context, id string) (*Campaign, error)
	// FindDefault 返回当前启用的默认活动。
	FindDefault(ctx context.Context) (*Campaign, error)
	List(ctx context.Context) ([]*Campaign, error)
	Save(ctx context.Context, campaign *Campaign) error
}

// Fact 是提供给资格表达式的整单事实。
type Fact struct {
	Subtotal float64
	Quantity float64
	Lines    int64
	Products []string
	Batches  []string
}

// RuleEngine 评估活动的资格表达式。
type RuleEngine interface {
	// Compile 检查表达式是否合法, 供配置校验使用。
	Compile(expression string) error
	Evaluate(expression string, fact Fact) (bool, error)
}
