// internal/service/discount/domain/port/port.go
package port

import (
	"context"
	"time"

	"pricepoint/internal/service/discount/domain"
)

// CampaignCache 是活动快照的读穿缓存。
type CampaignCache interface {
	// Get 在未命中时返回 (nil, false, nil)。
	Get(ctx context.Context, key string) (*domain.Campaign, bool, error)
	Set(ctx context.Context, key string, campaign *domain.Campaign, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// EventPublisher 向下游 (小票、交易持久化、审计) 发布评估结果与活动变更。
type EventPublisher interface {
	PublishEvaluated(ctx context.Context, result *domain.DiscountResult) error
	PublishCampaignUpdated(ctx context.Context, campaignID string) error
}

// AuditBroadcaster 将评估摘要推送给在线的审计面板。
type AuditBroadcaster interface {
	Broadcast(ctx context.Context, result *domain.DiscountResult)
}

// Locker 是配置写入边界上的分布式锁。
type Locker interface {
	// Lock 阻塞直到获得锁, 返回释放函数。
	Lock(ctx context.Context, resource string) (unlock func() error, err error)
}

// MetricsRecorder 记录评估与缓存指标。
type MetricsRecorder interface {
	ObserveEvaluation(result *domain.DiscountResult, elapsed time.Duration)
	ObserveCacheLookup(hit bool)
}
