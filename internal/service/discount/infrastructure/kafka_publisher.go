package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"pricepoint/internal/pkg/mq"
	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/domain/port"
)

// KafkaEventPublisher 将评估结果与活动变更写入两个 topic
type KafkaEventPublisher struct {
	results   mq.MessageWriter
	campaigns mq.MessageWriter
	now       func() time.Time
}

var _ port.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(results, campaigns mq.MessageWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{results: results, campaigns: campaigns, now: time.Now}
}

// PublishEvaluated 以购物车 ID 为 key, 保证同一购物车的结果有序
func (p *KafkaEventPublisher) PublishEvaluated(ctx context.Context, result *domain.DiscountResult) error {
	event := domain.DiscountEvaluated{
		EventID:    uuid.NewString(),
		OccurredAt: p.now().UTC(),
		Result:     result,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode DiscountEvaluated")
	}
	key := result.CartID
	if key == "" {
		key = result.EvaluationID
	}
	return errors.Wrap(mq.ProduceMessage(ctx, p.results, []byte(key), value), "publish DiscountEvaluated")
}

func (p *KafkaEventPublisher) PublishCampaignUpdated(ctx context.Context, campaignID string) error {
	event := domain.CampaignUpdated{
		EventID:    uuid.NewString(),
		CampaignID: campaignID,
		OccurredAt: p.now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode CampaignUpdated")
	}
	return errors.Wrap(mq.ProduceMessage(ctx, p.campaigns, []byte(campaignID), value), "publish CampaignUpdated")
}
