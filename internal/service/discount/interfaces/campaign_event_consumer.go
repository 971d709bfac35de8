package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pricepoint/internal/pkg/logger"
	"pricepoint/internal/pkg/mq"
	"pricepoint/internal/service/discount/domain"
)

// CampaignUpdateHandler 处理活动变更事件
type CampaignUpdateHandler interface {
	HandleCampaignUpdated(ctx context.Context, campaignID string) error
}

// CampaignEventConsumer 是一个驱动适配器，它监听活动变更 topic 并刷新本实例的快照
type CampaignEventConsumer struct {
	reader         *kafka.Reader
	handler        CampaignUpdateHandler
	failureHandler *mq.FailureHandler
	wg             sync.WaitGroup
	stopped        atomic.Bool
}

func NewCampaignEventConsumer(reader *kafka.Reader, handler CampaignUpdateHandler, failureHandler *mq.FailureHandler) *CampaignEventConsumer {
	return &CampaignEventConsumer{
		reader:         reader,
		handler:        handler,
		failureHandler: failureHandler,
	}
}

// Start 开始监听 Kafka 主题, 在后台 goroutine 中运行
func (a *CampaignEventConsumer) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Campaign event consumer started.")
		for {
			if a.stopped.Load() {
				return
			}
			// 使用 FetchMessage 手动提交 offset
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || a.stopped.Load() {
					logger.Ctx(ctx).Info().Msg("🛑 Campaign event consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(time.Second)
				continue
			}

			msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
			if err := a.processMessage(msgCtx, msg); err != nil {
				a.failureHandler.Handle(msgCtx, msg, err)
			}

			// 无论成功或失败（已移交死信），都提交 offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit message")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者
func (a *CampaignEventConsumer) Stop(ctx context.Context) {
	a.stopped.Store(true)
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to close kafka reader")
	}
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Campaign event consumer stopped.")
}

// processMessage 反序列化消息并调用应用服务
func (a *CampaignEventConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	ctx, span := otel.Tracer("pricepoint/campaign-events").Start(ctx, "consumer.CampaignUpdated")
	defer span.End()

	var event domain.CampaignUpdated
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "decode CampaignUpdated")
	}
	if event.CampaignID == "" {
		return errors.New("CampaignUpdated without campaign_id")
	}
	span.SetAttributes(attribute.String("campaign.id", event.CampaignID), attribute.String("event.id", event.EventID))

	if err := a.handler.HandleCampaignUpdated(ctx, event.CampaignID); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
