package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pricepoint/internal/pkg/logger"
	"pricepoint/internal/service/discount/application/engine"
	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/domain/port"
)

// defaultCacheKey 是默认活动在快照缓存中的键
const defaultCacheKey = "default"

// DiscountService 定义了折扣评估的业务用例
type DiscountService struct {
	engine *engine.Engine
	repo   domain.CampaignRepository
	tracer trace.Tracer

	cache      port.CampaignCache
	cacheTTL   time.Duration
	publisher  port.EventPublisher
	audit      port.AuditBroadcaster
	metrics    port.MetricsRecorder
	batchLimit int
	now        func() time.Time
	newID      func() string
}

// ServiceOption 配置 DiscountService 的可选依赖
type ServiceOption func(*DiscountService)

func WithCache(cache port.CampaignCache, ttl time.Duration) ServiceOption {
	return func(s *DiscountService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithPublisher(p port.EventPublisher) ServiceOption {
	return func(s *DiscountService) { s.publisher = p }
}

func WithAuditBroadcaster(a port.AuditBroadcaster) ServiceOption {
	return func(s *DiscountService) { s.audit = a }
}

func WithMetrics(m port.MetricsRecorder) ServiceOption {
	return func(s *DiscountService) { s.metrics = m }
}

// WithBatchLimit 限制批量评估的并发数
func WithBatchLimit(n int) ServiceOption {
	return func(s *DiscountService) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *DiscountService) { s.now = now }
}

// NewDiscountService 创建一个新的折扣服务实例
func NewDiscountService(eng *engine.Engine, repo domain.CampaignRepository, tracer trace.Tracer, opts ...ServiceOption) *DiscountService {
	s := &DiscountService{
		engine:     eng,
		repo:       repo,
		tracer:     tracer,
		batchLimit: 8,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate 加载活动并评估购物车。
// 只有活动无法加载时返回 error; 配置错误等评估失败体现在结果的 Status 中。
func (s *DiscountService) Evaluate(ctx context.Context, req *EvaluateRequest) (*domain.DiscountResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.Evaluate")
	defer span.End()

	span.SetAttributes(
		attribute.String("cart.id", req.Cart.ID),
		attribute.String("campaign.id", req.CampaignID),
		attribute.Int("cart.lines", len(req.Cart.Lines)),
	)

	campaign, err := s.loadCampaign(ctx, req.CampaignID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cart := req.Cart
	if cart.At.IsZero() {
		cart.At = s.now().UTC()
	}

	start := time.Now()
	result := s.engine.Evaluate(ctx, campaign, &cart)
	elapsed := time.Since(start)

	result.EvaluationID = s.newID()
	result.EvaluatedAt = cart.At
	span.SetAttributes(
		attribute.String("evaluation.id", result.EvaluationID),
		attribute.String("evaluation.status", string(result.Status)),
		attribute.String("discount.total", result.TotalDiscount.String()),
	)

	if s.metrics != nil {
		s.metrics.ObserveEvaluation(&result, elapsed)
	}

	log := logger.Ctx(ctx)
	if !result.Succeeded() {
		log.Warn().Str("evaluation_id", result.EvaluationID).Str("status", string(result.Status)).
			Str("error", result.Error).Msg("discount evaluation failed")
	} else {
		log.Info().Str("evaluation_id", result.EvaluationID).Str("campaign_id", result.CampaignID).
			Str("total_discount", result.TotalDiscount.String()).Str("final_total", result.FinalTotal.String()).
			Msg("discount evaluated")
	}

	// 下游通知失败不影响本次结果
	if s.publisher != nil {
		if err := s.publisher.PublishEvaluated(ctx, &result); err != nil {
			span.AddEvent("publish DiscountEvaluated failed")
			log.Warn().Err(err).Str("evaluation_id", result.EvaluationID).Msg("failed to publish evaluation event")
		}
	}
	if s.audit != nil {
		s.audit.Broadcast(ctx, &result)
	}

	return &result, nil
}

// EvaluateBatch 并发评估多个购物车, 结果与请求顺序一致
func (s *DiscountService) EvaluateBatch(ctx context.Context, reqs []EvaluateRequest) ([]BatchItem, error) {
	ctx, span := s.tracer.Start(ctx, "service.EvaluateBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(reqs)))

	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)
	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := s.Evaluate(gctx, &reqs[i])
			if err != nil {
				items[i] = BatchItem{Error: err.Error()}
				return nil
			}
			items[i] = BatchItem{Result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return items, nil
}

// HandleCampaignUpdated 失效快照并预热最新配置, 由活动变更事件驱动
func (s *DiscountService) HandleCampaignUpdated(ctx context.Context, campaignID string) error {
	ctx, span := s.tracer.Start(ctx, "service.HandleCampaignUpdated")
	defer span.End()
	span.SetAttributes(attribute.String("campaign.id", campaignID))

	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, campaignID, defaultCacheKey); err != nil {
		span.RecordError(err)
		return err
	}
	if _, err := s.loadCampaign(ctx, campaignID); err != nil && !errors.Is(err, domain.ErrCampaignNotFound) {
		span.RecordError(err)
		return err
	}
	logger.Ctx(ctx).Info().Str("campaign_id", campaignID).Msg("campaign snapshot refreshed")
	return nil
}

// loadCampaign 先读快照缓存, 未命中再查仓储并回填
func (s *DiscountService) loadCampaign(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	key := campaignID
	if key == "" {
		key = defaultCacheKey
	}

	if s.cache != nil {
		campaign, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("campaign cache unavailable, falling back to repository")
		}
		if s.metrics != nil && err == nil {
			s.metrics.ObserveCacheLookup(hit)
		}
		if hit {
			return campaign, nil
		}
	}

	var (
		campaign *domain.Campaign
		err      error
	)
	if campaignID == "" {
		campaign, err = s.repo.FindDefault(ctx)
	} else {
		campaign, err = s.repo.FindByID(ctx, campaignID)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, campaign, s.cacheTTL); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to cache campaign snapshot")
		}
	}
	return campaign, nil
}
