package application

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pricepoint/internal/pkg/logger"
	"pricepoint/internal/service/discount/application/engine"
	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/domain/port"
)

// campaignIDPattern 限制活动ID的字符, 它会拼进 zk 锁路径和 redis key
var campaignIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// CampaignAdminService 负责活动配置的写入与查询。
// 作用域键唯一性在这里 (写入边界) 校验, 评估时只做告警。
type CampaignAdminService struct {
	engine    *engine.Engine
	repo      domain.CampaignRepository
	tracer    trace.Tracer
	cache     port.CampaignCache
	publisher port.EventPublisher
	locker    port.Locker
	now       func() time.Time
}

// AdminOption 配置 CampaignAdminService 的可选依赖
type AdminOption func(*CampaignAdminService)

func WithAdminCache(cache port.CampaignCache) AdminOption {
	return func(s *CampaignAdminService) { s.cache = cache }
}

func WithAdminPublisher(p port.EventPublisher) AdminOption {
	return func(s *CampaignAdminService) { s.publisher = p }
}

func WithLocker(l port.Locker) AdminOption {
	return func(s *CampaignAdminService) { s.locker = l }
}

func WithAdminClock(now func() time.Time) AdminOption {
	return func(s *CampaignAdminService) { s.now = now }
}

func NewCampaignAdminService(eng *engine.Engine, repo domain.CampaignRepository, tracer trace.Tracer, opts ...AdminOption) *CampaignAdminService {
	s := &CampaignAdminService{engine: eng, repo: repo, tracer: tracer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate 执行写入前的全部校验, 但不持久化
func (s *CampaignAdminService) Validate(c *domain.Campaign) error {
	errs := &domain.ConfigurationError{}
	switch {
	case strings.TrimSpace(c.ID) == "":
		errs.Add("id", "must not be empty")
	case !campaignIDPattern.MatchString(c.ID):
		errs.Add("id", "%q may only contain letters, digits, '.', '_' and '-' (max 64, starting with a letter or digit)", c.ID)
	}
	if err := s.engine.ValidateCampaign(c); err != nil {
		var cfgErr *domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			return err
		}
		errs.Merge(cfgErr)
	}
	if err := errs.OrNil(); err != nil {
		return err
	}
	if dups := c.DuplicateScopeKeys(); len(dups) > 0 {
		return errors.Wrapf(domain.ErrDuplicateScopeKey, "%s", strings.Join(dups, ", "))
	}
	return nil
}

// SaveCampaign 校验并持久化活动, 写入在分布式锁内完成
func (s *CampaignAdminService) SaveCampaign(ctx context.Context, c *domain.Campaign) (*domain.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "service.SaveCampaign")
	defer span.End()
	span.SetAttributes(attribute.String("campaign.id", c.ID))

	fail := func(err error) (*domain.Campaign, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.Validate(c); err != nil {
		return fail(err)
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, "campaign-"+c.ID)
		if err != nil {
			return fail(errors.Wrap(err, "acquire campaign lock"))
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("campaign_id", c.ID).Msg("failed to release campaign lock")
			}
		}()
		span.AddEvent("campaign lock acquired")
	}

	saved := *c
	existing, err := s.repo.FindByID(ctx, c.ID)
	switch {
	case err == nil:
		saved.Version = existing.Version + 1
	case errors.Is(err, domain.ErrCampaignNotFound):
		saved.Version = 1
	default:
		return fail(err)
	}
	saved.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, &saved); err != nil {
		return fail(err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, saved.ID, defaultCacheKey); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("campaign_id", saved.ID).Msg("failed to invalidate campaign cache")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishCampaignUpdated(ctx, saved.ID); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("campaign_id", saved.ID).Msg("failed to publish campaign update")
		}
	}

	logger.Ctx(ctx).Info().Str("campaign_id", saved.ID).Int64("version", saved.Version).Msg("campaign saved")
	return &saved, nil
}

// ImportCatalog 逐个保存目录中的活动, 单个失败不会中断其余活动
func (s *CampaignAdminService) ImportCatalog(ctx context.Context, campaigns []*domain.Campaign) (*ImportReport, error) {
	report := &ImportReport{}
	var firstErr error
	for _, c := range campaigns {
		if _, err := s.SaveCampaign(ctx, c); err != nil {
			report.Failed = append(report.Failed, c.ID)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "campaign %q", c.ID)
			}
			continue
		}
		report.Saved = append(report.Saved, c.ID)
	}
	return report, firstErr
}

func (s *CampaignAdminService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetCampaign")
	defer span.End()
	return s.repo.FindByID(ctx, id)
}

func (s *CampaignAdminService) ListCampaigns(ctx context.Context) ([]*domain.Campaign, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListCampaigns")
	defer span.End()
	return s.repo.List(ctx)
}
