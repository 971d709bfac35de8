package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pricepoint/internal/service/discount/domain"
)

// GormCampaignRepository 是 CampaignRepository 的 GORM 实现
type GormCampaignRepository struct {
	db *gorm.DB
}

var _ domain.CampaignRepository = (*GormCampaignRepository)(nil)

// NewGormCampaignRepository 创建一个新的 GORM 仓储实例
func NewGormCampaignRepository(db *gorm.DB) *GormCampaignRepository {
	return &GormCampaignRepository{db: db}
}

// withChildren 预加载作用域、规则与买赠规则
func withChildren(db *gorm.DB) *gorm.DB {
	byPosition := func(db *gorm.DB) *gorm.DB { return db.Order("position") }
	return db.Preload("Scopes", byPosition).Preload("Rules", byPosition).Preload("BuyGetRules", byPosition)
}

func (r *GormCampaignRepository) FindByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var model CampaignModel
	err := withChildren(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrCampaignNotFound, "campaign %s", id)
		}
		return nil, errors.Wrap(err, "find campaign")
	}
	return ToDomainCampaign(&model), nil
}

func (r *GormCampaignRepository) FindDefault(ctx context.Context) (*domain.Campaign, error) {
	var model CampaignModel
	err := withChildren(r.db.WithContext(ctx)).
		Where("is_default = ? AND is_active = ?", true, true).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNoDefaultCampaign
		}
		return nil, errors.Wrap(err, "find default campaign")
	}
	return ToDomainCampaign(&model), nil
}

func (r *GormCampaignRepository) List(ctx context.Context) ([]*domain.Campaign, error) {
	var models []CampaignModel
	if err := withChildren(r.db.WithContext(ctx)).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list campaigns")
	}
	campaigns := make([]*domain.Campaign, 0, len(models))
	for i := range models {
		campaigns = append(campaigns, ToDomainCampaign(&models[i]))
	}
	return campaigns, nil
}

// Save 在一个事务中整体替换活动及其子表
func (r *GormCampaignRepository) Save(ctx context.Context, campaign *domain.Campaign) error {
	model := FromDomainCampaign(campaign)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 同一时间只允许一个默认活动
		if model.IsDefault {
			if err := tx.Model(&CampaignModel{}).
				Where("id <> ? AND is_default = ?", model.ID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		if err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(model).Error; err != nil {
			return err
		}

		for _, child := range []any{&ScopeConfigModel{}, &RuleModel{}, &BuyGetRuleModel{}} {
			if err := tx.Where("campaign_id = ?", model.ID).Delete(child).Error; err != nil {
				return err
			}
		}
		if len(model.Scopes) > 0 {
			if err := tx.Create(&model.Scopes).Error; err != nil {
				return err
			}
		}
		if len(model.Rules) > 0 {
			if err := tx.Create(&model.Rules).Error; err != nil {
				return err
			}
		}
		if len(model.BuyGetRules) > 0 {
			if err := tx.Create(&model.BuyGetRules).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrapf(domain.ErrDuplicateScopeKey, "campaign %s", campaign.ID)
		}
		return errors.Wrapf(err, "save campaign %s", campaign.ID)
	}
	return nil
}
