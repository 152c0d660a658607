package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"pricewise/internal/service/pricing/domain"
)

// GormRuleRepository 是 domain.RuleRepository 的 GORM 实现
type GormRuleRepository struct {
	db *gorm.DB
}

// NewGormRuleRepository 创建一个新的 GORM 规则仓储实例
func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

// ActiveRules 按优先级降序返回所有启用的规则，同优先级按创建时间保持插入顺序
func (r *GormRuleRepository) ActiveRules(ctx context.Context) ([]domain.PricingRule, error) {
	var models []PricingRuleModel
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority DESC").Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "query active rules")
	}
	return toDomainRules(models), nil
}

func (r *GormRuleRepository) List(ctx context.Context) ([]domain.PricingRule, error) {
	var models []PricingRuleModel
	if err := r.db.WithContext(ctx).Order("priority DESC").Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list rules")
	}
	return toDomainRules(models), nil
}

func (r *GormRuleRepository) FindByID(ctx context.Context, id string) (*domain.PricingRule, error) {
	var model PricingRuleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, errors.Wrapf(err, "find rule %s", id)
	}
	return ToDomainRule(&model), nil
}

// Save 按主键插入或整行覆盖
func (r *GormRuleRepository) Save(ctx context.Context, rule *domain.PricingRule) error {
	if err := r.db.WithContext(ctx).Save(FromDomainRule(rule)).Error; err != nil {
		return errors.Wrapf(err, "save rule %s", rule.ID)
	}
	return nil
}

func (r *GormRuleRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&PricingRuleModel{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "delete rule %s", id)
	}
	if result.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

func toDomainRules(models []PricingRuleModel) []domain.PricingRule {
	rules := make([]domain.PricingRule, 0, len(models))
	for i := range models {
		rules = append(rules, *ToDomainRule(&models[i]))
	}
	return rules
}

// GormRecommendationRepository 是 domain.RecommendationRepository 的 GORM 实现
type GormRecommendationRepository struct {
	db *gorm.DB
}

func NewGormRecommendationRepository(db *gorm.DB) *GormRecommendationRepository {
	return &GormRecommendationRepository{db: db}
}

func (r *GormRecommendationRepository) Save(ctx context.Context, rec *domain.PricingRecommendation) error {
	if err := r.db.WithContext(ctx).Create(FromDomainRecommendation(rec)).Error; err != nil {
		return errors.Wrapf(err, "save recommendation %s", rec.ID)
	}
	return nil
}

func (r *GormRecommendationRepository) FindByID(ctx context.Context, id string) (*domain.PricingRecommendation, error) {
	var model RecommendationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecommendationNotFound
		}
		return nil, errors.Wrapf(err, "find recommendation %s", id)
	}
	return ToDomainRecommendation(&model), nil
}

// ListByProduct 返回某商品最新的 limit 条推荐，新的在前
func (r *GormRecommendationRepository) ListByProduct(ctx context.Context, productID string, limit int) ([]domain.PricingRecommendation, error) {
	var models []RecommendationModel
	q := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list recommendations for %s", productID)
	}
	recs := make([]domain.PricingRecommendation, 0, len(models))
	for i := range models {
		recs = append(recs, *ToDomainRecommendation(&models[i]))
	}
	return recs, nil
}
