package domain

import "context"

// RuleSource 提供当前生效的规则集合，可以来自数据库，也可以来自配置中心。
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]PricingRule, error)
}

// RuleRepository 是规则的持久化接口，供规则管理用例使用。
type RuleRepository interface {
	RuleSource
	List(ctx context.Context) ([]PricingRule, error)
	FindByID(ctx context.Context, id string) (*PricingRule, error)
	Save(ctx context.Context, rule *PricingRule) error
	Delete(ctx context.Context, id string) error
}

// RecommendationRepository 保存已生成的推荐，供后续批量应用。
type RecommendationRepository interface {
	Save(ctx context.Context, rec *PricingRecommendation) error
	FindByID(ctx context.Context, id string) (*PricingRecommendation, error)
	ListByProduct(ctx context.Context, productID string, limit int) ([]PricingRecommendation, error)
}

// MarketDataStore 保存商品的最新市场快照。未命中时返回 (nil, nil)。
type MarketDataStore interface {
	Get(ctx context.Context, productID string) (*MarketData, error)
	Put(ctx context.Context, data *MarketData) error
}
