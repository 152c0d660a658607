package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pricewise/internal/pkg/logger"
	"pricewise/internal/pkg/redis"
	"pricewise/internal/service/pricing/domain"
)

const activeRulesKey = "pricing:rules:active"

// CachedRuleRepository 在规则仓储前面加一层 Redis 旁路缓存。
// 只缓存 ActiveRules，写操作后删除缓存。Redis 故障时直接回源。
type CachedRuleRepository struct {
	domain.RuleRepository
	client goredis.Cmdable
	ttl    time.Duration
}

func NewCachedRuleRepository(next domain.RuleRepository, client goredis.Cmdable, ttl time.Duration) *CachedRuleRepository {
	return &CachedRuleRepository{RuleRepository: next, client: client, ttl: ttl}
}

func (c *CachedRuleRepository) ActiveRules(ctx context.Context) ([]domain.PricingRule, error) {
	log := logger.Ctx(ctx)
	raw, err := c.client.Get(ctx, activeRulesKey).Bytes()
	switch {
	case err == nil:
		var rules []domain.PricingRule
		if jsonErr := json.Unmarshal(raw, &rules); jsonErr == nil {
			return rules, nil
		}
		log.Warn().Msg("Cached rule set is corrupt, reloading from repository")
	case !redis.IsNil(err):
		log.Warn().Err(err).Msg("Rule cache unavailable, falling back to repository")
	}

	rules, err := c.RuleRepository.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(rules); err == nil {
		if err := c.client.Set(ctx, activeRulesKey, raw, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to populate rule cache")
		}
	}
	return rules, nil
}

func (c *CachedRuleRepository) Save(ctx context.Context, rule *domain.PricingRule) error {
	if err := c.RuleRepository.Save(ctx, rule); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedRuleRepository) Delete(ctx context.Context, id string) error {
	if err := c.RuleRepository.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedRuleRepository) invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, activeRulesKey).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Failed to invalidate rule cache")
	}
}
