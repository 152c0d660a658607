package infrastructure

import (
	"context"
	"sort"
	"sync"

	"pricewise/internal/service/pricing/domain"
)

// MemoryRuleRepository 是进程内的规则仓储，MySQL 未启用时使用
type MemoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]domain.PricingRule
	order []string // 插入顺序，用于同优先级排序
}

func NewMemoryRuleRepository(seed ...domain.PricingRule) *MemoryRuleRepository {
	r := &MemoryRuleRepository{rules: map[string]domain.PricingRule{}}
	for _, rule := range seed {
		_ = r.Save(context.Background(), &rule)
	}
	return r
}

func (r *MemoryRuleRepository) ActiveRules(ctx context.Context) ([]domain.PricingRule, error) {
	all, _ := r.List(ctx)
	out := all[:0]
	for _, rule := range all {
		if rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *MemoryRuleRepository) List(_ context.Context) ([]domain.PricingRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PricingRule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rules[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (r *MemoryRuleRepository) FindByID(_ context.Context, id string) (*domain.PricingRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	return &rule, nil
}

func (r *MemoryRuleRepository) Save(_ context.Context, rule *domain.PricingRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		r.order = append(r.order, rule.ID)
	}
	r.rules[rule.ID] = *rule
	return nil
}

func (r *MemoryRuleRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return domain.ErrRuleNotFound
	}
	delete(r.rules, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// MemoryRecommendationRepository 是进程内的推荐仓储
type MemoryRecommendationRepository struct {
	mu   sync.RWMutex
	recs []domain.PricingRecommendation
}

func NewMemoryRecommendationRepository() *MemoryRecommendationRepository {
	return &MemoryRecommendationRepository{}
}

func (r *MemoryRecommendationRepository) Save(_ context.Context, rec *domain.PricingRecommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, *rec)
	return nil
}

func (r *MemoryRecommendationRepository) FindByID(_ context.Context, id string) (*domain.PricingRecommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.recs {
		if r.recs[i].ID == id {
			rec := r.recs[i]
			return &rec, nil
		}
	}
	return nil, domain.ErrRecommendationNotFound
}

// ListByProduct 新的在前
func (r *MemoryRecommendationRepository) ListByProduct(_ context.Context, productID string, limit int) ([]domain.PricingRecommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PricingRecommendation
	for i := len(r.recs) - 1; i >= 0; i-- {
		if r.recs[i].ProductID != productID {
			continue
		}
		out = append(out, r.recs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MemoryMarketDataStore 是进程内的市场快照存储，Redis 未启用时使用
type MemoryMarketDataStore struct {
	mu   sync.RWMutex
	data map[string]domain.MarketData
}

func NewMemoryMarketDataStore() *MemoryMarketDataStore {
	return &MemoryMarketDataStore{data: map[string]domain.MarketData{}}
}

func (s *MemoryMarketDataStore) Get(_ context.Context, productID string) (*domain.MarketData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.data[productID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *MemoryMarketDataStore) Put(_ context.Context, data *domain.MarketData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[data.ProductID] = *data
	return nil
}
