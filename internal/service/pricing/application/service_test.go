package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"

	"pricewise/internal/pkg/metrics"
	"pricewise/internal/service/pricing/domain"
)

type memRules struct {
	mu    sync.Mutex
	rules map[string]domain.PricingRule
	order []string
}

func newMemRules(rules ...domain.PricingRule) *memRules {
	m := &memRules{rules: map[string]domain.PricingRule{}}
	for _, r := range rules {
		m.rules[r.ID] = r
		m.order = append(m.order, r.ID)
	}
	return m
}

func (m *memRules) ActiveRules(ctx context.Context) ([]domain.PricingRule, error) {
	all, _ := m.List(ctx)
	var out []domain.PricingRule
	for _, r := range all {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRules) List(context.Context) ([]domain.PricingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PricingRule, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rules[id])
	}
	return out, nil
}

func (m *memRules) FindByID(_ context.Context, id string) (*domain.PricingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	return &r, nil
}

func (m *memRules) Save(_ context.Context, r *domain.PricingRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; !ok {
		m.order = append(m.order, r.ID)
	}
	m.rules[r.ID] = *r
	return nil
}

func (m *memRules) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return domain.ErrRuleNotFound
	}
	delete(m.rules, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

type memRecommendations struct {
	mu   sync.Mutex
	recs []domain.PricingRecommendation
}

func (m *memRecommendations) Save(_ context.Context, r *domain.PricingRecommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *r)
	return nil
}

func (m *memRecommendations) FindByID(_ context.Context, id string) (*domain.PricingRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, domain.ErrRecommendationNotFound
}

func (m *memRecommendations) ListByProduct(_ context.Context, productID string, limit int) ([]domain.PricingRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PricingRecommendation
	for i := len(m.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.recs[i].ProductID == productID {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}

type stubMarket struct {
	data map[string]*domain.MarketData
	err  error
}

func (s stubMarket) Get(_ context.Context, id string) (*domain.MarketData, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.data[id], nil
}

func (s stubMarket) Put(_ context.Context, d *domain.MarketData) error {
	if s.err != nil {
		return s.err
	}
	s.data[d.ProductID] = d
	return nil
}

type fakeCatalog struct {
	mu      sync.Mutex
	prices  map[string]float64
	failFor map[string]bool
}

func (f *fakeCatalog) UpdateVariantPrice(_ context.Context, variantID string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[variantID] {
		return fmt.Errorf("variant %s rejected", variantID)
	}
	if f.prices == nil {
		f.prices = map[string]float64{}
	}
	f.prices[variantID] = price
	return nil
}

type countingLocker struct {
	mu     sync.Mutex
	locked map[string]int
}

func (c *countingLocker) Lock(_ context.Context, productID string) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked == nil {
		c.locked = map[string]int{}
	}
	c.locked[productID]++
	return func() error { return nil }, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, r *domain.PricingRecommendation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, r.ID)
	return p.err
}

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(opts ...Option) *PricingService {
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
		WithMetrics(metrics.NewPricingMetrics(prometheus.NewRegistry())),
	}
	return NewPricingService(domain.NewCalculator(nil), noop.NewTracerProvider().Tracer("test"), append(base, opts...)...)
}

func lowStock() domain.PricingRule {
	return domain.PricingRule{
		ID:         "low-stock",
		IsActive:   true,
		Priority:   10,
		Conditions: []domain.PricingCondition{{Field: "inventory", Operator: domain.OpLessThan, Value: domain.Number(50)}},
		Actions:    []domain.PricingAction{{Type: domain.ActionAdjustPercentage, Value: 10}},
	}
}

func TestCalculateUsesStoredRulesAndMarketStore(t *testing.T) {
	market := &domain.MarketData{ProductID: "p1", DemandLevel: domain.DemandHigh, LastUpdated: fixedNow.Add(-48 * time.Hour)}
	svc := newTestService(
		WithRuleRepository(newMemRules(lowStock())),
		WithMarketDataStore(stubMarket{data: map[string]*domain.MarketData{"p1": market}}),
	)
	res, err := svc.Calculate(context.Background(), &CalculateRequest{
		Product:        domain.Product{ID: "p1", CurrentPrice: 100, Inventory: 10},
		UseStoredRules: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RecommendedPrice != 110 {
		t.Fatalf("expected 110, got %v", res.RecommendedPrice)
	}
	stale := false
	for _, w := range res.Warnings {
		if strings.HasPrefix(w, "market data is stale") {
			stale = true
		}
	}
	if !stale {
		t.Fatalf("expected stale warning from service clock, got %v", res.Warnings)
	}
}

func TestCalculateMarketStoreFailureDegrades(t *testing.T) {
	svc := newTestService(WithMarketDataStore(stubMarket{err: errors.New("redis down")}))
	res, err := svc.Calculate(context.Background(), &CalculateRequest{Product: domain.Product{ID: "p1", CurrentPrice: 20}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RecommendedPrice != 20 {
		t.Fatalf("expected 20, got %v", res.RecommendedPrice)
	}
}

func TestCalculateRequestErrors(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Calculate(context.Background(), &CalculateRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	_, err := svc.Calculate(context.Background(), &CalculateRequest{Product: domain.Product{ID: "p"}, UseStoredRules: true})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	_, err = svc.Calculate(context.Background(), &CalculateRequest{
		Product:     domain.Product{ID: "p"},
		Constraints: domain.Constraints{MinPrice: domain.Price(5), MaxPrice: domain.Price(1)},
	})
	if !errors.Is(err, domain.ErrInvalidConstraints) {
		t.Fatalf("expected ErrInvalidConstraints, got %v", err)
	}
}

func TestRecommendPersistsAndPublishes(t *testing.T) {
	repo := &memRecommendations{}
	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("broker unavailable")}
	svc := newTestService(WithRecommendationRepository(repo), WithPublishers(failing, ok))

	resp, err := svc.Recommend(context.Background(), &CalculateRequest{
		Product: domain.Product{ID: "p1", VariantID: "v1", CurrentPrice: 100, Inventory: 5},
		Rules:   []domain.PricingRule{lowStock()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := resp.Recommendation
	if rec.ID != "id-1" || rec.RecommendedPrice != 110 || !rec.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected recommendation: %+v", rec)
	}
	if len(ok.seen) != 1 || len(failing.seen) != 1 {
		t.Fatalf("expected both publishers called, got %v / %v", ok.seen, failing.seen)
	}

	list, err := svc.ListRecommendations(context.Background(), "p1")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected stored recommendation, got %v (%v)", list, err)
	}
}

func TestApplyRecommendation(t *testing.T) {
	repo := &memRecommendations{}
	catalog := &fakeCatalog{}
	locker := &countingLocker{}
	svc := newTestService(WithRecommendationRepository(repo), WithCatalog(catalog), WithLocker(locker))

	_ = repo.Save(context.Background(), &domain.PricingRecommendation{ID: "r1", ProductID: "p1", VariantID: "v1", RecommendedPrice: 42.5})
	res, err := svc.ApplyRecommendation(context.Background(), "r1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || catalog.prices["v1"] != 42.5 || locker.locked["p1"] != 1 {
		t.Fatalf("unexpected apply outcome: %+v prices=%v locks=%v", res, catalog.prices, locker.locked)
	}

	if _, err := svc.ApplyRecommendation(context.Background(), "missing", ""); !errors.Is(err, domain.ErrRecommendationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	catalog.failFor = map[string]bool{"v2": true}
	if _, err := svc.ApplyRecommendation(context.Background(), "r1", "v2"); !errors.Is(err, ErrCatalogUpdate) {
		t.Fatalf("expected ErrCatalogUpdate, got %v", err)
	}
}

func TestBulkAdjustSeparatesSuccessAndFailure(t *testing.T) {
	svc := newTestService(WithConcurrency(2))
	resp, err := svc.BulkAdjust(context.Background(), &BulkAdjustRequest{
		Products: []domain.Product{
			{ID: "a", CurrentPrice: 10, BasePrice: domain.Price(8)},
			{ID: "b", CurrentPrice: 10},
			{ID: "c", CurrentPrice: 10, BasePrice: domain.Price(4)},
		},
		Field: domain.FieldBasePrice,
		Delta: 50,
		Type:  domain.AdjustPercentage,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.BatchID == "" || len(resp.Updated) != 2 || len(resp.Failed) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Updated[0].ProductID != "a" || resp.Updated[1].ProductID != "c" || resp.Failed[0].ProductID != "b" {
		t.Fatalf("input order not preserved: %+v", resp)
	}
	if resp.Updated[0].NewValue != 12 {
		t.Fatalf("expected base price 12, got %v", resp.Updated[0].NewValue)
	}
	// 未修复顺序时允许 basePrice > currentPrice
	if resp.Updated[0].Product.CurrentPrice != 10 {
		t.Fatalf("current price should be untouched, got %v", resp.Updated[0].Product.CurrentPrice)
	}
}

func TestBulkAdjustRepairAndSync(t *testing.T) {
	catalog := &fakeCatalog{failFor: map[string]bool{"vb": true}}
	svc := newTestService(WithCatalog(catalog))
	resp, err := svc.BulkAdjust(context.Background(), &BulkAdjustRequest{
		Products: []domain.Product{
			{ID: "a", VariantID: "va", CurrentPrice: 100, MaxPrice: domain.Price(105)},
			{ID: "b", VariantID: "vb", CurrentPrice: 50},
			{ID: "c", CurrentPrice: 20},
		},
		Field:          domain.FieldCurrentPrice,
		Delta:          10,
		Type:           domain.AdjustPercentage,
		RepairOrdering: true,
		Sync:           true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Updated[0].Repaired || resp.Updated[0].NewValue != 105 {
		t.Fatalf("expected repair to max price, got %+v", resp.Updated[0])
	}
	if resp.Sync == nil {
		t.Fatalf("expected sync result, notice=%q", resp.SyncNotice)
	}
	if resp.Sync.Success || resp.Sync.TotalUpdated != 1 || resp.Sync.TotalFailed != 2 {
		t.Fatalf("unexpected sync totals: %+v", resp.Sync)
	}
	if catalog.prices["va"] != 105 {
		t.Fatalf("expected va=105, got %v", catalog.prices)
	}
}

func TestBulkAdjustRejectsInvalidBatch(t *testing.T) {
	svc := newTestService()
	_, err := svc.BulkAdjust(context.Background(), &BulkAdjustRequest{Field: "weight", Delta: 1, Type: domain.AdjustFixed})
	if !errors.Is(err, domain.ErrInvalidBulkField) {
		t.Fatalf("expected ErrInvalidBulkField, got %v", err)
	}
}

func TestSyncPricesRequiresCatalog(t *testing.T) {
	svc := newTestService()
	if _, err := svc.SyncPrices(context.Background(), []PriceUpdate{{ProductID: "a", VariantID: "v", NewPrice: 1}}); !errors.Is(err, ErrSyncDisabled) {
		t.Fatalf("expected ErrSyncDisabled, got %v", err)
	}
}

func TestSyncPricesAllSettled(t *testing.T) {
	catalog := &fakeCatalog{failFor: map[string]bool{"v2": true}}
	svc := newTestService(WithCatalog(catalog), WithConcurrency(3))
	updates := []PriceUpdate{
		{ProductID: "p1", VariantID: "v1", NewPrice: 10},
		{ProductID: "p2", VariantID: "v2", NewPrice: 11},
		{ProductID: "p3", VariantID: "v3", NewPrice: -1},
		{ProductID: "p4", VariantID: "v4", NewPrice: 13},
	}
	res, err := svc.SyncPrices(context.Background(), updates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TotalUpdated != 2 || res.TotalFailed != 2 || res.Success {
		t.Fatalf("unexpected totals: %+v", res)
	}
	for i, r := range res.Results {
		if r.ProductID != updates[i].ProductID {
			t.Fatalf("results out of order at %d: %s", i, r.ProductID)
		}
	}
}

func TestRuleAdmin(t *testing.T) {
	repo := newMemRules()
	svc := newTestService(WithRuleRepository(repo))

	saved, err := svc.SaveRule(context.Background(), domain.PricingRule{Name: "weekend", IsActive: true, Actions: []domain.PricingAction{{Type: domain.ActionAdjustFixed, Value: 2}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID == "" || !saved.CreatedAt.Equal(fixedNow) || !saved.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected saved rule: %+v", saved)
	}

	_, err = svc.SaveRule(context.Background(), domain.PricingRule{Name: "broken"})
	if !errors.Is(err, domain.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}

	rules, _ := svc.ListRules(context.Background())
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	if len(ids) != 1 || ids[0] != saved.ID {
		t.Fatalf("unexpected rules: %v", ids)
	}

	if err := svc.DeleteRule(context.Background(), saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteRule(context.Background(), saved.ID); !errors.Is(err, domain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestSaveRuleKeepsCreatedAtOnEdit(t *testing.T) {
	repo := newMemRules()
	now := fixedNow
	svc := newTestService(WithRuleRepository(repo), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	action := []domain.PricingAction{{Type: domain.ActionAdjustFixed, Value: 1}}

	first, err := svc.SaveRule(ctx, domain.PricingRule{ID: "r1", Priority: 5, IsActive: true, Actions: action})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(time.Hour)
	if _, err := svc.SaveRule(ctx, domain.PricingRule{ID: "r2", Priority: 5, IsActive: true, Actions: action}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(48 * time.Hour)
	second, err := svc.SaveRule(ctx, domain.PricingRule{ID: "r1", Name: "renamed", Priority: 5, IsActive: true, Actions: action})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected createdAt %v to survive the edit, got %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt %v, got %v", now, second.UpdatedAt)
	}

	// 与 MySQL 仓储相同的排序：优先级降序，再按创建时间升序
	rules, _ := svc.ListRules(ctx)
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	if len(rules) != 2 || rules[0].ID != "r1" || rules[0].Name != "renamed" || rules[1].ID != "r2" {
		t.Fatalf("unexpected tie order: %+v", rules)
	}
}

func TestHandleBulkAdjustEvent(t *testing.T) {
	catalog := &fakeCatalog{}
	svc := newTestService(WithCatalog(catalog))
	err := svc.HandleBulkAdjustEvent(context.Background(), &BulkAdjustRequested{
		EventID: "evt-1",
		Request: BulkAdjustRequest{
			Products: []domain.Product{{ID: "p", VariantID: "v", CurrentPrice: 10}},
			Field:    domain.FieldCurrentPrice,
			Delta:    -2,
			Type:     domain.AdjustFixed,
			Sync:     true,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.prices["v"] != 8 {
		t.Fatalf("expected synced price 8, got %v", catalog.prices)
	}

	err = svc.HandleBulkAdjustEvent(context.Background(), &BulkAdjustRequested{EventID: "evt-2", Request: BulkAdjustRequest{Field: "x"}})
	if !errors.Is(err, domain.ErrInvalidBulkField) {
		t.Fatalf("expected ErrInvalidBulkField, got %v", err)
	}
}

type memQueue struct {
	events []*BulkAdjustRequested
	err    error
}

func (q *memQueue) Enqueue(_ context.Context, event *BulkAdjustRequested) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, event)
	return nil
}

func TestEnqueueBulkAdjust(t *testing.T) {
	req := &BulkAdjustRequest{
		Products: []domain.Product{{ID: "p", CurrentPrice: 10}},
		Field:    domain.FieldCurrentPrice,
		Delta:    5,
		Type:     domain.AdjustPercentage,
	}
	if _, err := newTestService().EnqueueBulkAdjust(context.Background(), req, "ops"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	queue := &memQueue{}
	svc := newTestService(WithBulkAdjustQueue(queue))
	event, err := svc.EnqueueBulkAdjust(context.Background(), req, "ops")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EventID != "id-1" || event.RequestedBy != "ops" || !event.RequestedAt.Equal(fixedNow) {
		t.Fatalf("unexpected event: %+v", event)
	}
	if len(queue.events) != 1 || queue.events[0].Request.Delta != 5 {
		t.Fatalf("unexpected queue contents: %+v", queue.events)
	}

	if _, err := svc.EnqueueBulkAdjust(context.Background(), &BulkAdjustRequest{Field: domain.FieldCurrentPrice, Type: domain.AdjustFixed}, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty batch, got %v", err)
	}
	queue.err = errors.New("broker down")
	if _, err := svc.EnqueueBulkAdjust(context.Background(), req, ""); err == nil {
		t.Fatal("expected enqueue failure")
	}
}

func TestMarketDataRoundTrip(t *testing.T) {
	store := stubMarket{data: map[string]*domain.MarketData{}}
	svc := newTestService(WithMarketDataStore(store))

	if _, err := svc.GetMarketData(context.Background(), "p1"); !errors.Is(err, ErrMarketDataNotFound) {
		t.Fatalf("expected ErrMarketDataNotFound, got %v", err)
	}
	if err := svc.PutMarketData(context.Background(), &domain.MarketData{ProductID: "p1", DemandLevel: domain.DemandLow}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := svc.GetMarketData(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DemandLevel != domain.DemandLow || !got.LastUpdated.Equal(fixedNow) {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	if err := svc.PutMarketData(context.Background(), &domain.MarketData{ProductID: "p1", Seasonality: 2}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if err := newTestService().PutMarketData(context.Background(), &domain.MarketData{ProductID: "p1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
