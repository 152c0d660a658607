// internal/service/pricing/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"pricewise/internal/pkg/logger"
	"pricewise/internal/pkg/metrics"
	"pricewise/internal/service/pricing/domain"
	"pricewise/internal/service/pricing/domain/port"
)

const (
	defaultConcurrency = 8
	defaultListLimit   = 50
)

// PricingService 定义了定价服务提供的所有业务用例
type PricingService struct {
	calculator *domain.Calculator
	tracer     trace.Tracer

	ruleRepo        domain.RuleRepository
	ruleSource      domain.RuleSource
	recommendations domain.RecommendationRepository
	market          domain.MarketDataStore
	catalog         port.CatalogService
	locker          port.ProductLocker
	publishers      []port.RecommendationPublisher
	bulkQueue       BulkAdjustQueue
	metrics         *metrics.PricingMetrics

	concurrency int
	listLimit   int
	now         func() time.Time
	newID       func() string
}

type Option func(*PricingService)

// WithRuleRepository 设置规则仓储。未单独设置规则源时，它同时作为规则源。
func WithRuleRepository(r domain.RuleRepository) Option {
	return func(s *PricingService) { s.ruleRepo = r }
}

// WithRuleSource 设置 use_stored_rules 使用的规则源（例如 Nacos 或带缓存的仓储）。
func WithRuleSource(r domain.RuleSource) Option {
	return func(s *PricingService) { s.ruleSource = r }
}

func WithRecommendationRepository(r domain.RecommendationRepository) Option {
	return func(s *PricingService) { s.recommendations = r }
}

func WithMarketDataStore(m domain.MarketDataStore) Option {
	return func(s *PricingService) { s.market = m }
}

func WithCatalog(c port.CatalogService) Option {
	return func(s *PricingService) { s.catalog = c }
}

func WithLocker(l port.ProductLocker) Option {
	return func(s *PricingService) { s.locker = l }
}

func WithPublishers(p ...port.RecommendationPublisher) Option {
	return func(s *PricingService) { s.publishers = append(s.publishers, p...) }
}

// WithBulkAdjustQueue 设置异步批量调价使用的队列。
func WithBulkAdjustQueue(q BulkAdjustQueue) Option {
	return func(s *PricingService) { s.bulkQueue = q }
}

func WithMetrics(m *metrics.PricingMetrics) Option {
	return func(s *PricingService) { s.metrics = m }
}

func WithConcurrency(n int) Option {
	return func(s *PricingService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithListLimit(n int) Option {
	return func(s *PricingService) {
		if n > 0 {
			s.listLimit = n
		}
	}
}

// WithClock 替换时间来源，测试中用于固定 createdAt 和过期判断。
func WithClock(now func() time.Time) Option {
	return func(s *PricingService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *PricingService) { s.newID = newID }
}

// NewPricingService 创建一个新的定价服务实例
func NewPricingService(calculator *domain.Calculator, tracer trace.Tracer, opts ...Option) *PricingService {
	s := &PricingService{
		calculator:  calculator,
		tracer:      tracer,
		concurrency: defaultConcurrency,
		listLimit:   defaultListLimit,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ruleSource == nil && s.ruleRepo != nil {
		s.ruleSource = s.ruleRepo
	}
	return s
}

// Calculate 计算推荐价格，不产生任何副作用。
func (s *PricingService) Calculate(ctx context.Context, req *CalculateRequest) (*domain.CalculationResult, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.Calculate")
	defer span.End()

	in, err := s.prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s.calculate(ctx, span, in)
}

// Recommend 计算并保存推荐，然后广播给所有发布者。发布失败只记录日志。
func (s *PricingService) Recommend(ctx context.Context, req *CalculateRequest) (*RecommendResponse, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.Recommend")
	defer span.End()

	in, err := s.prepare(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result, err := s.calculate(ctx, span, in)
	if err != nil {
		return nil, err
	}

	rec := domain.NewRecommendation(in.Product, in.MarketData, result, in.Strategy.Algorithm(), s.newID(), s.now().UTC())
	span.SetAttributes(attribute.String("recommendation.id", rec.ID))

	if s.recommendations != nil {
		if err := s.recommendations.Save(ctx, &rec); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("save recommendation: %w", err)
		}
	}
	for _, p := range s.publishers {
		if err := p.Publish(ctx, &rec); err != nil {
			span.AddEvent("recommendation publish failed")
			logger.Ctx(ctx).Warn().Err(err).Str("recommendation_id", rec.ID).Msg("failed to publish recommendation")
		}
	}

	logger.Ctx(ctx).Info().
		Str("product_id", rec.ProductID).
		Float64("current_price", rec.CurrentPrice).
		Float64("recommended_price", rec.RecommendedPrice).
		Float64("confidence", rec.Confidence).
		Msg("✅ Recommendation created")
	return &RecommendResponse{Recommendation: rec, Calculation: result}, nil
}

// ListRecommendations 返回某个商品最近的推荐，按时间倒序。
func (s *PricingService) ListRecommendations(ctx context.Context, productID string) ([]domain.PricingRecommendation, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.ListRecommendations")
	defer span.End()

	if productID == "" {
		return nil, fmt.Errorf("%w: product_id is required", ErrInvalidRequest)
	}
	if s.recommendations == nil {
		return nil, fmt.Errorf("%w: recommendation repository", ErrNotConfigured)
	}
	recs, err := s.recommendations.ListByProduct(ctx, productID, s.listLimit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return recs, nil
}

// ApplyRecommendation 把已保存的推荐价格推送到商品目录。variantID 为空时使用推荐中的变体。
func (s *PricingService) ApplyRecommendation(ctx context.Context, id, variantID string) (*PriceUpdateResult, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.ApplyRecommendation")
	defer span.End()
	span.SetAttributes(attribute.String("recommendation.id", id))

	if s.recommendations == nil {
		return nil, fmt.Errorf("%w: recommendation repository", ErrNotConfigured)
	}
	if s.catalog == nil {
		return nil, ErrSyncDisabled
	}
	rec, err := s.recommendations.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if variantID == "" {
		variantID = rec.VariantID
	}
	if variantID == "" {
		return nil, fmt.Errorf("%w: recommendation %s has no variant id", ErrInvalidRequest, id)
	}

	res := s.pushPrice(ctx, PriceUpdate{ProductID: rec.ProductID, VariantID: variantID, NewPrice: rec.RecommendedPrice})
	if !res.Success {
		err := fmt.Errorf("%w: %s", ErrCatalogUpdate, res.Error)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &res, err
	}
	return &res, nil
}

// BulkAdjust 对一批商品应用同一个调价。批次参数非法时整批失败，单个商品失败不影响其他商品。
func (s *PricingService) BulkAdjust(ctx context.Context, req *BulkAdjustRequest) (*BulkAdjustResponse, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.BulkAdjust")
	defer span.End()
	span.SetAttributes(
		attribute.Int("bulk.size", len(req.Products)),
		attribute.String("bulk.field", string(req.Field)),
		attribute.String("bulk.type", string(req.Type)),
	)

	if err := domain.ValidateBulk(req.Field, req.Delta, req.Type); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	items := make([]BulkAdjustItem, len(req.Products))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range req.Products {
		g.Go(func() error {
			it := domain.AdjustProduct(req.Products[i], req.Field, req.Delta, req.Type)
			repaired := false
			if it.Err == nil && req.RepairOrdering {
				repaired = it.Product.NormalizeBounds()
				if repaired {
					it.NewValue = fieldValue(it.Product, req.Field)
				}
			}
			items[i] = toBulkItem(it)
			items[i].Repaired = repaired
			return nil
		})
	}
	_ = g.Wait()

	resp := &BulkAdjustResponse{
		BatchID: s.newID(),
		Field:   req.Field,
		Type:    req.Type,
		Delta:   req.Delta,
		Updated: []BulkAdjustItem{},
		Failed:  []BulkAdjustItem{},
	}
	for _, it := range items {
		if it.Error != "" {
			resp.Failed = append(resp.Failed, it)
		} else {
			resp.Updated = append(resp.Updated, it)
		}
	}
	if s.metrics != nil {
		s.metrics.BulkItems.WithLabelValues(string(req.Field), "ok").Add(float64(len(resp.Updated)))
		s.metrics.BulkItems.WithLabelValues(string(req.Field), "error").Add(float64(len(resp.Failed)))
	}
	span.SetAttributes(attribute.Int("bulk.updated", len(resp.Updated)), attribute.Int("bulk.failed", len(resp.Failed)))
	logger.Ctx(ctx).Info().
		Str("batch_id", resp.BatchID).
		Int("updated", len(resp.Updated)).
		Int("failed", len(resp.Failed)).
		Msg("Bulk adjustment computed")

	if req.Sync {
		s.syncAdjusted(ctx, req, resp)
	}
	return resp, nil
}

// syncAdjusted 只推送 currentPrice：其余字段保存在本地，不属于商品目录。
func (s *PricingService) syncAdjusted(ctx context.Context, req *BulkAdjustRequest, resp *BulkAdjustResponse) {
	if req.Field != domain.FieldCurrentPrice && !anyRepaired(resp.Updated) {
		resp.SyncNotice = fmt.Sprintf("%s is not a catalog field; nothing to sync", req.Field)
		return
	}
	var updates []PriceUpdate
	for _, it := range resp.Updated {
		if it.Product == nil {
			continue
		}
		if req.Field != domain.FieldCurrentPrice && !it.Repaired {
			continue
		}
		updates = append(updates, PriceUpdate{ProductID: it.ProductID, VariantID: it.Product.VariantID, NewPrice: it.Product.CurrentPrice})
	}
	result, err := s.SyncPrices(ctx, updates)
	if err != nil {
		resp.SyncNotice = err.Error()
		return
	}
	resp.Sync = result
}

// SyncPrices 并行推送所有价格并等待全部完成，单条失败记录在结果中。
func (s *PricingService) SyncPrices(ctx context.Context, updates []PriceUpdate) (*BulkPriceUpdateResult, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.SyncPrices")
	defer span.End()
	span.SetAttributes(attribute.Int("sync.size", len(updates)))

	if s.catalog == nil {
		return nil, ErrSyncDisabled
	}

	results := make([]PriceUpdateResult, len(updates))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, u := range updates {
		g.Go(func() error {
			results[i] = s.pushPrice(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	out := &BulkPriceUpdateResult{Results: results}
	for _, r := range results {
		if r.Success {
			out.TotalUpdated++
		} else {
			out.TotalFailed++
		}
	}
	out.Success = out.TotalFailed == 0
	span.SetAttributes(attribute.Int("sync.updated", out.TotalUpdated), attribute.Int("sync.failed", out.TotalFailed))
	logger.Ctx(ctx).Info().Msgf("Bulk update completed: %d successful, %d failed", out.TotalUpdated, out.TotalFailed)
	return out, nil
}

// pushPrice 在商品级分布式锁内推送一条价格，所有错误都折算进结果。
func (s *PricingService) pushPrice(ctx context.Context, u PriceUpdate) (res PriceUpdateResult) {
	res = PriceUpdateResult{ProductID: u.ProductID, VariantID: u.VariantID, NewPrice: u.NewPrice}
	defer func() {
		if s.metrics == nil {
			return
		}
		outcome := "ok"
		if !res.Success {
			outcome = "error"
		}
		s.metrics.SyncResults.WithLabelValues(outcome).Inc()
	}()

	switch {
	case u.VariantID == "":
		res.Error = "variant id is required"
		return res
	case math.IsNaN(u.NewPrice) || math.IsInf(u.NewPrice, 0) || u.NewPrice < 0:
		res.Error = fmt.Sprintf("price %v is not a valid amount", u.NewPrice)
		return res
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, u.ProductID)
		if err != nil {
			res.Error = fmt.Sprintf("acquire lock: %v", err)
			return res
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("product_id", u.ProductID).Msg("failed to release product lock")
			}
		}()
	}

	if err := s.catalog.UpdateVariantPrice(ctx, u.VariantID, u.NewPrice); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("product_id", u.ProductID).Str("variant_id", u.VariantID).Msg("Failed to update price")
		res.Error = err.Error()
		return res
	}
	res.Success = true
	logger.Ctx(ctx).Info().Str("product_id", u.ProductID).Str("variant_id", u.VariantID).Float64("price", u.NewPrice).Msg("Price updated")
	return res
}

// EnqueueBulkAdjust 校验请求后把批量调价投递到队列，由 price-sync-worker 异步执行。
func (s *PricingService) EnqueueBulkAdjust(ctx context.Context, req *BulkAdjustRequest, requestedBy string) (*BulkAdjustRequested, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.EnqueueBulkAdjust")
	defer span.End()

	if s.bulkQueue == nil {
		return nil, fmt.Errorf("%w: bulk adjust queue", ErrNotConfigured)
	}
	if err := domain.ValidateBulk(req.Field, req.Delta, req.Type); err != nil {
		return nil, err
	}
	if len(req.Products) == 0 {
		return nil, fmt.Errorf("%w: products are required", ErrInvalidRequest)
	}
	event := &BulkAdjustRequested{
		EventID:     s.newID(),
		RequestedBy: requestedBy,
		RequestedAt: s.now(),
		Request:     *req,
	}
	span.SetAttributes(attribute.String("event.id", event.EventID), attribute.Int("bulk.size", len(req.Products)))
	if err := s.bulkQueue.Enqueue(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("enqueue bulk adjust: %w", err)
	}
	logger.Ctx(ctx).Info().Str("event_id", event.EventID).Int("products", len(req.Products)).Msg("Bulk adjust enqueued")
	return event, nil
}

// HandleBulkAdjustEvent 处理来自 Kafka 的批量调价命令。
func (s *PricingService) HandleBulkAdjustEvent(ctx context.Context, event *BulkAdjustRequested) error {
	ctx, span := s.tracer.Start(ctx, "PricingService.HandleBulkAdjustEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", event.EventID))

	resp, err := s.BulkAdjust(ctx, &event.Request)
	if err != nil {
		return fmt.Errorf("bulk adjust event %s: %w", event.EventID, err)
	}
	l := logger.Ctx(ctx).Info().Str("event_id", event.EventID).Str("batch_id", resp.BatchID)
	if resp.Sync != nil {
		l = l.Int("synced", resp.Sync.TotalUpdated).Int("sync_failed", resp.Sync.TotalFailed)
	}
	l.Msg("✅ Bulk adjust event handled")
	return nil
}

// PutMarketData 保存商品的市场快照，lastUpdated 为空时使用当前时间。
func (s *PricingService) PutMarketData(ctx context.Context, data *domain.MarketData) error {
	ctx, span := s.tracer.Start(ctx, "PricingService.PutMarketData")
	defer span.End()

	if s.market == nil {
		return fmt.Errorf("%w: market data store", ErrNotConfigured)
	}
	if data == nil || data.ProductID == "" {
		return fmt.Errorf("%w: productId is required", ErrInvalidRequest)
	}
	if data.Seasonality < 0 || data.Seasonality > 1 {
		return fmt.Errorf("%w: seasonality must be within [0,1]", ErrInvalidRequest)
	}
	if data.LastUpdated.IsZero() {
		data.LastUpdated = s.now()
	}
	if err := s.market.Put(ctx, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// GetMarketData 读取商品的市场快照，不存在时返回 ErrMarketDataNotFound。
func (s *PricingService) GetMarketData(ctx context.Context, productID string) (*domain.MarketData, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.GetMarketData")
	defer span.End()

	if s.market == nil {
		return nil, fmt.Errorf("%w: market data store", ErrNotConfigured)
	}
	data, err := s.market.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrMarketDataNotFound
	}
	return data, nil
}

// ListRules 返回全部规则（包括未启用的）。
func (s *PricingService) ListRules(ctx context.Context) ([]domain.PricingRule, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.ListRules")
	defer span.End()
	if s.ruleRepo == nil {
		return nil, fmt.Errorf("%w: rule repository", ErrNotConfigured)
	}
	return s.ruleRepo.List(ctx)
}

// SaveRule 校验后保存规则，ID 为空时分配新 ID。
func (s *PricingService) SaveRule(ctx context.Context, rule domain.PricingRule) (*domain.PricingRule, error) {
	ctx, span := s.tracer.Start(ctx, "PricingService.SaveRule")
	defer span.End()

	if s.ruleRepo == nil {
		return nil, fmt.Errorf("%w: rule repository", ErrNotConfigured)
	}
	if err := s.calculator.Engine().ValidateRules([]domain.PricingRule{rule}); err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := s.now().UTC()
	if rule.ID == "" {
		rule.ID = s.newID()
	} else {
		// 同优先级按创建时间排序，编辑不能改变规则的原始位置
		existing, err := s.ruleRepo.FindByID(ctx, rule.ID)
		switch {
		case err == nil:
			rule.CreatedAt = existing.CreatedAt
		case !errors.Is(err, domain.ErrRuleNotFound):
			span.RecordError(err)
			return nil, err
		}
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	if err := s.ruleRepo.Save(ctx, &rule); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("rule_id", rule.ID).Int("priority", rule.Priority).Msg("Pricing rule saved")
	return &rule, nil
}

func (s *PricingService) DeleteRule(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "PricingService.DeleteRule")
	defer span.End()
	if s.ruleRepo == nil {
		return fmt.Errorf("%w: rule repository", ErrNotConfigured)
	}
	return s.ruleRepo.Delete(ctx, id)
}

// prepare 组装计算输入：补全规则、市场数据、策略和时间点。
func (s *PricingService) prepare(ctx context.Context, req *CalculateRequest) (domain.CalculationInput, error) {
	if req == nil || req.Product.ID == "" {
		return domain.CalculationInput{}, fmt.Errorf("%w: product.id is required", ErrInvalidRequest)
	}

	rules := req.Rules
	if req.UseStoredRules {
		if s.ruleSource == nil {
			return domain.CalculationInput{}, fmt.Errorf("%w: rule source", ErrNotConfigured)
		}
		stored, err := s.ruleSource.ActiveRules(ctx)
		if err != nil {
			return domain.CalculationInput{}, fmt.Errorf("load stored rules: %w", err)
		}
		rules = append(append([]domain.PricingRule(nil), stored...), req.Rules...)
	}

	market := req.MarketData
	if market == nil && s.market != nil {
		m, err := s.market.Get(ctx, req.Product.ID)
		if err != nil {
			// 市场数据是可选输入，读取失败按缺失处理
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", req.Product.ID).Msg("market data lookup failed")
		} else {
			market = m
		}
	}

	strategy := domain.DefaultStrategy()
	if req.Strategy != nil {
		strategy = *req.Strategy
	}
	asOf := s.now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	return domain.CalculationInput{
		Product:     req.Product,
		MarketData:  market,
		Strategy:    strategy,
		Rules:       rules,
		Constraints: req.Constraints,
		AsOf:        asOf,
	}, nil
}

func (s *PricingService) calculate(ctx context.Context, span trace.Span, in domain.CalculationInput) (*domain.CalculationResult, error) {
	span.SetAttributes(
		attribute.String("product.id", in.Product.ID),
		attribute.Int("rules.count", len(in.Rules)),
		attribute.String("strategy.algorithm", string(in.Strategy.Algorithm())),
		attribute.Bool("market.present", in.MarketData != nil),
	)

	start := time.Now()
	result, err := s.calculator.Calculate(in)
	if s.metrics != nil {
		s.metrics.CalculationLatency.Observe(time.Since(start).Seconds())
		s.metrics.Calculations.WithLabelValues(metrics.Outcome(err)).Inc()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", in.Product.ID).Msg("price calculation rejected")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Confidence.Observe(result.Confidence)
		s.metrics.Warnings.Add(float64(len(result.Warnings)))
	}

	span.SetAttributes(
		attribute.Float64("price.recommended", result.RecommendedPrice),
		attribute.Float64("price.confidence", result.Confidence),
		attribute.Int("rules.applied", len(result.AppliedRules)),
	)
	span.AddEvent("Price calculated")
	logger.Ctx(ctx).Debug().
		Str("product_id", in.Product.ID).
		Float64("recommended_price", result.RecommendedPrice).
		Strs("warnings", result.Warnings).
		Msg("Price calculated")
	return result, nil
}

func fieldValue(p domain.Product, f domain.PriceField) float64 {
	var v *float64
	switch f {
	case domain.FieldCurrentPrice:
		return p.CurrentPrice
	case domain.FieldBasePrice:
		v = p.BasePrice
	case domain.FieldMaxPrice:
		v = p.MaxPrice
	case domain.FieldCostPrice:
		v = p.CostPrice
	}
	if v == nil {
		return 0
	}
	return *v
}

func anyRepaired(items []BulkAdjustItem) bool {
	for _, it := range items {
		if it.Repaired {
			return true
		}
	}
	return false
}
