// internal/service/pricing/setup.go
package pricing

import (
	"context"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"pricewise/internal/pkg/bootstrap"
	"pricewise/internal/pkg/httpclient"
	"pricewise/internal/pkg/metrics"
	"pricewise/internal/pkg/mq"
	"pricewise/internal/pkg/redis"
	"pricewise/internal/service/pricing/application"
	"pricewise/internal/service/pricing/domain"
	"pricewise/internal/service/pricing/infrastructure"
	"pricewise/internal/service/pricing/infrastructure/adapter"
	"pricewise/internal/service/pricing/infrastructure/rule"
	"pricewise/internal/service/pricing/interfaces"
	"pricewise/internal/zookeeper"
)

// Runtime 是按配置组装好的定价服务及其附属组件
type Runtime struct {
	Service *application.PricingService
	Metrics *metrics.PricingMetrics
	// Hub 只在 WithStream 时创建
	Hub *interfaces.Hub
}

type setupOptions struct {
	stream    bool
	bulkQueue bool
}

type SetupOption func(*setupOptions)

// WithStream 创建 WebSocket 推荐推送 Hub 并作为发布者接入
func WithStream() SetupOption { return func(o *setupOptions) { o.stream = true } }

// WithBulkQueue 启用 Kafka 时接入异步批量调价队列
func WithBulkQueue() SetupOption { return func(o *setupOptions) { o.bulkQueue = true } }

// Setup 根据配置组装定价服务。每个外部组件都是可选的，未启用时退回进程内实现，
// 所有打开的连接都登记到 app 的关停回调里。
func Setup(app bootstrap.AppCtx, serviceName string, opts ...SetupOption) (*Runtime, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}
	cfg := app.Config
	m := metrics.NewPricingMetrics(nil)

	cel, err := rule.NewCELEvaluator()
	if err != nil {
		return nil, err
	}
	engine := domain.NewRuleEngine(cel)
	calculator := domain.NewCalculator(engine,
		domain.WithStaleAfter(cfg.Pricing.StaleAfter),
		domain.WithMaxAlternatives(cfg.Pricing.MaxAlternatives),
		domain.WithInventoryReference(cfg.Pricing.InventoryReference),
	)

	svcOpts := []application.Option{
		application.WithMetrics(m),
		application.WithConcurrency(cfg.Pricing.Concurrency),
		application.WithListLimit(cfg.Pricing.RecommendationList),
	}

	// 1. 规则与推荐仓储
	var rules domain.RuleRepository = infrastructure.NewMemoryRuleRepository()
	var recs domain.RecommendationRepository = infrastructure.NewMemoryRecommendationRepository()
	if cfg.Infra.MySQL.Enabled {
		db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			app.OnShutdown("mysql", func(context.Context) error { return sqlDB.Close() })
		}
		rules = infrastructure.NewGormRuleRepository(db)
		recs = infrastructure.NewGormRecommendationRepository(db)
		zlog.Info().Str("database", cfg.Infra.MySQL.Database).Msg("✅ MySQL repositories enabled")
	}

	// 2. Redis：市场快照 + 规则缓存
	var market domain.MarketDataStore = infrastructure.NewMemoryMarketDataStore()
	if cfg.Infra.Redis.Enabled {
		client, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			return nil, err
		}
		app.OnShutdown("redis", func(context.Context) error { return client.Close() })
		market = infrastructure.NewRedisMarketDataStore(client, 0)
		rules = infrastructure.NewCachedRuleRepository(rules, client, cfg.Infra.Redis.RuleTTL)
		zlog.Info().Str("addrs", cfg.Infra.Redis.Addrs).Msg("✅ Redis market store and rule cache enabled")
	}
	svcOpts = append(svcOpts,
		application.WithRuleRepository(rules),
		application.WithRecommendationRepository(recs),
		application.WithMarketDataStore(market),
	)

	// 3. Nacos 规则源，优先于仓储
	if app.Nacos != nil && cfg.Infra.Nacos.RuleDataID != "" {
		src := infrastructure.NewNacosRuleSource(app.Nacos, cfg.Infra.Nacos.RuleDataID, cfg.Infra.Nacos.Group, engine, m)
		if err := src.Start(); err != nil {
			return nil, err
		}
		app.OnShutdown("nacos rule listener", func(context.Context) error {
			return app.Nacos.CancelListenConfig(cfg.Infra.Nacos.RuleDataID, cfg.Infra.Nacos.Group)
		})
		svcOpts = append(svcOpts, application.WithRuleSource(src))
	}

	// 4. Shopify 价格同步
	if cfg.Shopify.SyncEnabled {
		if err := cfg.Shopify.Validate(); err != nil {
			return nil, err
		}
		hc := httpclient.NewClient(otel.Tracer(serviceName))
		hc.HTTPClient.Timeout = cfg.Shopify.Timeout
		svcOpts = append(svcOpts, application.WithCatalog(adapter.NewShopifyCatalogAdapter(hc, adapter.ShopifyOptions{
			ShopDomain:  cfg.Shopify.ShopDomain,
			APIVersion:  cfg.Shopify.APIVersion,
			AccessToken: cfg.Shopify.AccessToken,
		})))
	} else {
		zlog.Warn().Msg("Shopify sync disabled, price pushes will be rejected")
	}

	// 5. ZooKeeper 商品锁
	if cfg.Infra.Zookeeper.Enabled {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, err
		}
		app.OnShutdown("zookeeper", func(context.Context) error {
			conn.Close()
			return nil
		})
		svcOpts = append(svcOpts, application.WithLocker(adapter.NewZKProductLocker(conn, cfg.Infra.Zookeeper.LockTimeout)))
	}

	// 6. Kafka 发布
	if cfg.Infra.Kafka.Enabled {
		if len(cfg.Infra.Kafka.Brokers) == 0 {
			return nil, errors.New("kafka enabled but no brokers configured")
		}
		pub := adapter.NewRecommendationKafkaAdapter(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.RecommendationTopic))
		app.OnShutdown("recommendation producer", func(context.Context) error { return pub.Close() })
		svcOpts = append(svcOpts, application.WithPublishers(pub))

		if o.bulkQueue {
			queue := adapter.NewBulkAdjustKafkaAdapter(mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.BulkAdjustTopic))
			app.OnShutdown("bulk adjust producer", func(context.Context) error { return queue.Close() })
			svcOpts = append(svcOpts, application.WithBulkAdjustQueue(queue))
		}
	}

	rt := &Runtime{Metrics: m}
	// 7. WebSocket 推送
	if o.stream {
		rt.Hub = interfaces.NewHub(m)
		go rt.Hub.Run(app.Ctx)
		svcOpts = append(svcOpts, application.WithPublishers(rt.Hub))
	}

	rt.Service = application.NewPricingService(calculator, otel.Tracer(serviceName), svcOpts...)
	return rt, nil
}
