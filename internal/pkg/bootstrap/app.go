// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"pricewise/internal/pkg/logger"
	"pricewise/internal/pkg/nacos"
	"pricewise/internal/pkg/tracing"
	"pricewise/internal/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

// AppCtx 是注册路由时可以使用的公共组件。
type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未启用 Nacos 时为 nil
	Config *Config
	// Ctx 在收到退出信号时被取消，后台任务应以它为父 context。
	Ctx context.Context

	hooks *shutdownHooks
}

// OnShutdown 注册一个关停回调，按注册的逆序执行。
func (a AppCtx) OnShutdown(name string, fn func(ctx context.Context) error) {
	a.hooks.add(name, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers 注册服务独有的路由和后台任务，返回错误时服务直接退出。
	RegisterHandlers func(appCtx AppCtx) error
}

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

type shutdownHooks struct {
	mu    sync.Mutex
	hooks []shutdownHook
}

func (h *shutdownHooks) add(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, shutdownHook{name: name, fn: fn})
}

// run 后进先出地执行所有回调，单个失败只记录日志。
func (h *shutdownHooks) run(ctx context.Context) {
	h.mu.Lock()
	hooks := append([]shutdownHook(nil), h.hooks...)
	h.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i].fn(ctx); err != nil {
			zlog.Error().Err(err).Str("component", hooks[i].name).Msg("shutdown step failed")
			continue
		}
		zlog.Info().Str("component", hooks[i].name).Msg("shut down")
	}
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	if info.Port == 0 {
		info.Port = cfg.App.Port
	}
	logger.Init(info.ServiceName, cfg.App.LogLevel)

	hooks := &shutdownHooks{}
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	hooks.add("tracer provider", tp.Shutdown)

	// 2. Nacos 注册（可选）
	var namingClient *nacos.Client
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		hooks.add("nacos client", func(context.Context) error {
			namingClient.Close()
			return nil
		})

		ip, err := utils.GetOutboundIP()
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			zlog.Fatal().Err(err).Msg("failed to register service with nacos")
		}
		hooks.add("nacos registration", func(context.Context) error {
			return namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port)
		})
	}

	// 3. 路由和后台任务
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		appCtx := AppCtx{Mux: mux, Nacos: namingClient, Config: cfg, Ctx: runCtx, hooks: hooks}
		if err := info.RegisterHandlers(appCtx); err != nil {
			hooks.run(context.Background())
			zlog.Fatal().Err(err).Msgf("failed to start %s", info.ServiceName)
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           logger.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zlog.Info().Msgf("✅ %s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()
	// HTTP 服务器最先关闭：最后注册，最先执行
	hooks.add("http server", server.Shutdown)

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msgf("Shutting down service %s...", info.ServiceName)
	cancelRun()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hooks.run(ctx)

	zlog.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}
