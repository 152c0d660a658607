// cmd/price-sync-worker/main.go
package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricewise/internal/pkg/bootstrap"
	"pricewise/internal/pkg/mq"
	"pricewise/internal/service/pricing"
	"pricewise/internal/service/pricing/infrastructure"
)

const (
	serviceName = "price-sync-worker"
	workerPort  = 8085
)

// price-sync-worker 消费批量调价命令，执行调价并把价格同步到 Shopify
func main() {
	bootstrap.Init()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        workerPort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) error {
			kafkaCfg := appCtx.Config.Infra.Kafka
			if !kafkaCfg.Enabled {
				return errors.New("price-sync-worker requires kafka to be enabled")
			}
			rt, err := pricing.Setup(appCtx, serviceName)
			if err != nil {
				return err
			}

			reader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.BulkAdjustTopic, kafkaCfg.GroupID)
			consumer := infrastructure.NewBulkAdjustConsumer(reader, kafkaCfg.BulkAdjustTopic, rt.Service)
			consumer.Start(appCtx.Ctx)
			appCtx.OnShutdown("bulk adjust consumer", func(context.Context) error { return consumer.Stop() })

			appCtx.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("GET /metrics", promhttp.Handler())
			return nil
		},
	})
}
