// cmd/pricing-service/main.go
package main

import (
	"pricewise/internal/pkg/bootstrap"
	"pricewise/internal/service/pricing"
	"pricewise/internal/service/pricing/interfaces"
)

const serviceName = "pricing-service"

func main() {
	cfg := bootstrap.Init()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) error {
			rt, err := pricing.Setup(appCtx, serviceName, pricing.WithStream(), pricing.WithBulkQueue())
			if err != nil {
				return err
			}
			interfaces.NewPricingHandler(rt.Service, rt.Hub).RegisterRoutes(appCtx.Mux)
			return nil
		},
	})
}
