package port

import "context"

// CatalogService 是商品目录系统（Shopify Admin API）的出站端口。
type CatalogService interface {
	// UpdateVariantPrice 把变体价格同步到目录系统，价格格式化由适配器负责。
	UpdateVariantPrice(ctx context.Context, variantID string, price float64) error
}
