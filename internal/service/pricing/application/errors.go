package application

import "errors"

var (
	// ErrInvalidRequest 表示请求本身缺少必要字段。
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotConfigured 表示用例依赖的组件（仓储、规则源等）没有启用。
	ErrNotConfigured = errors.New("component not configured")
	// ErrSyncDisabled 表示没有配置商品目录，无法推送价格。
	ErrSyncDisabled = errors.New("catalog sync is disabled")
	// ErrCatalogUpdate 表示推送到商品目录失败。
	ErrCatalogUpdate = errors.New("catalog price update failed")
	// ErrMarketDataNotFound 表示商品没有市场快照。
	ErrMarketDataNotFound = errors.New("market data not found")
)
