// internal/service/pricing/application/dto.go
package application

import (
	"context"
	"time"

	"pricewise/internal/service/pricing/domain"
)

// CalculateRequest 是计算和推荐用例的输入。
type CalculateRequest struct {
	Product    domain.Product          `json:"product"`
	MarketData *domain.MarketData      `json:"marketData,omitempty"`
	Strategy   *domain.PricingStrategy `json:"strategy,omitempty"`
	Rules      []domain.PricingRule    `json:"rules,omitempty"`
	// UseStoredRules 为 true 时，在请求规则之前加入规则源中的启用规则。
	UseStoredRules bool               `json:"useStoredRules,omitempty"`
	Constraints    domain.Constraints `json:"constraints"`
	// AsOf 为空时使用服务当前时间判断市场数据是否过期。
	AsOf *time.Time `json:"asOf,omitempty"`
}

// RecommendResponse 是推荐用例的输出，包含完整的计算明细。
type RecommendResponse struct {
	Recommendation domain.PricingRecommendation `json:"recommendation"`
	Calculation    *domain.CalculationResult    `json:"calculation"`
}

// BulkAdjustRequest 是批量调价的输入。
type BulkAdjustRequest struct {
	Products []domain.Product      `json:"products"`
	Field    domain.PriceField     `json:"field"`
	Delta    float64               `json:"delta"`
	Type     domain.AdjustmentType `json:"type"`
	// RepairOrdering 为 true 时对成功的商品调用 NormalizeBounds。
	RepairOrdering bool `json:"repairOrdering,omitempty"`
	// Sync 为 true 时把调整后的 currentPrice 推送到商品目录。
	Sync bool `json:"sync,omitempty"`
}

// BulkAdjustItem 是单个商品的批量调价结果。
type BulkAdjustItem struct {
	ProductID string          `json:"productId"`
	OldValue  float64         `json:"oldValue"`
	NewValue  float64         `json:"newValue"`
	Repaired  bool            `json:"repaired,omitempty"`
	Product   *domain.Product `json:"product,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BulkAdjustResponse 分开列出成功和失败的商品，两者都保持输入顺序。
type BulkAdjustResponse struct {
	BatchID    string                 `json:"batchId"`
	Field      domain.PriceField      `json:"field"`
	Type       domain.AdjustmentType  `json:"type"`
	Delta      float64                `json:"delta"`
	Updated    []BulkAdjustItem       `json:"updated"`
	Failed     []BulkAdjustItem       `json:"failed"`
	Sync       *BulkPriceUpdateResult `json:"sync,omitempty"`
	SyncNotice string                 `json:"syncNotice,omitempty"`
}

// PriceUpdate 是推送到商品目录的一条价格。
type PriceUpdate struct {
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId"`
	NewPrice  float64 `json:"newPrice"`
}

// PriceUpdateResult 是单条价格推送的结果。
type PriceUpdateResult struct {
	Success   bool    `json:"success"`
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	NewPrice  float64 `json:"newPrice"`
	Error     string  `json:"error,omitempty"`
}

// BulkPriceUpdateResult 汇总所有推送结果，任何一条失败时 Success 为 false。
type BulkPriceUpdateResult struct {
	Success      bool                `json:"success"`
	Results      []PriceUpdateResult `json:"results"`
	TotalUpdated int                 `json:"totalUpdated"`
	TotalFailed  int                 `json:"totalFailed"`
}

// BulkAdjustRequested 是通过 Kafka 下发的批量调价命令。
type BulkAdjustRequested struct {
	EventID     string            `json:"eventId"`
	RequestedBy string            `json:"requestedBy,omitempty"`
	RequestedAt time.Time         `json:"requestedAt"`
	Request     BulkAdjustRequest `json:"request"`
}

// BulkAdjustQueue 是异步批量调价命令的出口。
type BulkAdjustQueue interface {
	Enqueue(ctx context.Context, event *BulkAdjustRequested) error
}

func toBulkItem(it domain.BulkItem) BulkAdjustItem {
	out := BulkAdjustItem{ProductID: it.ProductID, OldValue: it.OldValue, NewValue: it.NewValue}
	if it.Err != nil {
		out.Error = it.Err.Error()
		return out
	}
	p := it.Product
	out.Product = &p
	return out
}
