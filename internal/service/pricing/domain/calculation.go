package domain

import (
	"fmt"
	"time"
)

// Constraints 是调用方对本次推荐价格的额外限制，全部可选。
type Constraints struct {
	MinPrice  *float64 `json:"minPrice,omitempty"`
	MaxPrice  *float64 `json:"maxPrice,omitempty"`
	MinMargin *float64 `json:"minMargin,omitempty"` // 百分比，基于售价
	MaxChange *float64 `json:"maxChange,omitempty"` // 相对当前价的最大变动百分比
}

func (c Constraints) Validate() error {
	for name, v := range map[string]*float64{
		"minPrice": c.MinPrice, "maxPrice": c.MaxPrice,
		"minMargin": c.MinMargin, "maxChange": c.MaxChange,
	} {
		if v == nil {
			continue
		}
		if !isFinite(*v) || *v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidConstraints, name)
		}
	}
	if c.MinPrice != nil && c.MaxPrice != nil && *c.MinPrice > *c.MaxPrice {
		return fmt.Errorf("%w: minPrice %.2f exceeds maxPrice %.2f", ErrInvalidConstraints, *c.MinPrice, *c.MaxPrice)
	}
	if c.MinMargin != nil && *c.MinMargin >= 100 {
		return fmt.Errorf("%w: minMargin must be below 100", ErrInvalidConstraints)
	}
	return nil
}

// CalculationInput 是定价核心的唯一入口参数。
type CalculationInput struct {
	Product     Product         `json:"product"`
	MarketData  *MarketData     `json:"marketData,omitempty"`
	Strategy    PricingStrategy `json:"strategy"`
	Rules       []PricingRule   `json:"rules"`
	Constraints Constraints     `json:"constraints"`
	// AsOf 仅用于判断市场数据是否过期，零值表示不检查。
	AsOf time.Time `json:"asOf,omitempty"`
}

// Factors 是各维度对推荐结果的归一化贡献，取值 [-1, 1]，仅用于解释。
type Factors struct {
	Demand      float64 `json:"demand"`
	Competition float64 `json:"competition"`
	Inventory   float64 `json:"inventory"`
	Seasonality float64 `json:"seasonality"`
	Margin      float64 `json:"margin"`
}

// Alternative 是按置信度排序的备选价格。
type Alternative struct {
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// CalculationResult 是一次定价计算的完整输出。
type CalculationResult struct {
	RecommendedPrice float64       `json:"recommendedPrice"`
	Confidence       float64       `json:"confidence"`
	Reasoning        string        `json:"reasoning"`
	Factors          Factors       `json:"factors"`
	Warnings         []string      `json:"warnings"`
	Alternatives     []Alternative `json:"alternatives"`
	AppliedRules     []string      `json:"appliedRules"`
	// UnclampedPrice 是规则和策略混合之后、边界钳制之前的价格。
	UnclampedPrice float64 `json:"unclampedPrice"`
}
