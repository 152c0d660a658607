package domain

import (
	"math"
	"time"
)

// ExpectedImpact 是价格变动带来的预期影响（百分比）。MarginChange 为毛利率的百分点变化。
type ExpectedImpact struct {
	RevenueChange float64 `json:"revenueChange"`
	SalesChange   float64 `json:"salesChange"`
	MarginChange  float64 `json:"marginChange"`
}

// PricingRecommendation 是绑定到具体商品的推荐结果，也是批量应用时消费的对象。
type PricingRecommendation struct {
	ID               string         `json:"id"`
	ProductID        string         `json:"productId"`
	VariantID        string         `json:"variantId,omitempty"`
	CurrentPrice     float64        `json:"currentPrice"`
	RecommendedPrice float64        `json:"recommendedPrice"`
	Confidence       float64        `json:"confidence"`
	Reasoning        string         `json:"reasoning"`
	Warnings         []string       `json:"warnings,omitempty"`
	ExpectedImpact   ExpectedImpact `json:"expectedImpact"`
	Algorithm        Algorithm      `json:"algorithm"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// NewRecommendation 根据计算结果生成推荐。id 和 createdAt 由调用方提供以保持计算的确定性。
func NewRecommendation(p Product, market *MarketData, result *CalculationResult, alg Algorithm, id string, createdAt time.Time) PricingRecommendation {
	return PricingRecommendation{
		ID:               id,
		ProductID:        p.ID,
		VariantID:        p.VariantID,
		CurrentPrice:     p.CurrentPrice,
		RecommendedPrice: result.RecommendedPrice,
		Confidence:       result.Confidence,
		Reasoning:        result.Reasoning,
		Warnings:         append([]string(nil), result.Warnings...),
		ExpectedImpact:   EstimateImpact(p, market, result.RecommendedPrice),
		Algorithm:        alg,
		CreatedAt:        createdAt,
	}
}

// EstimateImpact 用线性价格弹性估算销量和营收变化：
// salesChange = -elasticity * priceChange，revenue = (1+price)(1+sales) - 1。
func EstimateImpact(p Product, market *MarketData, newPrice float64) ExpectedImpact {
	if p.CurrentPrice <= 0 {
		return ExpectedImpact{}
	}
	priceChange := (newPrice - p.CurrentPrice) / p.CurrentPrice
	sales := math.Max(-1, -elasticity(market)*priceChange)
	revenue := (1+priceChange)*(1+sales) - 1

	impact := ExpectedImpact{
		RevenueChange: round2(revenue * 100),
		SalesChange:   round2(sales * 100),
	}
	if p.CostPrice != nil && newPrice > 0 {
		oldMargin := (p.CurrentPrice - *p.CostPrice) / p.CurrentPrice
		newMargin := (newPrice - *p.CostPrice) / newPrice
		impact.MarginChange = round2((newMargin - oldMargin) * 100)
	}
	return impact
}

// elasticity 需求越旺盛，价格弹性越小。
func elasticity(m *MarketData) float64 {
	if m == nil {
		return 1.2
	}
	switch m.DemandLevel {
	case DemandHigh:
		return 0.8
	case DemandLow:
		return 1.5
	default:
		return 1.2
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
