package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Algorithm 标识策略使用的混合算法，同时决定参数的具体类型。
type Algorithm string

const (
	AlgorithmRuleBased       Algorithm = "rule_based"
	AlgorithmCompetitorBased Algorithm = "competitor_based"
	AlgorithmDemandBased     Algorithm = "demand_based"
	AlgorithmCostPlus        Algorithm = "cost_plus"
)

// StrategyParams 是按算法区分的参数集合。
// 每种算法对应一个具体类型，调用处通过类型断言拿到强类型参数。
type StrategyParams interface {
	Algorithm() Algorithm
	validate() error
}

// RuleBasedParams 只使用规则输出，不做额外混合。
type RuleBasedParams struct {
	// InventoryReference 是库存因子的参照量，库存达到该值时库存因子为 -1。
	InventoryReference int `json:"inventoryReference,omitempty"`
	// StaleAfter 是市场数据的过期阈值。
	StaleAfter Duration `json:"staleAfter,omitempty"`
}

// CompetitorBasedParams 把规则价格按权重拉向竞品均价（可再下浮 UndercutPercent）。
type CompetitorBasedParams struct {
	Weight          float64  `json:"weight"`
	UndercutPercent float64  `json:"undercutPercent,omitempty"`
	StaleAfter      Duration `json:"staleAfter,omitempty"`
}

// DemandBasedParams 按需求因子（-1..1）乘以敏感度调整价格。
type DemandBasedParams struct {
	Sensitivity float64  `json:"sensitivity"`
	StaleAfter  Duration `json:"staleAfter,omitempty"`
}

// CostPlusParams 保证价格不低于 成本 * (1 + MarkupPercent/100)。
type CostPlusParams struct {
	MarkupPercent float64 `json:"markupPercent"`
}

func (RuleBasedParams) Algorithm() Algorithm       { return AlgorithmRuleBased }
func (CompetitorBasedParams) Algorithm() Algorithm { return AlgorithmCompetitorBased }
func (DemandBasedParams) Algorithm() Algorithm     { return AlgorithmDemandBased }
func (CostPlusParams) Algorithm() Algorithm        { return AlgorithmCostPlus }

func (p RuleBasedParams) validate() error {
	if p.InventoryReference < 0 || p.StaleAfter < 0 {
		return fmt.Errorf("%w: rule_based parameters must not be negative", ErrInvalidConstraints)
	}
	return nil
}

func (p CompetitorBasedParams) validate() error {
	if p.Weight < 0 || p.Weight > 1 {
		return fmt.Errorf("%w: competitor_based weight must be within [0,1]", ErrInvalidConstraints)
	}
	if p.UndercutPercent < 0 || p.UndercutPercent >= 100 {
		return fmt.Errorf("%w: competitor_based undercutPercent must be within [0,100)", ErrInvalidConstraints)
	}
	return nil
}

func (p DemandBasedParams) validate() error {
	if p.Sensitivity < 0 || p.Sensitivity > 1 {
		return fmt.Errorf("%w: demand_based sensitivity must be within [0,1]", ErrInvalidConstraints)
	}
	return nil
}

func (p CostPlusParams) validate() error {
	if p.MarkupPercent < 0 {
		return fmt.Errorf("%w: cost_plus markupPercent must not be negative", ErrInvalidConstraints)
	}
	return nil
}

// StrategyPerformance 是统计旁路数据，不参与计算。
type StrategyPerformance struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	RevenueIncrease   float64 `json:"revenueIncrease"`
	ProductsOptimized int     `json:"productsOptimized"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// PricingStrategy 决定规则输出如何与市场数据混合。
type PricingStrategy struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Params      StrategyParams      `json:"-"`
	IsActive    bool                `json:"isActive"`
	Performance StrategyPerformance `json:"performance"`
}

// DefaultStrategy 是未指定策略时使用的纯规则策略。
func DefaultStrategy() PricingStrategy {
	return PricingStrategy{ID: "default", Name: "Rule based", Params: RuleBasedParams{}, IsActive: true}
}

// Algorithm 返回策略的算法，未设置参数时视为 rule_based。
func (s PricingStrategy) Algorithm() Algorithm {
	if s.Params == nil {
		return AlgorithmRuleBased
	}
	return s.Params.Algorithm()
}

func (s PricingStrategy) Validate() error {
	if s.Params == nil {
		return nil
	}
	return s.Params.validate()
}

type strategyJSON struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Algorithm   Algorithm           `json:"algorithm"`
	Parameters  json.RawMessage     `json:"parameters,omitempty"`
	IsActive    bool                `json:"isActive"`
	Performance StrategyPerformance `json:"performance"`
}

func (s PricingStrategy) MarshalJSON() ([]byte, error) {
	out := strategyJSON{
		ID: s.ID, Name: s.Name, Description: s.Description,
		Algorithm: s.Algorithm(), IsActive: s.IsActive, Performance: s.Performance,
	}
	if s.Params != nil {
		raw, err := json.Marshal(s.Params)
		if err != nil {
			return nil, err
		}
		out.Parameters = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON 根据 algorithm 字段选择参数的具体类型。
func (s *PricingStrategy) UnmarshalJSON(data []byte) error {
	var in strategyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	params, err := decodeParams(in.Algorithm, in.Parameters)
	if err != nil {
		return err
	}
	*s = PricingStrategy{
		ID: in.ID, Name: in.Name, Description: in.Description,
		Params: params, IsActive: in.IsActive, Performance: in.Performance,
	}
	return nil
}

func decodeParams(alg Algorithm, raw json.RawMessage) (StrategyParams, error) {
	var target StrategyParams
	switch alg {
	case "", AlgorithmRuleBased:
		p := RuleBasedParams{}
		if err := unmarshalParams(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case AlgorithmCompetitorBased:
		p := CompetitorBasedParams{Weight: 0.5}
		if err := unmarshalParams(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case AlgorithmDemandBased:
		p := DemandBasedParams{Sensitivity: 0.1}
		if err := unmarshalParams(raw, &p); err != nil {
			return nil, err
		}
		target = p
	case AlgorithmCostPlus:
		p := CostPlusParams{}
		if err := unmarshalParams(raw, &p); err != nil {
			return nil, err
		}
		target = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	return target, nil
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConstraints, err)
	}
	return nil
}

// Duration 以 "24h"、"90m" 这样的字符串做 JSON 编解码。
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration must be a string like \"24h\": %w", err)
		}
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
