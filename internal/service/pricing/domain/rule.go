package domain

import (
	"fmt"
	"time"
)

// RuleType 是规则的业务分类，仅用于展示和筛选，不影响求值。
type RuleType string

const (
	RuleTypeDemandBased     RuleType = "demand_based"
	RuleTypeCompetitorBased RuleType = "competitor_based"
	RuleTypeInventoryBased  RuleType = "inventory_based"
	RuleTypeSeasonal        RuleType = "seasonal"
	RuleTypeCustom          RuleType = "custom"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeDemandBased, RuleTypeCompetitorBased, RuleTypeInventoryBased, RuleTypeSeasonal, RuleTypeCustom:
		return true
	}
	return false
}

// Operator 是条件比较运算符。
type Operator string

const (
	OpEquals      Operator = "equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpBetween     Operator = "between"
)

// ActionType 是规则命中后执行的调价动作。
type ActionType string

const (
	ActionAdjustPercentage ActionType = "adjust_percentage"
	ActionAdjustFixed      ActionType = "adjust_fixed"
	ActionSetPrice         ActionType = "set_price"
	ActionMinPrice         ActionType = "min_price"
	ActionMaxPrice         ActionType = "max_price"
)

// PricingCondition 针对商品或市场数据的某个字段做一次比较。
type PricingCondition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    Value    `json:"value" yaml:"value"`
	Value2   *Value   `json:"value2,omitempty" yaml:"value2,omitempty"` // 仅 between 使用
}

// Validate 检查条件的结构是否合法。
func (c PricingCondition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("%w: field is required", ErrInvalidCondition)
	}
	switch c.Operator {
	case OpEquals, OpGreaterThan, OpLessThan, OpContains:
		if c.Value.IsNull() {
			return fmt.Errorf("%w: %s on %q requires a value", ErrInvalidCondition, c.Operator, c.Field)
		}
	case OpBetween:
		if c.Value.IsNull() || c.Value2 == nil || c.Value2.IsNull() {
			return fmt.Errorf("%w: between on %q requires value and value2", ErrInvalidCondition, c.Field)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	return nil
}

// PricingAction 描述一次调价，MinPrice/MaxPrice 为该动作自带的边界覆盖。
type PricingAction struct {
	Type     ActionType `json:"type" yaml:"type"`
	Value    float64    `json:"value" yaml:"value"`
	MinPrice *float64   `json:"minPrice,omitempty" yaml:"minPrice,omitempty"`
	MaxPrice *float64   `json:"maxPrice,omitempty" yaml:"maxPrice,omitempty"`
}

func (a PricingAction) Validate() error {
	switch a.Type {
	case ActionAdjustPercentage, ActionAdjustFixed, ActionSetPrice, ActionMinPrice, ActionMaxPrice:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	if !isFinite(a.Value) {
		return fmt.Errorf("%w: %s value is not finite", ErrInvalidRule, a.Type)
	}
	if a.MinPrice != nil && a.MaxPrice != nil && *a.MinPrice > *a.MaxPrice {
		return fmt.Errorf("%w: %s minPrice exceeds maxPrice", ErrInvalidRule, a.Type)
	}
	return nil
}

// PricingRule 是一条带优先级的 条件 -> 动作 映射。
// 优先级高的先求值；优先级相同时保持插入顺序。
type PricingRule struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Type        RuleType           `json:"type" yaml:"type"`
	Conditions  []PricingCondition `json:"conditions" yaml:"conditions"`
	Actions     []PricingAction    `json:"actions" yaml:"actions"`
	IsActive    bool               `json:"isActive" yaml:"isActive"`
	Priority    int                `json:"priority" yaml:"priority"`
	// Expression 是可选的 CEL 表达式，与 Conditions 一起做逻辑与。
	Expression string    `json:"expression,omitempty" yaml:"expression,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// Validate 校验规则本身的结构，不涉及表达式编译。
func (r PricingRule) Validate() error {
	if r.Type != "" && !r.Type.Valid() {
		return fmt.Errorf("rule %q: %w: %q", r.label(), ErrUnknownRuleType, r.Type)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %q: %w: at least one action is required", r.label(), ErrInvalidRule)
	}
	for i, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("rule %q condition %d: %w", r.label(), i, err)
		}
	}
	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("rule %q action %d: %w", r.label(), i, err)
		}
	}
	return nil
}

func (r PricingRule) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
