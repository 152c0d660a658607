package domain

import "errors"

// 校验类错误：直接返回给调用方，不产生任何部分计算结果。
var (
	ErrInvalidRule        = errors.New("invalid pricing rule")
	ErrInvalidCondition   = errors.New("invalid pricing condition")
	ErrUnknownOperator    = errors.New("unknown condition operator")
	ErrUnknownAction      = errors.New("unknown pricing action type")
	ErrUnknownRuleType    = errors.New("unknown pricing rule type")
	ErrInvalidExpression  = errors.New("invalid rule expression")
	ErrInvalidConstraints = errors.New("invalid pricing constraints")
	ErrUnknownAlgorithm   = errors.New("unknown pricing algorithm")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrInvalidBulkField   = errors.New("invalid bulk adjustment field")
	ErrInvalidBulkType    = errors.New("invalid bulk adjustment type")
	ErrInvalidDelta       = errors.New("invalid bulk adjustment delta")
)

// 批量调价的单条失败，只影响对应商品。
var (
	ErrFieldNotSet  = errors.New("price field is not set on product")
	ErrInvalidPrice = errors.New("stored price is not a valid amount")
)

// 仓储类错误
var (
	ErrRuleNotFound           = errors.New("pricing rule not found")
	ErrRecommendationNotFound = errors.New("pricing recommendation not found")
)

// IsValidationError 判断错误是否属于调用方输入有误的一类。
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidRule, ErrInvalidCondition, ErrUnknownOperator, ErrUnknownAction,
		ErrUnknownRuleType, ErrInvalidExpression, ErrInvalidConstraints, ErrUnknownAlgorithm,
		ErrInvalidProduct, ErrInvalidBulkField, ErrInvalidBulkType, ErrInvalidDelta,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
