package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExpressionEvaluator 是规则表达式的求值接口（领域层与表达式引擎之间的"插座"）。
type ExpressionEvaluator interface {
	// Compile 只检查表达式是否合法。
	Compile(expr string) error
	// Evaluate 针对事实集合求值，结果必须是布尔值。
	Evaluate(expr string, facts map[string]any) (bool, error)
}

// RuleEvaluation 记录一条启用规则的求值结果，按优先级顺序输出。
type RuleEvaluation struct {
	Rule              PricingRule
	Actions           []PricingAction
	Matched           bool
	MatchedConditions int
	TotalConditions   int
	// MissingMarketData 表示至少一个条件引用了市场字段，但没有市场数据。
	MissingMarketData bool
}

// MatchRatio 是命中条件的比例，用于挑选"差一点命中"的备选规则。
func (e RuleEvaluation) MatchRatio() float64 {
	if e.TotalConditions == 0 {
		return 1
	}
	return float64(e.MatchedConditions) / float64(e.TotalConditions)
}

// RuleEngine 按优先级对规则求值。它是无状态的，可以被并发使用。
type RuleEngine struct {
	expr ExpressionEvaluator
}

// NewRuleEngine 创建规则引擎，expr 可以为 nil（此时带表达式的规则会校验失败）。
func NewRuleEngine(expr ExpressionEvaluator) *RuleEngine {
	return &RuleEngine{expr: expr}
}

// ValidateRules 校验全部规则，任何一条不合法都直接返回错误。
func (e *RuleEngine) ValidateRules(rules []PricingRule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Expression == "" {
			continue
		}
		if e.expr == nil {
			return fmt.Errorf("rule %q: %w: no expression evaluator configured", r.label(), ErrInvalidExpression)
		}
		if err := e.expr.Compile(r.Expression); err != nil {
			return fmt.Errorf("rule %q: %w: %v", r.label(), ErrInvalidExpression, err)
		}
	}
	return nil
}

// Evaluate 等价于 asOf 为零值的 EvaluateAt，此时 marketAge 视为缺失。
func (e *RuleEngine) Evaluate(product Product, market *MarketData, rules []PricingRule) ([]RuleEvaluation, error) {
	return e.EvaluateAt(product, market, rules, time.Time{})
}

// EvaluateAt 先校验再求值。非启用规则被跳过；其余规则按优先级降序、同优先级按插入顺序输出。
// 缺失字段只会让条件不成立，不会返回错误。asOf 是计算 marketAge 的参考时间。
func (e *RuleEngine) EvaluateAt(product Product, market *MarketData, rules []PricingRule, asOf time.Time) ([]RuleEvaluation, error) {
	if err := e.ValidateRules(rules); err != nil {
		return nil, err
	}

	ordered := make([]PricingRule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var facts map[string]any
	evals := make([]RuleEvaluation, 0, len(ordered))
	for _, r := range ordered {
		ev := RuleEvaluation{
			Rule:            r,
			Actions:         r.Actions,
			TotalConditions: len(r.Conditions),
		}
		for _, c := range r.Conditions {
			ok, missingMarket := evaluateCondition(product, market, c, asOf)
			if ok {
				ev.MatchedConditions++
			}
			if missingMarket {
				ev.MissingMarketData = true
			}
		}
		if r.Expression != "" {
			ev.TotalConditions++
			if facts == nil {
				facts = FactsAt(product, market, asOf)
			}
			if ok, err := e.expr.Evaluate(r.Expression, facts); err == nil && ok {
				ev.MatchedConditions++
			}
		}
		ev.Matched = ev.MatchedConditions == ev.TotalConditions
		evals = append(evals, ev)
	}
	return evals, nil
}

// Fired 过滤出命中的规则，保持优先级顺序。
func Fired(evals []RuleEvaluation) []RuleEvaluation {
	out := make([]RuleEvaluation, 0, len(evals))
	for _, ev := range evals {
		if ev.Matched {
			out = append(out, ev)
		}
	}
	return out
}

// EvaluateCondition 对单个条件求值，导出给表达式测试和调试接口使用。marketAge 以当前时间计算。
func EvaluateCondition(product Product, market *MarketData, c PricingCondition) bool {
	return EvaluateConditionAt(product, market, c, time.Now())
}

// EvaluateConditionAt 以 asOf 为参考时间对单个条件求值。
func EvaluateConditionAt(product Product, market *MarketData, c PricingCondition, asOf time.Time) bool {
	ok, _ := evaluateCondition(product, market, c, asOf)
	return ok
}

func evaluateCondition(product Product, market *MarketData, c PricingCondition, asOf time.Time) (matched, missingMarket bool) {
	fv, src := resolveField(product, market, c.Field, asOf)
	if src == sourceMarket && market == nil {
		return false, true
	}
	if !fv.present {
		return false, false
	}

	switch c.Operator {
	case OpEquals:
		if fv.isList {
			return false, false
		}
		return fv.scalar.Equal(c.Value), false
	case OpGreaterThan, OpLessThan:
		a, ok1 := fv.scalar.AsNumber()
		b, ok2 := c.Value.AsNumber()
		if fv.isList || !ok1 || !ok2 {
			return false, false
		}
		if c.Operator == OpGreaterThan {
			return a > b, false
		}
		return a < b, false
	case OpContains:
		needle, ok := c.Value.AsString()
		if !ok {
			return false, false
		}
		if fv.isList {
			for _, item := range fv.list {
				if item == needle {
					return true, false
				}
			}
			return false, false
		}
		s, ok := fv.scalar.AsString()
		return ok && strings.Contains(s, needle), false
	case OpBetween:
		if c.Value2 == nil || fv.isList {
			return false, false
		}
		x, ok := fv.scalar.AsNumber()
		lo, ok1 := c.Value.AsNumber()
		hi, ok2 := c.Value2.AsNumber()
		if !ok || !ok1 || !ok2 {
			return false, false
		}
		return lo <= x && x <= hi, false
	}
	return false, false
}

type fieldSource uint8

const (
	sourceUnknown fieldSource = iota
	sourceProduct
	sourceMarket
)

type fieldValue struct {
	present bool
	scalar  Value
	isList  bool
	list    []string
}

func scalar(v Value) fieldValue { return fieldValue{present: true, scalar: v} }

func optionalNumber(v *float64) fieldValue {
	if v == nil {
		return fieldValue{}
	}
	return scalar(Number(*v))
}

// normalizeField 让 currentPrice、current_price、CURRENTPRICE 指向同一个字段。
func normalizeField(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

func resolveField(p Product, m *MarketData, field string, asOf time.Time) (fieldValue, fieldSource) {
	switch normalizeField(field) {
	case "id", "productid":
		return scalar(String(p.ID)), sourceProduct
	case "variantid":
		return scalar(String(p.VariantID)), sourceProduct
	case "title":
		return scalar(String(p.Title)), sourceProduct
	case "handle":
		return scalar(String(p.Handle)), sourceProduct
	case "currentprice", "price":
		return scalar(Number(p.CurrentPrice)), sourceProduct
	case "baseprice":
		return optionalNumber(p.BasePrice), sourceProduct
	case "maxprice":
		return optionalNumber(p.MaxPrice), sourceProduct
	case "compareatprice":
		return optionalNumber(p.CompareAtPrice), sourceProduct
	case "costprice", "cost":
		return optionalNumber(p.CostPrice), sourceProduct
	case "inventory", "stock":
		return scalar(Number(float64(p.Inventory))), sourceProduct
	case "category":
		return scalar(String(p.Category)), sourceProduct
	case "vendor":
		return scalar(String(p.Vendor)), sourceProduct
	case "tags":
		return fieldValue{present: true, isList: true, list: p.Tags}, sourceProduct
	case "smartpricingenabled":
		return scalar(Bool(p.SmartPricingEnabled)), sourceProduct
	case "margin":
		margin, ok := p.Margin()
		if !ok {
			return fieldValue{}, sourceProduct
		}
		return scalar(Number(margin * 100)), sourceProduct
	}

	// 以下为市场字段
	var fv fieldValue
	switch normalizeField(field) {
	case "demandlevel", "demand":
		if m != nil {
			fv = scalar(String(string(m.DemandLevel)))
		}
	case "markettrend", "trend":
		if m != nil {
			fv = scalar(String(string(m.MarketTrend)))
		}
	case "seasonality":
		if m != nil {
			fv = scalar(Number(m.Seasonality))
		}
	case "competitorcount":
		if m != nil {
			_, _, _, n := m.CompetitorStats()
			fv = scalar(Number(float64(n)))
		}
	case "competitorminprice", "competitoravgprice", "competitormaxprice":
		if m != nil {
			lo, hi, avg, n := m.CompetitorStats()
			if n == 0 {
				return fieldValue{}, sourceMarket
			}
			switch normalizeField(field) {
			case "competitorminprice":
				fv = scalar(Number(lo))
			case "competitormaxprice":
				fv = scalar(Number(hi))
			default:
				fv = scalar(Number(avg))
			}
		}
	case "marketage", "age":
		if m != nil {
			age, ok := m.AgeHours(asOf)
			if !ok {
				return fieldValue{}, sourceMarket
			}
			fv = scalar(Number(age))
		}
	default:
		return fieldValue{}, sourceUnknown
	}
	return fv, sourceMarket
}

// Facts 把商品和市场数据展开成表达式引擎使用的事实集合，不含 marketAge。
func Facts(p Product, m *MarketData) map[string]any {
	return FactsAt(p, m, time.Time{})
}

// FactsAt 同 Facts，asOf 非零时额外给出 market.marketAge（小时）。
func FactsAt(p Product, m *MarketData, asOf time.Time) map[string]any {
	product := map[string]any{
		"id":                  p.ID,
		"title":               p.Title,
		"handle":              p.Handle,
		"currentPrice":        p.CurrentPrice,
		"inventory":           float64(p.Inventory),
		"category":            p.Category,
		"vendor":              p.Vendor,
		"tags":                append([]string{}, p.Tags...),
		"smartPricingEnabled": p.SmartPricingEnabled,
	}
	for name, v := range map[string]*float64{
		"basePrice": p.BasePrice, "maxPrice": p.MaxPrice,
		"compareAtPrice": p.CompareAtPrice, "costPrice": p.CostPrice,
	} {
		if v != nil {
			product[name] = *v
		}
	}
	if margin, ok := p.Margin(); ok {
		product["margin"] = margin * 100
	}

	facts := map[string]any{"product": product, "hasMarket": m != nil}
	market := map[string]any{}
	if m != nil {
		lo, hi, avg, n := m.CompetitorStats()
		market["demandLevel"] = string(m.DemandLevel)
		market["marketTrend"] = string(m.MarketTrend)
		market["seasonality"] = m.Seasonality
		market["competitorCount"] = float64(n)
		if n > 0 {
			market["competitorMinPrice"] = lo
			market["competitorMaxPrice"] = hi
			market["competitorAvgPrice"] = avg
		}
		if age, ok := m.AgeHours(asOf); ok {
			market["marketAge"] = age
		}
	}
	facts["market"] = market
	return facts
}
