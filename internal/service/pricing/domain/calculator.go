package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultMaxAlternatives    = 3
	defaultStaleAfter         = 24 * time.Hour
	defaultInventoryReference = 100
)

// ConfidenceWeights 控制置信度的混合方式：
// confidence = Base + Rules*ruleScore + Market*marketScore - Clamp*clampPenalty
type ConfidenceWeights struct {
	Base   float64
	Rules  float64
	Market float64
	Clamp  float64
}

func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{Base: 0.3, Rules: 0.4, Market: 0.3, Clamp: 0.4}
}

// Calculator 把规则输出、策略参数和市场数据合成为一个推荐价格。
// 纯计算、无共享可变状态，可以被多个 goroutine 同时调用。
type Calculator struct {
	engine             *RuleEngine
	weights            ConfidenceWeights
	maxAlternatives    int
	staleAfter         time.Duration
	inventoryReference int
}

type CalculatorOption func(*Calculator)

func WithConfidenceWeights(w ConfidenceWeights) CalculatorOption {
	return func(c *Calculator) { c.weights = w }
}

func WithMaxAlternatives(n int) CalculatorOption {
	return func(c *Calculator) {
		if n >= 0 {
			c.maxAlternatives = n
		}
	}
}

// WithStaleAfter 设置策略未指定时的市场数据过期阈值。
func WithStaleAfter(d time.Duration) CalculatorOption {
	return func(c *Calculator) { c.staleAfter = d }
}

func WithInventoryReference(n int) CalculatorOption {
	return func(c *Calculator) {
		if n > 0 {
			c.inventoryReference = n
		}
	}
}

func NewCalculator(engine *RuleEngine, opts ...CalculatorOption) *Calculator {
	if engine == nil {
		engine = NewRuleEngine(nil)
	}
	c := &Calculator{
		engine:             engine,
		weights:            DefaultConfidenceWeights(),
		maxAlternatives:    defaultMaxAlternatives,
		staleAfter:         defaultStaleAfter,
		inventoryReference: defaultInventoryReference,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine 暴露内部规则引擎，供规则管理接口做保存前校验。
func (c *Calculator) Engine() *RuleEngine { return c.engine }

// Calculate 是定价核心的唯一入口。校验错误直接返回；其余问题写入 Warnings。
func (c *Calculator) Calculate(in CalculationInput) (*CalculationResult, error) {
	if err := in.Product.Validate(); err != nil {
		return nil, err
	}
	if err := in.Constraints.Validate(); err != nil {
		return nil, err
	}
	if err := in.Strategy.Validate(); err != nil {
		return nil, err
	}
	evals, err := c.engine.EvaluateAt(in.Product, in.MarketData, in.Rules, in.AsOf)
	if err != nil {
		return nil, err
	}

	var warnings []string
	product := in.Product
	current := product.CurrentPrice
	if current < 0 {
		warnings = append(warnings, fmt.Sprintf("current price %.2f is negative; treated as 0", current))
		current = 0
	}
	if product.BasePrice != nil && product.MaxPrice != nil && *product.BasePrice > *product.MaxPrice {
		warnings = append(warnings, fmt.Sprintf("product basePrice %.2f exceeds maxPrice %.2f", *product.BasePrice, *product.MaxPrice))
	}

	for _, ev := range evals {
		if !ev.Matched && ev.MissingMarketData {
			warnings = append(warnings, fmt.Sprintf("rule %q not applied: market data unavailable", ev.Rule.label()))
		}
	}

	fired := Fired(evals)
	price, applied, ruleWarnings := applyRules(current, fired)
	warnings = append(warnings, ruleWarnings...)

	stale := in.MarketData.IsStale(in.AsOf, c.staleAfterFor(in.Strategy))
	if stale {
		warnings = append(warnings, fmt.Sprintf("market data is stale (last updated %s)", in.MarketData.LastUpdated.UTC().Format(time.RFC3339)))
	}

	demand := demandFactor(in.MarketData)
	price, strategyNote, strategyWarnings := c.blend(price, in, demand)
	warnings = append(warnings, strategyWarnings...)
	unclamped := price

	bounds, boundWarnings := newPriceBounds(product, current, in.Constraints)
	warnings = append(warnings, boundWarnings...)
	final, clampWarnings := bounds.apply(unclamped)
	warnings = append(warnings, clampWarnings...)

	marketScore := 0.0
	if in.MarketData != nil {
		marketScore = 1
		if stale {
			marketScore = 0.5
		}
	}
	n := float64(len(fired))
	ruleScore := n / (n + 1)
	penalty := math.Min(1, math.Abs(final-unclamped)/math.Max(math.Max(unclamped, current), 1))
	w := c.weights
	confidence := clamp01(w.Base + w.Rules*ruleScore + w.Market*marketScore - w.Clamp*penalty)

	result := &CalculationResult{
		RecommendedPrice: final,
		Confidence:       round4(confidence),
		Factors:          c.factors(product, in.MarketData, in.Strategy, final, demand),
		Warnings:         warnings,
		AppliedRules:     applied,
		UnclampedPrice:   unclamped,
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	if result.AppliedRules == nil {
		result.AppliedRules = []string{}
	}
	result.Reasoning = reasoning(current, final, fired, strategyNote, len(clampWarnings) > 0)
	result.Alternatives = c.alternatives(in, evals, bounds, unclamped, final, confidence, marketScore)
	return result, nil
}

// applyRules 按优先级依次执行命中规则的动作。
// 第一个 set_price 生效，之后的 set_price 视为冲突并忽略；百分比和固定金额调整仍然叠加。
func applyRules(start float64, fired []RuleEvaluation) (float64, []string, []string) {
	price := start
	var applied, warnings []string
	setBy := ""
	for _, ev := range fired {
		applied = append(applied, ev.Rule.label())
		for _, a := range ev.Actions {
			if a.Type == ActionSetPrice {
				if setBy != "" {
					warnings = append(warnings, fmt.Sprintf("conflicting set_price from rule %q ignored; rule %q already set the price", ev.Rule.label(), setBy))
					continue
				}
				setBy = ev.Rule.label()
			}
			price = applyAction(price, a)
		}
	}
	return price, applied, warnings
}

func applyAction(price float64, a PricingAction) float64 {
	switch a.Type {
	case ActionAdjustPercentage:
		price *= 1 + a.Value/100
	case ActionAdjustFixed:
		price += a.Value
	case ActionSetPrice:
		price = a.Value
	case ActionMinPrice:
		price = math.Max(price, a.Value)
	case ActionMaxPrice:
		price = math.Min(price, a.Value)
	}
	if a.MinPrice != nil {
		price = math.Max(price, *a.MinPrice)
	}
	if a.MaxPrice != nil {
		price = math.Min(price, *a.MaxPrice)
	}
	return math.Max(price, 0)
}

func (c *Calculator) blend(price float64, in CalculationInput, demand float64) (float64, string, []string) {
	s := in.Strategy
	alg := s.Algorithm()
	if alg == AlgorithmRuleBased {
		return price, "", nil
	}
	if !s.IsActive {
		return price, "", []string{fmt.Sprintf("strategy %q is inactive; %s blending skipped", s.Name, alg)}
	}

	switch p := s.Params.(type) {
	case CompetitorBasedParams:
		_, _, avg, n := in.MarketData.CompetitorStats()
		if n == 0 {
			return price, "", []string{"competitor_based strategy has no competitor prices to blend with"}
		}
		target := avg * (1 - p.UndercutPercent/100)
		blended := price*(1-p.Weight) + target*p.Weight
		return math.Max(blended, 0), fmt.Sprintf("Blended %.0f%% toward competitor target %.2f.", p.Weight*100, target), nil
	case DemandBasedParams:
		if in.MarketData == nil {
			return price, "", []string{"demand_based strategy has no market data; demand adjustment skipped"}
		}
		adjusted := price * (1 + p.Sensitivity*demand)
		return math.Max(adjusted, 0), fmt.Sprintf("Demand adjustment %+.2f%%.", p.Sensitivity*demand*100), nil
	case CostPlusParams:
		if in.Product.CostPrice == nil {
			return price, "", []string{"cost_plus strategy requires costPrice; markup floor skipped"}
		}
		floor := *in.Product.CostPrice * (1 + p.MarkupPercent/100)
		if price < floor {
			return floor, fmt.Sprintf("Raised to cost-plus floor %.2f.", floor), nil
		}
		return price, "", nil
	}
	return price, "", nil
}

func (c *Calculator) staleAfterFor(s PricingStrategy) time.Duration {
	var d Duration
	switch p := s.Params.(type) {
	case RuleBasedParams:
		d = p.StaleAfter
	case CompetitorBasedParams:
		d = p.StaleAfter
	case DemandBasedParams:
		d = p.StaleAfter
	}
	if d > 0 {
		return time.Duration(d)
	}
	return c.staleAfter
}

func (c *Calculator) factors(p Product, m *MarketData, s PricingStrategy, final, demand float64) Factors {
	f := Factors{Demand: round4(demand)}

	if _, _, avg, n := m.CompetitorStats(); n > 0 && avg > 0 {
		f.Competition = round4(clampUnit((avg - final) / avg))
	}

	ref := c.inventoryReference
	if rp, ok := s.Params.(RuleBasedParams); ok && rp.InventoryReference > 0 {
		ref = rp.InventoryReference
	}
	if p.Inventory <= 0 {
		f.Inventory = 1
	} else {
		f.Inventory = round4(clampUnit(1 - 2*float64(p.Inventory)/float64(ref)))
	}

	if m != nil {
		f.Seasonality = round4(clampUnit(2*m.Seasonality - 1))
	}

	if p.CostPrice != nil {
		switch {
		case final > 0:
			f.Margin = round4(clampUnit((final - *p.CostPrice) / final))
		case *p.CostPrice > 0:
			f.Margin = -1
		}
	}
	return f
}

// demandFactor 把需求等级和趋势折算到 [-1, 1]。
func demandFactor(m *MarketData) float64 {
	if m == nil {
		return 0
	}
	score := 0.0
	switch m.DemandLevel {
	case DemandLow:
		score -= 0.5
	case DemandHigh:
		score += 0.5
	}
	switch m.MarketTrend {
	case TrendIncreasing:
		score += 0.5
	case TrendDecreasing:
		score -= 0.5
	}
	return clampUnit(score)
}

func (c *Calculator) alternatives(in CalculationInput, evals []RuleEvaluation, b priceBounds, unclamped, final, confidence, marketScore float64) []Alternative {
	var candidates []Alternative
	for _, ev := range evals {
		if ev.Matched || ev.TotalConditions == 0 || ev.MatchRatio() < 0.5 {
			continue
		}
		price := unclamped
		for _, a := range ev.Actions {
			price = applyAction(price, a)
		}
		candidates = append(candidates, Alternative{
			Price:      b.finalize(price),
			Confidence: round4(confidence * ev.MatchRatio() * 0.8),
			Reasoning:  fmt.Sprintf("If rule %q also applied (%d/%d conditions met)", ev.Rule.label(), ev.MatchedConditions, ev.TotalConditions),
		})
	}
	if _, _, avg, n := in.MarketData.CompetitorStats(); n > 0 {
		candidates = append(candidates, Alternative{
			Price:      b.finalize(avg),
			Confidence: round4(marketScore * 0.6),
			Reasoning:  fmt.Sprintf("Match the competitor average of %.2f across %d competitor(s)", avg, n),
		})
	}
	candidates = append(candidates, Alternative{
		Price:      b.finalize(in.Product.CurrentPrice),
		Confidence: round4(c.weights.Base),
		Reasoning:  "Keep the current price",
	})

	seen := map[int64]bool{cents(final): true}
	out := make([]Alternative, 0, len(candidates))
	for _, alt := range candidates {
		key := cents(alt.Price)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, alt)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Price < out[j].Price
	})
	if len(out) > c.maxAlternatives {
		out = out[:c.maxAlternatives]
	}
	return out
}

func reasoning(current, final float64, fired []RuleEvaluation, strategyNote string, clamped bool) string {
	var sb strings.Builder
	if len(fired) == 0 {
		sb.WriteString("No applicable pricing rules.")
	} else {
		names := make([]string, 0, len(fired))
		for _, ev := range fired {
			names = append(names, ev.Rule.label())
		}
		fmt.Fprintf(&sb, "Applied %d rule(s) in priority order: %s.", len(fired), strings.Join(names, ", "))
	}
	if strategyNote != "" {
		sb.WriteString(" ")
		sb.WriteString(strategyNote)
	}
	if clamped {
		sb.WriteString(" Result clamped to configured bounds.")
	}
	if cents(final) == cents(current) {
		fmt.Fprintf(&sb, " Price stays at %.2f.", final)
	} else {
		change := 0.0
		if current > 0 {
			change = (final - current) / current * 100
		}
		fmt.Fprintf(&sb, " Price moves from %.2f to %.2f (%+.2f%%).", current, final, change)
	}
	return sb.String()
}

// priceBounds 是一次计算中所有价格边界的合集。
type priceBounds struct {
	lo, hi           float64 // hi 可能为 +Inf
	loLabel, hiLabel string
	hasChange        bool
	changeLo         float64
	changeHi         float64
}

func newPriceBounds(p Product, current float64, c Constraints) (priceBounds, []string) {
	b := priceBounds{lo: 0, hi: math.Inf(1)}
	tightenLo := func(v float64, label string) {
		if v > b.lo {
			b.lo, b.loLabel = v, label
		}
	}
	tightenHi := func(v float64, label string) {
		if v < b.hi {
			b.hi, b.hiLabel = v, label
		}
	}
	if c.MinPrice != nil {
		tightenLo(*c.MinPrice, "constraint minPrice")
	}
	if p.BasePrice != nil {
		tightenLo(*p.BasePrice, "product basePrice")
	}
	if c.MinMargin != nil && p.CostPrice != nil && *p.CostPrice > 0 {
		tightenLo(*p.CostPrice/(1-*c.MinMargin/100), "minimum margin")
	}
	if c.MaxPrice != nil {
		tightenHi(*c.MaxPrice, "constraint maxPrice")
	}
	if p.MaxPrice != nil {
		tightenHi(*p.MaxPrice, "product maxPrice")
	}

	var warnings []string
	if b.lo > b.hi {
		warnings = append(warnings, fmt.Sprintf("lower bound %s %.2f exceeds upper bound %s %.2f; upper bound wins", b.loLabel, b.lo, b.hiLabel, b.hi))
		b.lo, b.loLabel = b.hi, b.hiLabel
	}
	if c.MaxChange != nil {
		b.hasChange = true
		b.changeLo = math.Max(0, current*(1-*c.MaxChange/100))
		b.changeHi = current * (1 + *c.MaxChange/100)
	}
	return b, warnings
}

// apply 依次执行静态边界钳制和最大变动钳制，并记录每一步的告警。
func (b priceBounds) apply(price float64) (float64, []string) {
	var warnings []string
	p := math.Max(price, 0)
	if p < b.lo {
		warnings = append(warnings, fmt.Sprintf("price %.2f clamped up to %s %.2f", p, b.loLabel, b.lo))
		p = b.lo
	} else if p > b.hi {
		warnings = append(warnings, fmt.Sprintf("price %.2f clamped down to %s %.2f", p, b.hiLabel, b.hi))
		p = b.hi
	}
	if b.hasChange {
		if p < b.changeLo {
			warnings = append(warnings, fmt.Sprintf("price %.2f limited by maxChange to %.2f", p, b.changeLo))
			p = b.changeLo
		} else if p > b.changeHi {
			warnings = append(warnings, fmt.Sprintf("price %.2f limited by maxChange to %.2f", p, b.changeHi))
			p = b.changeHi
		}
	}
	lo, hi := b.interval()
	return roundCents(math.Max(p, 0), lo, hi), warnings
}

func (b priceBounds) finalize(price float64) float64 {
	p, _ := b.apply(price)
	return p
}

// interval 返回最终价格必须落入的区间；maxChange 最后生效，因此优先。
func (b priceBounds) interval() (float64, float64) {
	if b.hasChange {
		return b.changeLo, b.changeHi
	}
	return b.lo, b.hi
}

// roundCents 四舍五入到分，但不会因为舍入跳出 [lo, hi]。
func roundCents(p, lo, hi float64) float64 {
	d := decimal.NewFromFloat(p).Round(2)
	if !math.IsInf(hi, 1) && d.GreaterThan(decimal.NewFromFloat(hi)) {
		d = decimal.NewFromFloat(hi).RoundFloor(2)
	}
	if d.LessThan(decimal.NewFromFloat(lo)) {
		d = decimal.NewFromFloat(lo).RoundCeil(2)
		if !math.IsInf(hi, 1) && d.GreaterThan(decimal.NewFromFloat(hi)) {
			return hi
		}
	}
	return d.InexactFloat64()
}

func cents(p float64) int64 {
	return decimal.NewFromFloat(p).Shift(2).Round(0).IntPart()
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
