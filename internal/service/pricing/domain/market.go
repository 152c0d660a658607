package domain

import "time"

type MarketTrend string

const (
	TrendIncreasing MarketTrend = "increasing"
	TrendDecreasing MarketTrend = "decreasing"
	TrendStable     MarketTrend = "stable"
)

type DemandLevel string

const (
	DemandLow    DemandLevel = "low"
	DemandMedium DemandLevel = "medium"
	DemandHigh   DemandLevel = "high"
)

// CompetitorPrice 是某个竞争对手的一次报价快照。
type CompetitorPrice struct {
	Competitor  string    `json:"competitor"`
	Price       float64   `json:"price"`
	URL         string    `json:"url,omitempty"`
	LastChecked time.Time `json:"lastChecked"`
}

// MarketData 是可选的市场快照。缺失时依赖市场字段的条件不成立，而不是报错。
type MarketData struct {
	ProductID        string            `json:"productId"`
	CompetitorPrices []CompetitorPrice `json:"competitorPrices"`
	MarketTrend      MarketTrend       `json:"marketTrend"`
	DemandLevel      DemandLevel       `json:"demandLevel"`
	Seasonality      float64           `json:"seasonality"` // 0..1
	LastUpdated      time.Time         `json:"lastUpdated"`
}

// CompetitorStats 汇总有效的竞品价格（忽略非正数报价）。
func (m *MarketData) CompetitorStats() (min, max, avg float64, count int) {
	if m == nil {
		return 0, 0, 0, 0
	}
	sum := 0.0
	for _, cp := range m.CompetitorPrices {
		if cp.Price <= 0 || !isFinite(cp.Price) {
			continue
		}
		if count == 0 || cp.Price < min {
			min = cp.Price
		}
		if count == 0 || cp.Price > max {
			max = cp.Price
		}
		sum += cp.Price
		count++
	}
	if count > 0 {
		avg = sum / float64(count)
	}
	return min, max, avg, count
}

// AgeHours 返回快照相对 asOf 的年龄（小时）；asOf 或 LastUpdated 为零值时返回 false。
func (m *MarketData) AgeHours(asOf time.Time) (float64, bool) {
	if m == nil || asOf.IsZero() || m.LastUpdated.IsZero() {
		return 0, false
	}
	return asOf.Sub(m.LastUpdated).Hours(), true
}

// IsStale 以调用方提供的时间点判断快照是否过期；asOf 为零值时永不过期。
func (m *MarketData) IsStale(asOf time.Time, staleAfter time.Duration) bool {
	if m == nil || asOf.IsZero() || staleAfter <= 0 {
		return false
	}
	if m.LastUpdated.IsZero() {
		return true
	}
	return asOf.Sub(m.LastUpdated) > staleAfter
}
