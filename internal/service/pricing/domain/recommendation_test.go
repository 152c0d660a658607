package domain

import (
	"testing"
	"time"
)

func TestEstimateImpact(t *testing.T) {
	p := Product{ID: "p", CurrentPrice: 100, CostPrice: Price(60)}
	impact := EstimateImpact(p, nil, 110)
	if impact.SalesChange != -12 || impact.RevenueChange != -3.2 || impact.MarginChange != 5.45 {
		t.Fatalf("unexpected impact: %+v", impact)
	}

	high := EstimateImpact(p, &MarketData{DemandLevel: DemandHigh}, 110)
	if high.SalesChange != -8 {
		t.Fatalf("expected -8%% sales for high demand, got %v", high.SalesChange)
	}

	if got := EstimateImpact(Product{ID: "free"}, nil, 10); got != (ExpectedImpact{}) {
		t.Fatalf("expected zero impact for zero current price, got %+v", got)
	}
}

func TestNewRecommendationCopiesResult(t *testing.T) {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	result := &CalculationResult{RecommendedPrice: 110, Confidence: 0.5, Reasoning: "r", Warnings: []string{"w"}}
	rec := NewRecommendation(Product{ID: "p", VariantID: "v", CurrentPrice: 100}, nil, result, AlgorithmRuleBased, "id-1", created)
	if rec.ID != "id-1" || rec.VariantID != "v" || rec.RecommendedPrice != 110 || !rec.CreatedAt.Equal(created) {
		t.Fatalf("unexpected recommendation: %+v", rec)
	}
	result.Warnings[0] = "changed"
	if rec.Warnings[0] != "w" {
		t.Fatal("warnings shared with result")
	}
}
