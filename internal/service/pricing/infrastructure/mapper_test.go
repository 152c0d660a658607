package infrastructure

import (
	"testing"
	"time"

	"pricewise/internal/service/pricing/domain"
)

func TestRuleModelKeepsConditionsAndActions(t *testing.T) {
	v2 := domain.Number(20)
	rule := &domain.PricingRule{
		ID:       "r1",
		Name:     "low stock",
		Type:     domain.RuleTypeInventoryBased,
		IsActive: true,
		Priority: 7,
		Conditions: []domain.PricingCondition{
			{Field: "inventory", Operator: domain.OpBetween, Value: domain.Number(10), Value2: &v2},
		},
		Actions:    []domain.PricingAction{{Type: domain.ActionAdjustPercentage, Value: 5, MaxPrice: domain.Price(50)}},
		Expression: "hasMarket",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	model := FromDomainRule(rule)
	if model.Type != "inventory_based" || model.Priority != 7 {
		t.Fatalf("unexpected model: %+v", model)
	}
	back := ToDomainRule(model)
	if back.Conditions[0].Value2 == nil || !back.Conditions[0].Value2.Equal(v2) {
		t.Fatalf("value2 lost: %+v", back.Conditions[0])
	}
	if *back.Actions[0].MaxPrice != 50 || back.Expression != "hasMarket" || !back.CreatedAt.Equal(rule.CreatedAt) {
		t.Fatalf("unexpected rule: %+v", back)
	}
	if ToDomainRule(nil) != nil || FromDomainRule(nil) != nil {
		t.Fatal("nil should map to nil")
	}
}

func TestRecommendationModelFlattensImpact(t *testing.T) {
	rec := &domain.PricingRecommendation{
		ID:               "rec-1",
		ProductID:        "p1",
		RecommendedPrice: 110,
		Warnings:         []string{"no competitor data"},
		ExpectedImpact:   domain.ExpectedImpact{RevenueChange: -12, SalesChange: -8, MarginChange: 5.45},
		Algorithm:        domain.AlgorithmRuleBased,
	}
	model := FromDomainRecommendation(rec)
	if model.RevenueChange != -12 || model.SalesChange != -8 || model.MarginChange != 5.45 {
		t.Fatalf("impact not flattened: %+v", model)
	}
	back := ToDomainRecommendation(model)
	if back.ExpectedImpact != rec.ExpectedImpact || back.Algorithm != domain.AlgorithmRuleBased || len(back.Warnings) != 1 {
		t.Fatalf("unexpected recommendation: %+v", back)
	}
}
