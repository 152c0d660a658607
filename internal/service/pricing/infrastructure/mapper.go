package infrastructure

import "pricewise/internal/service/pricing/domain"

// ToDomainRule 将数据库模型转换为领域模型
func ToDomainRule(model *PricingRuleModel) *domain.PricingRule {
	if model == nil {
		return nil
	}
	return &domain.PricingRule{
		ID:          model.ID,
		Name:        model.Name,
		Description: model.Description,
		Type:        domain.RuleType(model.Type),
		Conditions:  model.Conditions,
		Actions:     model.Actions,
		IsActive:    model.IsActive,
		Priority:    model.Priority,
		Expression:  model.Expression,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// FromDomainRule 将领域模型转换为数据库模型
func FromDomainRule(rule *domain.PricingRule) *PricingRuleModel {
	if rule == nil {
		return nil
	}
	return &PricingRuleModel{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Type:        string(rule.Type),
		Conditions:  rule.Conditions,
		Actions:     rule.Actions,
		IsActive:    rule.IsActive,
		Priority:    rule.Priority,
		Expression:  rule.Expression,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
	}
}

// ToDomainRecommendation 将数据库模型转换为领域模型
func ToDomainRecommendation(model *RecommendationModel) *domain.PricingRecommendation {
	if model == nil {
		return nil
	}
	return &domain.PricingRecommendation{
		ID:               model.ID,
		ProductID:        model.ProductID,
		VariantID:        model.VariantID,
		CurrentPrice:     model.CurrentPrice,
		RecommendedPrice: model.RecommendedPrice,
		Confidence:       model.Confidence,
		Reasoning:        model.Reasoning,
		Warnings:         model.Warnings,
		ExpectedImpact: domain.ExpectedImpact{
			RevenueChange: model.RevenueChange,
			SalesChange:   model.SalesChange,
			MarginChange:  model.MarginChange,
		},
		Algorithm: domain.Algorithm(model.Algorithm),
		CreatedAt: model.CreatedAt,
	}
}

// FromDomainRecommendation 将领域模型转换为数据库模型
func FromDomainRecommendation(rec *domain.PricingRecommendation) *RecommendationModel {
	if rec == nil {
		return nil
	}
	return &RecommendationModel{
		ID:               rec.ID,
		ProductID:        rec.ProductID,
		VariantID:        rec.VariantID,
		CurrentPrice:     rec.CurrentPrice,
		RecommendedPrice: rec.RecommendedPrice,
		Confidence:       rec.Confidence,
		Reasoning:        rec.Reasoning,
		Warnings:         rec.Warnings,
		RevenueChange:    rec.ExpectedImpact.RevenueChange,
		SalesChange:      rec.ExpectedImpact.SalesChange,
		MarginChange:     rec.ExpectedImpact.MarginChange,
		Algorithm:        string(rec.Algorithm),
		CreatedAt:        rec.CreatedAt,
	}
}
