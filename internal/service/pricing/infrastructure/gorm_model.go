package infrastructure

import (
	"time"

	"pricewise/internal/service/pricing/domain"
)

// PricingRuleModel 对应数据库中的 pricing_rule 表，条件和动作以 JSON 列保存
type PricingRuleModel struct {
	ID          string                    `gorm:"primaryKey;size:64"`
	Name        string                    `gorm:"size:255"`
	Description string                    `gorm:"type:text"`
	Type        string                    `gorm:"size:32;index"`
	Conditions  []domain.PricingCondition `gorm:"serializer:json;type:json"`
	Actions     []domain.PricingAction    `gorm:"serializer:json;type:json"`
	IsActive    bool                      `gorm:"index"`
	Priority    int
	Expression  string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名
func (PricingRuleModel) TableName() string {
	return "pricing_rule"
}

// RecommendationModel 对应数据库中的 pricing_recommendation 表
type RecommendationModel struct {
	ID               string  `gorm:"primaryKey;size:64"`
	ProductID        string  `gorm:"size:64;index:idx_product_created,priority:1"`
	VariantID        string  `gorm:"size:64"`
	CurrentPrice     float64 `gorm:"type:decimal(12,2)"`
	RecommendedPrice float64 `gorm:"type:decimal(12,2)"`
	Confidence       float64
	Reasoning        string   `gorm:"type:text"`
	Warnings         []string `gorm:"serializer:json;type:json"`
	RevenueChange    float64
	SalesChange      float64
	MarginChange     float64
	Algorithm        string    `gorm:"size:32"`
	CreatedAt        time.Time `gorm:"index:idx_product_created,priority:2"`
}

// TableName 指定 GORM 应该使用的表名
func (RecommendationModel) TableName() string {
	return "pricing_recommendation"
}
