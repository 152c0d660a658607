package domain

import (
	"fmt"
	"math"
)

// Product 是定价计算使用的商品快照。
// 可选的价格字段使用指针，nil 表示该商品没有设置对应的边界。
type Product struct {
	ID                  string   `json:"id" yaml:"id"`
	VariantID           string   `json:"variantId,omitempty" yaml:"variantId,omitempty"`
	Title               string   `json:"title" yaml:"title"`
	Handle              string   `json:"handle,omitempty" yaml:"handle,omitempty"`
	CurrentPrice        float64  `json:"currentPrice" yaml:"currentPrice"`
	BasePrice           *float64 `json:"basePrice,omitempty" yaml:"basePrice,omitempty"`
	MaxPrice            *float64 `json:"maxPrice,omitempty" yaml:"maxPrice,omitempty"`
	CompareAtPrice      *float64 `json:"compareAtPrice,omitempty" yaml:"compareAtPrice,omitempty"`
	CostPrice           *float64 `json:"costPrice,omitempty" yaml:"costPrice,omitempty"`
	Inventory           int      `json:"inventory" yaml:"inventory"`
	Category            string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tags                []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Vendor              string   `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	SmartPricingEnabled bool     `json:"smartPricingEnabled" yaml:"smartPricingEnabled"`
}

// Price 是构造可选价格字段的便捷函数。
func Price(v float64) *float64 { return &v }

// Clone 返回一个与原对象不共享任何可变状态的副本。
func (p Product) Clone() Product {
	c := p
	c.BasePrice = clonePrice(p.BasePrice)
	c.MaxPrice = clonePrice(p.MaxPrice)
	c.CompareAtPrice = clonePrice(p.CompareAtPrice)
	c.CostPrice = clonePrice(p.CostPrice)
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	return c
}

// Validate 只拒绝无法参与计算的输入；越界的价格会在计算中被钳制而不是拒绝。
func (p Product) Validate() error {
	if !isFinite(p.CurrentPrice) {
		return fmt.Errorf("%w: currentPrice of %q is not finite", ErrInvalidProduct, p.ID)
	}
	for name, v := range map[string]*float64{
		"basePrice": p.BasePrice, "maxPrice": p.MaxPrice,
		"compareAtPrice": p.CompareAtPrice, "costPrice": p.CostPrice,
	} {
		if v != nil && !isFinite(*v) {
			return fmt.Errorf("%w: %s of %q is not finite", ErrInvalidProduct, name, p.ID)
		}
	}
	return nil
}

// HasTag 判断商品是否带有指定标签。
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Margin 返回当前售价下的毛利率（0..1），没有成本价时返回 false。
func (p Product) Margin() (float64, bool) {
	if p.CostPrice == nil || p.CurrentPrice <= 0 {
		return 0, false
	}
	return (p.CurrentPrice - *p.CostPrice) / p.CurrentPrice, true
}

// NormalizeBounds 修复 basePrice <= currentPrice <= maxPrice 的顺序约束。
// 违反约束的值会被钳制而非拒绝，返回值表示是否做了修改。
func (p *Product) NormalizeBounds() bool {
	changed := false
	if p.BasePrice != nil && p.MaxPrice != nil && *p.BasePrice > *p.MaxPrice {
		p.MaxPrice = Price(*p.BasePrice)
		changed = true
	}
	if p.BasePrice != nil && p.CurrentPrice < *p.BasePrice {
		p.CurrentPrice = *p.BasePrice
		changed = true
	}
	if p.MaxPrice != nil && p.CurrentPrice > *p.MaxPrice {
		p.CurrentPrice = *p.MaxPrice
		changed = true
	}
	return changed
}

func clonePrice(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Price(*v)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
