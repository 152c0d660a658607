package domain

import (
	"fmt"
	"math"
)

// PriceField 是批量调价可以修改的字段。
type PriceField string

const (
	FieldCurrentPrice PriceField = "currentPrice"
	FieldBasePrice    PriceField = "basePrice"
	FieldMaxPrice     PriceField = "maxPrice"
	FieldCostPrice    PriceField = "costPrice"
)

func (f PriceField) Valid() bool {
	switch f {
	case FieldCurrentPrice, FieldBasePrice, FieldMaxPrice, FieldCostPrice:
		return true
	}
	return false
}

// AdjustmentType 是批量调价的方式。
type AdjustmentType string

const (
	AdjustPercentage AdjustmentType = "percentage"
	AdjustFixed      AdjustmentType = "fixed"
)

func (t AdjustmentType) Valid() bool {
	return t == AdjustPercentage || t == AdjustFixed
}

// ValidateBulk 校验整个批次共享的参数，失败时整个批次都不执行。
func ValidateBulk(field PriceField, delta float64, kind AdjustmentType) error {
	if !field.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBulkField, field)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidBulkType, kind)
	}
	if !isFinite(delta) {
		return fmt.Errorf("%w: delta must be finite", ErrInvalidDelta)
	}
	return nil
}

// BulkItem 是批量调价中单个商品的结果，Err 非空表示该商品失败。
type BulkItem struct {
	ProductID string
	Product   Product
	OldValue  float64
	NewValue  float64
	Err       error
}

// BulkResult 保留输入顺序，成功与失败并存。
type BulkResult struct {
	Field PriceField
	Type  AdjustmentType
	Delta float64
	Items []BulkItem
}

func (r *BulkResult) Succeeded() []BulkItem {
	out := make([]BulkItem, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it)
		}
	}
	return out
}

func (r *BulkResult) Failed() []BulkItem {
	var out []BulkItem
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// ApplyBulk 对每个商品的副本应用同一个调价。单个商品失败不影响其他商品。
// 它不维护 basePrice <= currentPrice <= maxPrice 的跨字段顺序，需要时由调用方调用 NormalizeBounds。
func ApplyBulk(targets []Product, field PriceField, delta float64, kind AdjustmentType) (*BulkResult, error) {
	if err := ValidateBulk(field, delta, kind); err != nil {
		return nil, err
	}
	res := &BulkResult{Field: field, Type: kind, Delta: delta, Items: make([]BulkItem, len(targets))}
	for i, p := range targets {
		res.Items[i] = AdjustProduct(p, field, delta, kind)
	}
	return res, nil
}

// AdjustProduct 计算单个商品的新值。调用方需先通过 ValidateBulk 校验批次参数。
func AdjustProduct(p Product, field PriceField, delta float64, kind AdjustmentType) BulkItem {
	item := BulkItem{ProductID: p.ID}
	c := p.Clone()

	var slot *float64
	switch field {
	case FieldCurrentPrice:
		slot = &c.CurrentPrice
	case FieldBasePrice:
		slot = c.BasePrice
	case FieldMaxPrice:
		slot = c.MaxPrice
	case FieldCostPrice:
		slot = c.CostPrice
	default:
		item.Err = fmt.Errorf("%w: %q", ErrInvalidBulkField, field)
		return item
	}
	if slot == nil {
		item.Err = fmt.Errorf("product %q: %w: %s", p.ID, ErrFieldNotSet, field)
		return item
	}
	old := *slot
	if !isFinite(old) || old < 0 {
		item.Err = fmt.Errorf("product %q: %w: %s=%v", p.ID, ErrInvalidPrice, field, old)
		return item
	}

	var next float64
	switch kind {
	case AdjustPercentage:
		next = old * (1 + delta/100)
	case AdjustFixed:
		next = old + delta
	default:
		item.Err = fmt.Errorf("%w: %q", ErrInvalidBulkType, kind)
		return item
	}
	if !isFinite(next) {
		item.Err = fmt.Errorf("product %q: %w: adjusted %s overflows", p.ID, ErrInvalidPrice, field)
		return item
	}
	next = math.Max(next, 0)
	*slot = next

	item.Product = c
	item.OldValue = old
	item.NewValue = next
	return item
}
