package domain

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestApplyBulkPercentageAndFixed(t *testing.T) {
	cases := []struct {
		name    string
		targets []Product
		delta   float64
		kind    AdjustmentType
		want    []float64
	}{
		{"percentage up", []Product{{ID: "a", CurrentPrice: 100}, {ID: "b", CurrentPrice: 30}}, 10, AdjustPercentage, []float64{110, 33}},
		{"fixed up", []Product{{ID: "a", CurrentPrice: 50}, {ID: "b", CurrentPrice: 200}}, 10, AdjustFixed, []float64{60, 210}},
		{"fixed down floors at zero", []Product{{ID: "a", CurrentPrice: 100}, {ID: "b", CurrentPrice: 30}}, -50, AdjustFixed, []float64{50, 0}},
		{"minus 100 percent is exactly zero", []Product{{ID: "a", CurrentPrice: 19.99}, {ID: "b", CurrentPrice: 0.01}, {ID: "c", CurrentPrice: 1234.56}}, -100, AdjustPercentage, []float64{0, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ApplyBulk(tc.targets, FieldCurrentPrice, tc.delta, tc.kind)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Items) != len(tc.want) {
				t.Fatalf("expected %d items, got %d", len(tc.want), len(res.Items))
			}
			for i, want := range tc.want {
				item := res.Items[i]
				if item.Err != nil {
					t.Fatalf("%s: unexpected error: %v", item.ProductID, item.Err)
				}
				if !approx(item.NewValue, want) {
					t.Fatalf("%s: expected %v, got %v", item.ProductID, want, item.NewValue)
				}
				if want == 0 && item.NewValue != 0 {
					t.Fatalf("%s: expected exactly 0, got %v", item.ProductID, item.NewValue)
				}
				if item.OldValue != tc.targets[i].CurrentPrice {
					t.Fatalf("%s: expected old value %v, got %v", item.ProductID, tc.targets[i].CurrentPrice, item.OldValue)
				}
			}
		})
	}
}

func TestApplyBulkDoesNotMutateInput(t *testing.T) {
	targets := []Product{{ID: "a", CurrentPrice: 100, BasePrice: Price(80), Tags: []string{"x"}}}
	res, err := ApplyBulk(targets, FieldBasePrice, 25, AdjustPercentage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *targets[0].BasePrice != 80 {
		t.Fatalf("input mutated: basePrice=%v", *targets[0].BasePrice)
	}
	if *res.Items[0].Product.BasePrice != 100 {
		t.Fatalf("expected adjusted copy 100, got %v", *res.Items[0].Product.BasePrice)
	}
	res.Items[0].Product.Tags[0] = "changed"
	if targets[0].Tags[0] != "x" {
		t.Fatal("tags slice shared with input")
	}
}

func TestApplyBulkPerItemFailures(t *testing.T) {
	targets := []Product{
		{ID: "ok", CurrentPrice: 10, CostPrice: Price(5)},
		{ID: "no-cost", CurrentPrice: 10},
		{ID: "negative", CurrentPrice: 10, CostPrice: Price(-1)},
		{ID: "huge", CurrentPrice: 10, CostPrice: Price(math.MaxFloat64)},
	}
	res, err := ApplyBulk(targets, FieldCostPrice, 200, AdjustPercentage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != len(targets) {
		t.Fatalf("expected %d items, got %d", len(targets), len(res.Items))
	}
	for i, id := range []string{"ok", "no-cost", "negative", "huge"} {
		if res.Items[i].ProductID != id {
			t.Fatalf("order not preserved at %d: %s", i, res.Items[i].ProductID)
		}
	}
	if res.Items[0].Err != nil || res.Items[0].NewValue != 15 {
		t.Fatalf("unexpected first item: %+v", res.Items[0])
	}
	if !errors.Is(res.Items[1].Err, ErrFieldNotSet) {
		t.Fatalf("expected ErrFieldNotSet, got %v", res.Items[1].Err)
	}
	if !errors.Is(res.Items[2].Err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", res.Items[2].Err)
	}
	if !errors.Is(res.Items[3].Err, ErrInvalidPrice) {
		t.Fatalf("expected overflow to fail, got %v", res.Items[3].Err)
	}
	if len(res.Succeeded()) != 1 || len(res.Failed()) != 3 {
		t.Fatalf("expected 1 success and 3 failures, got %d/%d", len(res.Succeeded()), len(res.Failed()))
	}
}

func TestApplyBulkBatchValidation(t *testing.T) {
	targets := []Product{{ID: "a", CurrentPrice: 1}}
	cases := []struct {
		name  string
		field PriceField
		delta float64
		kind  AdjustmentType
		want  error
	}{
		{"unknown field", "compareAtPrice", 1, AdjustFixed, ErrInvalidBulkField},
		{"unknown type", FieldCurrentPrice, 1, "multiply", ErrInvalidBulkType},
		{"nan delta", FieldCurrentPrice, math.NaN(), AdjustFixed, ErrInvalidDelta},
		{"infinite delta", FieldCurrentPrice, math.Inf(1), AdjustPercentage, ErrInvalidDelta},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ApplyBulk(targets, tc.field, tc.delta, tc.kind)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if res != nil {
				t.Fatalf("expected no result, got %+v", res)
			}
		})
	}
}

func TestNormalizeBounds(t *testing.T) {
	p := Product{ID: "a", CurrentPrice: 150, BasePrice: Price(90), MaxPrice: Price(120)}
	if !p.NormalizeBounds() || p.CurrentPrice != 120 {
		t.Fatalf("expected current clamped to 120, got %v", p.CurrentPrice)
	}
	p = Product{ID: "b", CurrentPrice: 50, BasePrice: Price(130), MaxPrice: Price(120)}
	p.NormalizeBounds()
	if *p.MaxPrice != 130 || p.CurrentPrice != 130 {
		t.Fatalf("unexpected repair: max=%v current=%v", *p.MaxPrice, p.CurrentPrice)
	}
	p = Product{ID: "c", CurrentPrice: 100}
	if p.NormalizeBounds() {
		t.Fatal("expected no change without bounds")
	}
}
