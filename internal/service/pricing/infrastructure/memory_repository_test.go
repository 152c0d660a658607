package infrastructure

import (
	"context"
	"errors"
	"testing"

	"pricewise/internal/service/pricing/domain"
)

func TestMemoryRuleRepositoryOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRuleRepository(
		domain.PricingRule{ID: "a", Priority: 1, IsActive: true},
		domain.PricingRule{ID: "b", Priority: 5, IsActive: false},
		domain.PricingRule{ID: "c", Priority: 1, IsActive: true},
		domain.PricingRule{ID: "d", Priority: 9, IsActive: true},
	)
	active, _ := repo.ActiveRules(ctx)
	var ids []string
	for _, r := range active {
		ids = append(ids, r.ID)
	}
	if len(ids) != 3 || ids[0] != "d" || ids[1] != "a" || ids[2] != "c" {
		t.Fatalf("unexpected order: %v", ids)
	}
	all, _ := repo.List(ctx)
	if len(all) != 4 {
		t.Fatalf("list should include inactive rules, got %d", len(all))
	}

	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, "a"); !errors.Is(err, domain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "a"); !errors.Is(err, domain.ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound on second delete, got %v", err)
	}
}

func TestMemoryRecommendationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRecommendationRepository()
	for _, id := range []string{"r1", "r2", "r3"} {
		_ = repo.Save(ctx, &domain.PricingRecommendation{ID: id, ProductID: "p"})
	}
	_ = repo.Save(ctx, &domain.PricingRecommendation{ID: "other", ProductID: "q"})

	recs, _ := repo.ListByProduct(ctx, "p", 2)
	if len(recs) != 2 || recs[0].ID != "r3" || recs[1].ID != "r2" {
		t.Fatalf("unexpected list: %+v", recs)
	}
	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, domain.ErrRecommendationNotFound) {
		t.Fatalf("expected ErrRecommendationNotFound, got %v", err)
	}
}

func TestMemoryMarketStoreMissIsNil(t *testing.T) {
	s := NewMemoryMarketDataStore()
	got, err := s.Get(context.Background(), "p")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
}
