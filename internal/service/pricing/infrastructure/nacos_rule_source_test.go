package infrastructure

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"pricewise/internal/pkg/metrics"
	"pricewise/internal/service/pricing/domain"
)

type fakeCenter struct {
	content  string
	onChange func(string)
}

func (f *fakeCenter) GetConfig(_, _ string) (string, error) { return f.content, nil }

func (f *fakeCenter) ListenConfig(_, _ string, onChange func(string)) error {
	f.onChange = onChange
	return nil
}

const ruleDoc = `
rules:
  - id: low-stock
    name: Low stock premium
    type: inventory_based
    isActive: true
    priority: 10
    conditions:
      - field: inventory
        operator: less_than
        value: 10
    actions:
      - type: adjust_percentage
        value: 10
  - id: disabled
    isActive: false
    actions:
      - type: adjust_fixed
        value: -1
`

func TestNacosRuleSourceLoadsAndSwaps(t *testing.T) {
	center := &fakeCenter{content: ruleDoc}
	m := metrics.NewPricingMetrics(prometheus.NewRegistry())
	src := NewNacosRuleSource(center, "pricing-rules.yaml", "DEFAULT_GROUP", domain.NewRuleEngine(nil), m)
	if err := src.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	rules, _ := src.ActiveRules(context.Background())
	if len(rules) != 1 || rules[0].ID != "low-stock" {
		t.Fatalf("unexpected active rules: %+v", rules)
	}

	// 非法的更新被拒绝，旧规则继续生效
	center.onChange("rules:\n  - id: broken\n    isActive: true\n    actions:\n      - type: discount\n        value: 1\n")
	rules, _ = src.ActiveRules(context.Background())
	if len(rules) != 1 || rules[0].ID != "low-stock" {
		t.Fatalf("previous rules should survive a bad update: %+v", rules)
	}

	center.onChange("rules: []\n")
	rules, _ = src.ActiveRules(context.Background())
	if len(rules) != 0 {
		t.Fatalf("expected empty rule set, got %+v", rules)
	}

	if got := testutil.ToFloat64(m.RuleReloads.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successful reloads, got %v", got)
	}
	if got := testutil.ToFloat64(m.RuleReloads.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed reload, got %v", got)
	}
}

func TestNacosRuleSourceRejectsInvalidInitialDocument(t *testing.T) {
	src := NewNacosRuleSource(&fakeCenter{content: "rules: [oops"}, "d", "g", domain.NewRuleEngine(nil), nil)
	if err := src.Start(); err == nil {
		t.Fatal("expected parse error")
	}
}
