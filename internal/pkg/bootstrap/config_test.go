package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	doc := `
app:
  port: 9000
infra:
  kafka:
    enabled: true
    brokers: [k1:9092]
pricing:
  staleAfter: 6h
  maxAlternatives: 2
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.App.Port != 9100 {
		t.Fatalf("expected env port override, got %d", cfg.App.Port)
	}
	if len(cfg.Infra.Kafka.Brokers) != 2 || !cfg.Infra.Kafka.Enabled {
		t.Fatalf("unexpected kafka config: %+v", cfg.Infra.Kafka)
	}
	if cfg.Pricing.StaleAfter != 6*time.Hour || cfg.Pricing.MaxAlternatives != 2 {
		t.Fatalf("unexpected pricing config: %+v", cfg.Pricing)
	}
	if cfg.Infra.Kafka.RecommendationTopic != "pricing-recommendations" {
		t.Fatalf("defaults should survive partial file, got %q", cfg.Infra.Kafka.RecommendationTopic)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.App.Port != 8084 || cfg.Shopify.APIVersion != "2024-01" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestShopifyValidate(t *testing.T) {
	if err := (ShopifyConfig{}).Validate(); err != nil {
		t.Fatalf("disabled sync should not require credentials: %v", err)
	}
	err := ShopifyConfig{SyncEnabled: true, ShopDomain: "demo.myshopify.com"}.Validate()
	if err == nil {
		t.Fatal("expected missing credential error")
	}
	for _, name := range []string{"SHOPIFY_ACCESS_TOKEN", "SHOPIFY_CLIENT_ID", "SHOPIFY_CLIENT_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in %q", name, err)
		}
	}
}

func TestShutdownHooksRunInReverse(t *testing.T) {
	var order []string
	h := &shutdownHooks{}
	h.add("first", func(context.Context) error { order = append(order, "first"); return nil })
	h.add("second", func(context.Context) error { order = append(order, "second"); return errors.New("boom") })
	h.add("third", func(context.Context) error { order = append(order, "third"); return nil })
	h.run(context.Background())
	if strings.Join(order, ",") != "third,second,first" {
		t.Fatalf("unexpected order: %v", order)
	}
}
