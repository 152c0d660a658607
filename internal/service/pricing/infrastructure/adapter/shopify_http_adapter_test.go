package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"pricewise/internal/pkg/httpclient"
)

func TestShopifyUpdateVariantPrice(t *testing.T) {
	var gotPath, gotToken string
	var gotBody map[string]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"variant":{"id":42,"price":"19.90"}}`))
	}))
	defer srv.Close()

	a := NewShopifyCatalogAdapter(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), ShopifyOptions{
		BaseURL:     srv.URL,
		AccessToken: "shpat_test",
	})
	if err := a.UpdateVariantPrice(context.Background(), "gid://shopify/ProductVariant/42", 19.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "PUT /admin/api/2024-01/variants/42.json" {
		t.Fatalf("unexpected request: %s", gotPath)
	}
	if gotToken != "shpat_test" {
		t.Fatalf("unexpected token: %q", gotToken)
	}
	if gotBody["variant"]["price"] != "19.90" || gotBody["variant"]["id"] != float64(42) {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestShopifyErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":{"price":["must be greater than or equal to 0"]}}`))
	}))
	defer srv.Close()

	a := NewShopifyCatalogAdapter(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), ShopifyOptions{BaseURL: srv.URL})
	err := a.UpdateVariantPrice(context.Background(), "7", 1)
	var apiErr *ShopifyAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ShopifyAPIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || len(apiErr.Errors) == 0 {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestShopifyRejectsNonNumericVariant(t *testing.T) {
	a := NewShopifyCatalogAdapter(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), ShopifyOptions{BaseURL: "http://127.0.0.1:1"})
	if err := a.UpdateVariantPrice(context.Background(), "abc", 1); err == nil {
		t.Fatal("expected error for non-numeric variant id")
	}
}
