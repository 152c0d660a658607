// internal/service/pricing/infrastructure/adapter/shopify_http_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"pricewise/internal/pkg/httpclient"
)

const defaultAPIVersion = "2024-01"

// ShopifyAPIError 是 Admin API 返回的非 2xx 响应
type ShopifyAPIError struct {
	StatusCode int
	Errors     json.RawMessage
	Message    string
}

func (e *ShopifyAPIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("shopify api error %d: %s", e.StatusCode, e.Errors)
	}
	return fmt.Sprintf("shopify api error %d: %s", e.StatusCode, e.Message)
}

// ShopifyOptions 配置 Admin API 访问
type ShopifyOptions struct {
	ShopDomain  string
	APIVersion  string
	AccessToken string
	// BaseURL 为空时使用 https://{ShopDomain}
	BaseURL string
}

// ShopifyCatalogAdapter 实现 port.CatalogService，通过 REST Admin API 更新变体价格
type ShopifyCatalogAdapter struct {
	client  *httpclient.Client
	baseURL string
	version string
	token   string
}

func NewShopifyCatalogAdapter(client *httpclient.Client, opts ShopifyOptions) *ShopifyCatalogAdapter {
	base := opts.BaseURL
	if base == "" {
		base = "https://" + opts.ShopDomain
	}
	version := opts.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	return &ShopifyCatalogAdapter{
		client:  client,
		baseURL: strings.TrimRight(base, "/"),
		version: version,
		token:   opts.AccessToken,
	}
}

type variantPriceUpdate struct {
	Variant struct {
		ID    int64  `json:"id"`
		Price string `json:"price"`
	} `json:"variant"`
}

// UpdateVariantPrice 把价格格式化为两位小数后 PUT 到 /variants/{id}.json
func (a *ShopifyCatalogAdapter) UpdateVariantPrice(ctx context.Context, variantID string, price float64) error {
	id, err := numericVariantID(variantID)
	if err != nil {
		return err
	}
	var body variantPriceUpdate
	body.Variant.ID = id
	body.Variant.Price = decimal.NewFromFloat(price).StringFixed(2)

	url := fmt.Sprintf("%s/admin/api/%s/variants/%d.json", a.baseURL, a.version, id)
	headers := http.Header{}
	headers.Set("X-Shopify-Access-Token", a.token)

	err = a.client.DoJSON(ctx, http.MethodPut, url, headers, body, nil)
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return toShopifyError(statusErr)
	}
	return err
}

// numericVariantID 同时接受纯数字和 gid://shopify/ProductVariant/123 两种形式
func numericVariantID(variantID string) (int64, error) {
	raw := variantID
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid shopify variant id %q", variantID)
	}
	return id, nil
}

func toShopifyError(e *httpclient.StatusError) *ShopifyAPIError {
	out := &ShopifyAPIError{StatusCode: e.StatusCode, Message: http.StatusText(e.StatusCode)}
	var payload struct {
		Errors json.RawMessage `json:"errors"`
	}
	if json.Unmarshal([]byte(e.Body), &payload) == nil && len(payload.Errors) > 0 {
		out.Errors = payload.Errors
	}
	return out
}
