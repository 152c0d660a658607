package port

import (
	"context"
	"pricewise/internal/service/pricing/domain"
)

// RecommendationPublisher 把新生成的推荐广播出去（Kafka、WebSocket 等）。
type RecommendationPublisher interface {
	Publish(ctx context.Context, rec *domain.PricingRecommendation) error
}
