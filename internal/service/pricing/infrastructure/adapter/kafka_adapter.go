// internal/service/pricing/infrastructure/adapter/kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"pricewise/internal/pkg/mq"
	"pricewise/internal/service/pricing/application"
	"pricewise/internal/service/pricing/domain"
)

// RecommendationKafkaAdapter 把新推荐发布到 Kafka，key 为商品 ID，保证同一商品有序
type RecommendationKafkaAdapter struct {
	writer *kafka.Writer
}

func NewRecommendationKafkaAdapter(writer *kafka.Writer) *RecommendationKafkaAdapter {
	return &RecommendationKafkaAdapter{writer: writer}
}

func (a *RecommendationKafkaAdapter) Publish(ctx context.Context, rec *domain.PricingRecommendation) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode recommendation")
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(rec.ProductID), value)
}

func (a *RecommendationKafkaAdapter) Close() error {
	return a.writer.Close()
}

// BulkAdjustKafkaAdapter 实现 application.BulkAdjustQueue
type BulkAdjustKafkaAdapter struct {
	writer *kafka.Writer
}

func NewBulkAdjustKafkaAdapter(writer *kafka.Writer) *BulkAdjustKafkaAdapter {
	return &BulkAdjustKafkaAdapter{writer: writer}
}

func (a *BulkAdjustKafkaAdapter) Enqueue(ctx context.Context, event *application.BulkAdjustRequested) error {
	value, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode bulk adjust event")
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.EventID), value)
}

func (a *BulkAdjustKafkaAdapter) Close() error {
	return a.writer.Close()
}
