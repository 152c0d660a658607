// internal/service/pricing/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"pricewise/internal/pkg/logger"
	"pricewise/internal/pkg/mq"
	"pricewise/internal/service/pricing/application"
)

// MessageReader 是消费者依赖的 kafka.Reader 能力子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BulkAdjustHandler 由应用服务实现
type BulkAdjustHandler interface {
	HandleBulkAdjustEvent(ctx context.Context, event *application.BulkAdjustRequested) error
}

// BulkAdjustConsumer 是一个驱动适配器，监听批量调价命令并驱动应用服务。
type BulkAdjustConsumer struct {
	reader  MessageReader
	topic   string
	handler BulkAdjustHandler
	backoff time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBulkAdjustConsumer(reader MessageReader, topic string, handler BulkAdjustHandler) *BulkAdjustConsumer {
	return &BulkAdjustConsumer{reader: reader, topic: topic, handler: handler, backoff: time.Second}
}

// Start 在后台 goroutine 中开始消费，Stop 或 ctx 取消时退出
func (c *BulkAdjustConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		zlog.Info().Str("topic", c.topic).Msg("✅ Bulk adjust consumer started")
		for {
			// FetchMessage 而不是 ReadMessage，处理完成后再手动提交
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					zlog.Info().Str("topic", c.topic).Msg("🛑 Bulk adjust consumer shutting down")
					return
				}
				zlog.Error().Err(err).Str("topic", c.topic).Msg("Could not read message, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.backoff):
				}
				continue
			}

			c.processMessage(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				zlog.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit message")
			}
		}
	}()
}

// Stop 优雅地停止消费者
func (c *BulkAdjustConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	zlog.Info().Str("topic", c.topic).Msg("✅ Bulk adjust consumer stopped")
	return err
}

// processMessage 反序列化消息、恢复 trace 上下文并调用应用服务。
// 失败的消息只记录日志，仍然提交 offset。
func (c *BulkAdjustConsumer) processMessage(parent context.Context, msg kafka.Message) {
	ctx := logger.WithTraceID(mq.ExtractTraceContext(parent, msg.Headers))
	log := logger.Ctx(ctx)

	var event application.BulkAdjustRequested
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to unmarshal bulk adjust event, skipping")
		return
	}
	if err := c.handler.HandleBulkAdjustEvent(ctx, &event); err != nil {
		log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to handle bulk adjust event")
	}
}
