package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"pricewise/internal/service/pricing/application"
)

type chanReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *chanReader) Close() error {
	r.closed = true
	return nil
}

func (r *chanReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) HandleBulkAdjustEvent(_ context.Context, e *application.BulkAdjustRequested) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e.EventID)
	if e.EventID == "fail" {
		return errors.New("boom")
	}
	return nil
}

func TestBulkAdjustConsumerCommitsEveryMessage(t *testing.T) {
	reader := &chanReader{msgs: make(chan kafka.Message, 3)}
	handler := &recordingHandler{}
	good, _ := json.Marshal(application.BulkAdjustRequested{EventID: "evt-1"})
	failing, _ := json.Marshal(application.BulkAdjustRequested{EventID: "fail"})
	reader.msgs <- kafka.Message{Offset: 1, Value: good}
	reader.msgs <- kafka.Message{Offset: 2, Value: []byte("not json")}
	reader.msgs <- kafka.Message{Offset: 3, Value: failing}

	c := NewBulkAdjustConsumer(reader, "price-bulk-adjust", handler)
	c.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(reader.commits()) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if got := reader.commits(); len(got) != 3 {
		t.Fatalf("expected 3 commits, got %v", got)
	}
	if len(handler.events) != 2 || handler.events[0] != "evt-1" || handler.events[1] != "fail" {
		t.Fatalf("unexpected handled events: %v", handler.events)
	}
	if !reader.closed {
		t.Fatal("reader should be closed on stop")
	}
}
