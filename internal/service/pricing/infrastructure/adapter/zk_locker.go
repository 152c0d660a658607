package adapter

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"pricewise/internal/zookeeper"
)

// ZKProductLocker 实现 port.ProductLocker，每个商品一把 ZooKeeper 公平锁
type ZKProductLocker struct {
	conn    zookeeper.Conn
	timeout time.Duration
}

// NewZKProductLocker timeout 为等待锁的上限，0 表示只受调用方 ctx 控制
func NewZKProductLocker(conn zookeeper.Conn, timeout time.Duration) *ZKProductLocker {
	return &ZKProductLocker{conn: conn, timeout: timeout}
}

func (l *ZKProductLocker) Lock(ctx context.Context, productID string) (func() error, error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, "product-"+productID)
	if err != nil {
		return nil, err
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, errors.Wrapf(err, "lock product %s", productID)
	}
	return lock.Unlock, nil
}
