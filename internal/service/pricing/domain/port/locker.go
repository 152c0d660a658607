package port

import "context"

// ProductLocker 为同一商品的价格写入提供互斥，防止并发同步互相覆盖。
type ProductLocker interface {
	// Lock 阻塞直到拿到锁，返回的 unlock 必须被调用。
	Lock(ctx context.Context, productID string) (unlock func() error, err error)
}
