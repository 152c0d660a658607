// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 包装 go-redis 的 UniversalClient，单节点和集群地址使用同一套配置。
type Client struct {
	goredis.UniversalClient
}

// NewClient 根据逗号分隔的地址创建客户端并检查连通性。
func NewClient(addrs, password string, db int) (*Client, error) {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        splitAddrs(addrs),
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addrs)
	}
	return &Client{UniversalClient: rdb}, nil
}

// IsNil 判断错误是否表示 key 不存在。
func IsNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

func splitAddrs(addrs string) []string {
	var out []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
