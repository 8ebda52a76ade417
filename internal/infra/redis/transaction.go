package redis

import (
	"context"
	"time"

	re "github.com/redis/go-redis/v9"
)

// Tx 批量执行操作
func (r *Client) Tx(ctx context.Context, fn func(pipe re.Pipeliner) error) error {
	_, err := r.client.TxPipelined(ctx, fn)
	return err
}

// IncrWindow 固定窗口计数：INCR 后若键尚无过期时间则设置为 window
func (r *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *re.IntCmd
	var ttl *re.DurationCmd
	err := r.Tx(ctx, func(pipe re.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if ttl.Val() < 0 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return incr.Val(), nil
}
