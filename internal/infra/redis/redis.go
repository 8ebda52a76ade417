package redis

import (
	"context"
	"errors"

	re "github.com/redis/go-redis/v9"
)

// ErrNil 键不存在
var ErrNil = re.Nil

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Client struct {
	client *re.Client
}

// 初始化客户端
func NewClient(cfg Config) *Client {
	rdb := re.NewClient(&re.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{client: rdb}
}

// Wrap 包装已有的 go-redis 客户端
func Wrap(rdb *re.Client) *Client {
	return &Client{client: rdb}
}

// Raw 返回底层客户端
func (r *Client) Raw() *re.Client {
	return r.client
}

// Ping 测试连接
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 关闭连接
func (r *Client) Close() error {
	return r.client.Close()
}

// IsNil 判断是否为键不存在错误
func IsNil(err error) bool {
	return errors.Is(err, re.Nil)
}
