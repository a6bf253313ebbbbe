package service

import (
	"context"
	"time"

	"github.com/TIANLI0/CutoutKit/config"
	"github.com/redis/go-redis/v9"
)

// RedisService 结果缓存：规范化PNG的MD5 -> 去背景后的PNG字节
// 连接不可用时缓存读写只降级，不影响请求
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetCutout 从缓存获取去背景结果
func (s *RedisService) GetCutout(ctx context.Context, md5 string) ([]byte, error) {
	data, err := s.client.Get(ctx, "cutout:"+md5).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}
	return data, nil
}

// SetCutout 写入去背景结果到缓存
func (s *RedisService) SetCutout(ctx context.Context, md5 string, data []byte) error {
	return s.client.Set(ctx, "cutout:"+md5, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
