package app

import (
	"context"
	"errors"
	"fmt"

	"gnest/internal/config"
	"gnest/internal/infra/es"
	mq "gnest/internal/infra/kafka"
	"gnest/internal/infra/minio"
	"gnest/internal/infra/pgsql"
	"gnest/internal/infra/redis"

	"go.uber.org/zap"
)

// Infra 外部依赖，未启用的字段为 nil
type Infra struct {
	PgSQL    *pgsql.PGSQL
	Redis    *redis.Client
	Minio    *minio.Client
	Elastic  *es.Client
	Producer *mq.Producer
	Consumer *mq.Consumer
}

func loadPgsqlConfig(cfg *config.Config) pgsql.Config {
	return pgsql.Config{
		Host:     cfg.PgSQL.Host,
		Port:     cfg.PgSQL.Port,
		User:     cfg.PgSQL.User,
		Password: cfg.PgSQL.Password,
		DBName:   cfg.PgSQL.DBName,
		SSLMode:  cfg.PgSQL.SSLMode,
		MaxIdle:  cfg.PgSQL.MaxIdle,
		MaxOpen:  cfg.PgSQL.MaxOpen,
		LogLevel: cfg.PgSQL.LogLevel,
	}
}

// OpenInfra 按配置连接外部依赖，任何一步失败都会关闭已打开的连接
func OpenInfra(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Infra, error) {
	in := &Infra{}
	if err := in.open(ctx, cfg, log); err != nil {
		if cErr := in.Close(); cErr != nil {
			log.Warn("close partially opened infra", zap.Error(cErr))
		}
		return nil, err
	}
	return in, nil
}

func (in *Infra) open(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var err error
	if cfg.PgSQL.Enabled {
		if in.PgSQL, err = pgsql.NewPGSQL(loadPgsqlConfig(cfg)); err != nil {
			return fmt.Errorf("pgsql: %w", err)
		}
		log.Info("pgsql connected", zap.String("host", cfg.PgSQL.Host), zap.String("db", cfg.PgSQL.DBName))
	}
	if cfg.Redis.Enabled {
		in.Redis = redis.NewClient(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err = in.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}
	if cfg.Minio.Enabled {
		in.Minio, err = minio.NewClient(ctx, minio.Config{
			Endpoint:        cfg.Minio.Endpoint,
			AccessKeyID:     cfg.Minio.AccessKeyID,
			SecretAccessKey: cfg.Minio.SecretAccessKey,
			UseSSL:          cfg.Minio.UseSSL,
			Bucket:          cfg.Minio.Bucket,
		})
		if err != nil {
			return fmt.Errorf("minio: %w", err)
		}
		log.Info("minio connected", zap.String("endpoint", cfg.Minio.Endpoint), zap.String("bucket", cfg.Minio.Bucket))
	}
	if cfg.Elastic.Enabled {
		in.Elastic, err = es.New(es.Config{
			Addresses: cfg.Elastic.Addresses,
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			return fmt.Errorf("elasticsearch: %w", err)
		}
		log.Info("elasticsearch configured", zap.Strings("addresses", cfg.Elastic.Addresses))
	}
	if cfg.Kafka.Enabled {
		if in.Producer, err = mq.NewProducer(cfg.Kafka.Brokers, log.Named("kafka")); err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		if in.Consumer, err = mq.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group, log.Named("kafka")); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		log.Info("kafka connected", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("group", cfg.Kafka.Group))
	}
	return nil
}

// Close 先停消费者再关生产者，最后关存储；已关闭的连接会被置空，可重复调用
func (in *Infra) Close() error {
	var errs []error
	if in.Consumer != nil {
		errs = append(errs, in.Consumer.Close())
		in.Consumer = nil
	}
	if in.Producer != nil {
		errs = append(errs, in.Producer.Close())
		in.Producer = nil
	}
	if in.Redis != nil {
		errs = append(errs, in.Redis.Close())
		in.Redis = nil
	}
	if in.PgSQL != nil {
		errs = append(errs, in.PgSQL.Close())
		in.PgSQL = nil
	}
	return errors.Join(errs...)
}
