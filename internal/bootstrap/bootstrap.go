// Package bootstrap turns configuration into the clients both services share.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/blob"
	"github.com/cuongbtq/media-transcoder/internal/config"
	"github.com/cuongbtq/media-transcoder/internal/progress"
	"github.com/cuongbtq/media-transcoder/internal/storage"
	"github.com/cuongbtq/media-transcoder/shared/database"
	"github.com/cuongbtq/media-transcoder/shared/logger"
	"github.com/cuongbtq/media-transcoder/shared/rabbitmq"
)

// Logger initializes and configures the application logger
func Logger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// Database opens the Job Store and applies its schema
func Database(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, *storage.Storage, error) {
	client, err := database.NewClient(&database.Config{
		Driver:          cfg.Driver,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStorage(client)
	if err := store.Migrate(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}

	return client, store, nil
}

// RabbitMQ initializes the RabbitMQ client
func RabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		DeadLetterExchange: cfg.DeadLetter.Exchange,
		DeadLetterQueue:    cfg.DeadLetter.Queue,
	}, logger)
}

// BlobStore builds the configured Blob Store, creating buckets when needed
func BlobStore(ctx context.Context, cfg *config.BlobConfig, logger *slog.Logger) (blob.Store, error) {
	switch cfg.Backend {
	case config.BlobBackendLocal:
		logger.Info("Using local blob store", slog.String("root", cfg.LocalRoot))
		return blob.LocalFS{Root: cfg.LocalRoot}, nil
	case config.BlobBackendMinio:
		store, err := blob.NewMinioStore(blob.MinioConfig{
			Endpoint:     cfg.Minio.Endpoint,
			AccessKey:    cfg.Minio.AccessKey,
			SecretKey:    cfg.Minio.SecretKey,
			UseSSL:       cfg.Minio.UseSSL,
			Region:       cfg.Minio.Region,
			BucketPrefix: cfg.Minio.BucketPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBuckets(ctx); err != nil {
			return nil, err
		}
		logger.Info("Using MinIO blob store", slog.String("endpoint", cfg.Minio.Endpoint))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported blob backend: %q", cfg.Backend)
	}
}

// ProgressCache connects the Redis Progress Cache, or returns a no-op cache
// when no address is configured. The returned close func is never nil.
func ProgressCache(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (progress.Cache, func() error, error) {
	if cfg.Addr == "" {
		logger.Warn("Progress cache disabled, progress reads go to the job store")
		return progress.NopCache{}, func() error { return nil }, nil
	}

	client, err := progress.Connect(ctx, progress.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Progress cache connected", slog.String("addr", cfg.Addr))
	return progress.NewRedisCache(client, cfg.TTL, logger), client.Close, nil
}
