package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

const (
	BlobBackendLocal = "local"
	BlobBackendMinio = "minio"
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Blob      BlobConfig      `yaml:"blob"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name" envconfig:"APP_NAME"`
	Version     string `yaml:"version" envconfig:"APP_VERSION"`
	Environment string `yaml:"environment" envconfig:"APP_ENV"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SERVER_SHUTDOWN_TIMEOUT"`
	DownloadURLTTL  time.Duration `yaml:"download_url_ttl" envconfig:"DOWNLOAD_URL_TTL"`
}

// DatabaseConfig holds Job Store connection configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DATABASE_DRIVER"`
	Path            string        `yaml:"path" envconfig:"DATABASE_PATH"`
	Host            string        `yaml:"host" envconfig:"DATABASE_HOST"`
	Port            int           `yaml:"port" envconfig:"DATABASE_PORT"`
	User            string        `yaml:"user" envconfig:"DATABASE_USER"`
	Password        string        `yaml:"password" envconfig:"DATABASE_PASSWORD"`
	Database        string        `yaml:"database" envconfig:"DATABASE_NAME"`
	SSLMode         string        `yaml:"sslmode" envconfig:"DATABASE_SSLMODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DATABASE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" envconfig:"DATABASE_CONN_MAX_IDLE_TIME"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host" envconfig:"RABBITMQ_HOST"`
	Port       int              `yaml:"port" envconfig:"RABBITMQ_PORT"`
	User       string           `yaml:"user" envconfig:"RABBITMQ_USER"`
	Password   string           `yaml:"password" envconfig:"RABBITMQ_PASSWORD"`
	VHost      string           `yaml:"vhost" envconfig:"RABBITMQ_VHOST"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	RoutingKey string           `yaml:"routing_key" envconfig:"RABBITMQ_ROUTING_KEY"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name" envconfig:"RABBITMQ_EXCHANGE"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name" envconfig:"RABBITMQ_QUEUE"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// DeadLetterConfig names where rejected job messages end up; an empty exchange disables it
type DeadLetterConfig struct {
	Exchange string `yaml:"exchange" envconfig:"RABBITMQ_DEAD_LETTER_EXCHANGE"`
	Queue    string `yaml:"queue" envconfig:"RABBITMQ_DEAD_LETTER_QUEUE"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count" envconfig:"RABBITMQ_PREFETCH_COUNT"`
}

// RedisConfig holds Progress Cache settings; an empty address disables the cache
type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" envconfig:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" envconfig:"REDIS_TTL"`
}

// BlobConfig selects and configures the Blob Store
type BlobConfig struct {
	Backend   string      `yaml:"backend" envconfig:"BLOB_BACKEND"`
	LocalRoot string      `yaml:"local_root" envconfig:"BLOB_LOCAL_ROOT"`
	Minio     MinioConfig `yaml:"minio"`
}

// MinioConfig holds S3-compatible object storage settings
type MinioConfig struct {
	Endpoint     string `yaml:"endpoint" envconfig:"MINIO_ENDPOINT"`
	AccessKey    string `yaml:"access_key" envconfig:"MINIO_ACCESS_KEY"`
	SecretKey    string `yaml:"secret_key" envconfig:"MINIO_SECRET_KEY"`
	UseSSL       bool   `yaml:"use_ssl" envconfig:"MINIO_USE_SSL"`
	Region       string `yaml:"region" envconfig:"MINIO_REGION"`
	BucketPrefix string `yaml:"bucket_prefix" envconfig:"MINIO_BUCKET_PREFIX"`
}

// TranscodeConfig holds encoding engine settings
type TranscodeConfig struct {
	FFmpegPath   string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	FFprobePath  string `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH"`
	WorkDir      string `yaml:"work_dir" envconfig:"TRANSCODE_WORK_DIR"`
	MaxInputSize int64  `yaml:"max_input_size" envconfig:"MAX_INPUT_SIZE"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID                    string        `yaml:"id" envconfig:"WORKER_ID"`
	PollWait              time.Duration `yaml:"poll_wait" envconfig:"WORKER_POLL_WAIT"`
	IdleInterval          time.Duration `yaml:"idle_interval" envconfig:"WORKER_IDLE_INTERVAL"`
	ErrorBackoff          time.Duration `yaml:"error_backoff" envconfig:"WORKER_ERROR_BACKOFF"`
	ProgressFlushInterval time.Duration `yaml:"progress_flush_interval" envconfig:"WORKER_PROGRESS_FLUSH_INTERVAL"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout" envconfig:"WORKER_SHUTDOWN_TIMEOUT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format       string `yaml:"format" envconfig:"LOG_FORMAT"`
	Output       string `yaml:"output" envconfig:"LOG_OUTPUT"`
	EnableCaller bool   `yaml:"enable_caller" envconfig:"LOG_ENABLE_CALLER"`
}

// Default returns the configuration used before the file and environment are applied
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "media-transcoder",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			DownloadURLTTL:  time.Hour,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Path:            "data/jobs.db",
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Port:       5672,
			VHost:      "/",
			Exchange:   ExchangeConfig{Name: "transcode_exchange", Type: "direct", Durable: true},
			Queue:      QueueConfig{Name: "transcode_jobs", Durable: true},
			DeadLetter: DeadLetterConfig{Exchange: "transcode_dlx"},
			RoutingKey: "transcode.job",
			Connection: ConnectionConfig{
				RetryAttempts:     5,
				RetryInterval:     5 * time.Second,
				Heartbeat:         10 * time.Second,
				ConnectionTimeout: 30 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     time.Second,
				BackoffMultiplier: 2,
			},
			Consumer: ConsumerConfig{PrefetchCount: 1},
		},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
		Blob: BlobConfig{
			Backend:   BlobBackendLocal,
			LocalRoot: "data/blobs",
			Minio:     MinioConfig{BucketPrefix: "transcoder-"},
		},
		Transcode: TranscodeConfig{
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			WorkDir:      os.TempDir(),
			MaxInputSize: 5 << 30,
		},
		Worker: WorkerConfig{
			PollWait:              20 * time.Second,
			IdleInterval:          time.Second,
			ErrorBackoff:          5 * time.Second,
			ProgressFlushInterval: 2 * time.Second,
			ShutdownTimeout:       30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load applies the configuration file at configPath over the defaults, then
// environment overrides. An empty path skips the file.
func Load(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	return config, nil
}

// ValidateAPIConfig checks the settings the API service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Server.DownloadURLTTL <= 0 {
		return errors.New("server download_url_ttl must be greater than 0")
	}

	return errors.Join(
		c.validateDatabase(),
		c.validateRabbitMQ(),
		c.validateBlob(),
		c.validateMaxInputSize(),
	)
}

// ValidateWorkerConfig checks the settings the worker service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := errors.Join(
		c.validateDatabase(),
		c.validateRabbitMQ(),
		c.validateBlob(),
		c.validateMaxInputSize(),
	); err != nil {
		return err
	}

	if c.Transcode.FFmpegPath == "" {
		return errors.New("transcode ffmpeg_path is required")
	}

	if c.Transcode.WorkDir == "" {
		return errors.New("transcode work_dir is required")
	}

	if c.Worker.PollWait <= 0 {
		return errors.New("worker poll_wait must be greater than 0")
	}

	if c.Worker.IdleInterval <= 0 {
		return errors.New("worker idle_interval must be greater than 0")
	}

	if c.Worker.ErrorBackoff <= 0 {
		return errors.New("worker error_backoff must be greater than 0")
	}

	if c.Worker.ProgressFlushInterval <= 0 {
		return errors.New("worker progress_flush_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return errors.New("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
		return nil
	case "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Database.Host == "" {
		return errors.New("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return errors.New("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return errors.New("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return errors.New("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return errors.New("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateBlob() error {
	switch c.Blob.Backend {
	case BlobBackendLocal:
		if c.Blob.LocalRoot == "" {
			return errors.New("blob local_root is required for the local backend")
		}
	case BlobBackendMinio:
		if c.Blob.Minio.Endpoint == "" {
			return errors.New("minio endpoint is required")
		}
		if c.Blob.Minio.AccessKey == "" || c.Blob.Minio.SecretKey == "" {
			return errors.New("minio access_key and secret_key are required")
		}
	default:
		return fmt.Errorf("unsupported blob backend: %q", c.Blob.Backend)
	}
	return nil
}

func (c *Config) validateMaxInputSize() error {
	if c.Transcode.MaxInputSize <= 0 {
		return errors.New("transcode max_input_size must be greater than 0")
	}
	return nil
}
