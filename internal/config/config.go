package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageFilesystem = "filesystem"
	StorageHTTP       = "http"
	StorageContent    = "content"
	StorageS3         = "s3"
)

// Metadata backends
const (
	MetadataSQLite   = "sqlite"
	MetadataPostgres = "postgres"
	MetadataDynamoDB = "dynamodb"
)

// Notifiers
const (
	NotifierLog  = "log"
	NotifierSNS  = "sns"
	NotifierDBOS = "dbos"
)

// Config holds the pipeline service configuration
type Config struct {
	HTTPAddr       string
	Workers        int
	MaxUploadBytes int64

	LogLevel  string
	LogFormat string

	StorageBackend string
	StorageDir     string
	StorageBaseURL string
	ContentAPIURL  string

	MetadataBackend     string
	MetadataDatabaseURL string

	Notifier string

	AWSRegion     string
	S3Bucket      string
	DynamoDBTable string
	SNSTopicARN   string

	DBOSDatabaseURL        string
	DBOSQueueName          string
	DBOSApplicationVersion string

	ThumbnailWidth  int
	ThumbnailHeight int
}

// Load reads configuration from the environment, after loading envFile if it exists.
// An empty envFile loads ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{
		HTTPAddr:               os.Getenv("PIPELINE_HTTP_ADDR"),
		LogLevel:               os.Getenv("LOG_LEVEL"),
		LogFormat:              os.Getenv("LOG_FORMAT"),
		StorageBackend:         strings.ToLower(os.Getenv("STORAGE_BACKEND")),
		StorageDir:             os.Getenv("STORAGE_DIR"),
		StorageBaseURL:         os.Getenv("STORAGE_BASE_URL"),
		ContentAPIURL:          os.Getenv("CONTENT_API_URL"),
		MetadataBackend:        strings.ToLower(os.Getenv("METADATA_BACKEND")),
		MetadataDatabaseURL:    os.Getenv("METADATA_DATABASE_URL"),
		Notifier:               strings.ToLower(os.Getenv("NOTIFIER")),
		AWSRegion:              os.Getenv("AWS_REGION"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		DynamoDBTable:          os.Getenv("DYNAMODB_TABLE"),
		SNSTopicARN:            os.Getenv("SNS_TOPIC_ARN"),
		DBOSDatabaseURL:        os.Getenv("DBOS_SYSTEM_DATABASE_URL"),
		DBOSQueueName:          os.Getenv("DBOS_QUEUE_NAME"),
		DBOSApplicationVersion: os.Getenv("DBOS_APPLICATION_VERSION"),
	}

	var err error
	if cfg.Workers, err = intEnv("PIPELINE_WORKERS"); err != nil {
		return nil, err
	}
	if cfg.ThumbnailWidth, err = intEnv("THUMBNAIL_WIDTH"); err != nil {
		return nil, err
	}
	if cfg.ThumbnailHeight, err = intEnv("THUMBNAIL_HEIGHT"); err != nil {
		return nil, err
	}
	maxUpload, err := intEnv("MAX_UPLOAD_BYTES")
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithDefaults fills unset fields
func (c *Config) WithDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.StorageBackend == "" {
		c.StorageBackend = StorageFilesystem
	}
	if c.StorageDir == "" {
		c.StorageDir = "./dev-data"
	}
	if c.MetadataBackend == "" {
		c.MetadataBackend = MetadataSQLite
	}
	if c.MetadataDatabaseURL == "" && c.MetadataBackend == MetadataSQLite {
		c.MetadataDatabaseURL = "./dev-data/metadata.db"
	}
	if c.Notifier == "" {
		c.Notifier = NotifierLog
	}
	if c.AWSRegion == "" {
		c.AWSRegion = "us-east-1"
	}
	if c.DBOSQueueName == "" {
		c.DBOSQueueName = "default"
	}
	if c.ThumbnailWidth <= 0 {
		c.ThumbnailWidth = 150
	}
	if c.ThumbnailHeight <= 0 {
		c.ThumbnailHeight = 150
	}
}

// Validate checks that each selected backend has what it needs
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFilesystem, StorageContent:
	case StorageHTTP:
		if c.ContentAPIURL == "" {
			return fmt.Errorf("CONTENT_API_URL is required for storage backend %q", c.StorageBackend)
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for storage backend %q", c.StorageBackend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	switch c.MetadataBackend {
	case MetadataSQLite, MetadataPostgres:
		if c.MetadataDatabaseURL == "" {
			return fmt.Errorf("METADATA_DATABASE_URL is required for metadata backend %q", c.MetadataBackend)
		}
	case MetadataDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for metadata backend %q", c.MetadataBackend)
		}
	default:
		return fmt.Errorf("unknown metadata backend %q", c.MetadataBackend)
	}

	switch c.Notifier {
	case NotifierLog:
	case NotifierSNS:
		if c.SNSTopicARN == "" {
			return fmt.Errorf("SNS_TOPIC_ARN is required for notifier %q", c.Notifier)
		}
	case NotifierDBOS:
		if c.DBOSDatabaseURL == "" {
			return fmt.Errorf("DBOS_SYSTEM_DATABASE_URL is required for notifier %q", c.Notifier)
		}
	default:
		return fmt.Errorf("unknown notifier %q", c.Notifier)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NeedsAWS reports whether any selected backend talks to AWS
func (c *Config) NeedsAWS() bool {
	return c.StorageBackend == StorageS3 || c.MetadataBackend == MetadataDynamoDB || c.Notifier == NotifierSNS
}

func intEnv(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
