package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/sciencelab-batchserver/internal/data/db"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
	"github.com/yungbote/sciencelab-batchserver/internal/utils"
)

const configFileEnv = "BATCHSERVER_CONFIG_FILE"

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	SQLitePath   string `yaml:"sqlite_path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type BatchConfig struct {
	MaxBatchSize       int           `yaml:"max_size"`
	MaxInputsPerClient int           `yaml:"max_inputs_per_client"`
	MinClientVersion   string        `yaml:"min_client_version"`
	MinInputID         int64         `yaml:"min_input_id"`
	DeploymentID       string        `yaml:"deployment_id"`
	UploadURITTL       time.Duration `yaml:"upload_uri_ttl"`
	ArchiveOutputs     bool          `yaml:"output_archive"`
	MaxOutputBytes     int64         `yaml:"max_output_bytes"`
	TempDir            string        `yaml:"temp_dir"`
}

type StorageConfig struct {
	Mode            string `yaml:"mode"`
	EmulatorHost    string `yaml:"emulator_host"`
	PublicBaseURL   string `yaml:"public_base_url"`
	InputsBucket    string `yaml:"inputs_bucket"`
	OutputsBucket   string `yaml:"outputs_bucket"`
	ExternalBaseURL string `yaml:"external_base_url"`

	S3Region          string `yaml:"s3_region"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
	S3PathStyle       bool   `yaml:"s3_path_style"`
}

type NotificationsConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Stream        string        `yaml:"stream"`
	StreamMaxLen  int64         `yaml:"stream_maxlen"`
	Timeout       time.Duration `yaml:"timeout"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	Version     string  `yaml:"version"`
	Endpoint    string  `yaml:"endpoint"`
	Headers     string  `yaml:"headers"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Config is loaded once at startup and passed by value afterwards.
type Config struct {
	Port               string        `yaml:"port"`
	CORSOrigins        []string      `yaml:"cors_origins"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace"`
	PoolSampleInterval time.Duration `yaml:"pool_sample_interval"`

	Database      DatabaseConfig      `yaml:"database"`
	Batch         BatchConfig         `yaml:"batch"`
	Storage       StorageConfig       `yaml:"storage"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Tracing       TracingConfig       `yaml:"tracing"`
}

func defaultConfig() Config {
	return Config{
		Port:               "8080",
		ShutdownGrace:      15 * time.Second,
		PoolSampleInterval: 30 * time.Second,
		Database: DatabaseConfig{
			Driver:     db.DriverPostgres,
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Name:       "batchserver",
			SSLMode:    "disable",
			SQLitePath: "batchserver.db",
		},
		Batch: BatchConfig{
			MaxBatchSize:   100,
			UploadURITTL:   24 * time.Hour,
			ArchiveOutputs: true,
			MaxOutputBytes: 1 << 20,
		},
		Storage: StorageConfig{
			InputsBucket:  "inputs",
			OutputsBucket: "outputs",
			S3Region:      "us-east-1",
		},
		Notifications: NotificationsConfig{
			Stream:  "batch-results",
			Timeout: 5 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "batchserver",
			SampleRatio: 1,
		},
	}
}

// LoadConfig layers BATCHSERVER_CONFIG_FILE (YAML) over the defaults and the
// environment over both.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
		log.Info("Loaded config file", "path", path)
	}
	applyEnv(log, &cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(log *logger.Logger, cfg *Config) {
	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	cfg.CORSOrigins = splitList(utils.GetEnv("CORS_ALLOW_ORIGINS", strings.Join(cfg.CORSOrigins, ","), log))
	cfg.ShutdownGrace = utils.GetEnvAsDuration("SHUTDOWN_GRACE", cfg.ShutdownGrace, log)
	cfg.PoolSampleInterval = utils.GetEnvAsDuration("METRICS_POOL_SAMPLE_INTERVAL", cfg.PoolSampleInterval, log)

	d := &cfg.Database
	d.Driver = strings.ToLower(utils.GetEnv("DB_DRIVER", d.Driver, log))
	d.Host = utils.GetEnv("POSTGRES_HOST", d.Host, log)
	d.Port = utils.GetEnv("POSTGRES_PORT", d.Port, log)
	d.User = utils.GetEnv("POSTGRES_USER", d.User, log)
	d.Password = utils.GetEnv("POSTGRES_PASSWORD", d.Password, log)
	d.Name = utils.GetEnv("POSTGRES_NAME", d.Name, log)
	d.SSLMode = utils.GetEnv("POSTGRES_SSLMODE", d.SSLMode, log)
	d.SQLitePath = utils.GetEnv("SQLITE_PATH", d.SQLitePath, log)
	d.MaxOpenConns = utils.GetEnvAsInt("DB_MAX_OPEN_CONNS", d.MaxOpenConns, log)
	d.MaxIdleConns = utils.GetEnvAsInt("DB_MAX_IDLE_CONNS", d.MaxIdleConns, log)

	b := &cfg.Batch
	b.MaxBatchSize = utils.GetEnvAsInt("BATCH_MAX_SIZE", b.MaxBatchSize, log)
	b.MaxInputsPerClient = utils.GetEnvAsInt("BATCH_MAX_INPUTS_PER_CLIENT", b.MaxInputsPerClient, log)
	b.MinClientVersion = utils.GetEnv("BATCH_MIN_CLIENT_VERSION", b.MinClientVersion, log)
	b.MinInputID = getEnvAsInt64("BATCH_MIN_INPUT_ID", b.MinInputID, log)
	b.DeploymentID = utils.GetEnv("BATCH_DEPLOYMENT_ID", b.DeploymentID, log)
	b.UploadURITTL = utils.GetEnvAsDuration("BATCH_UPLOAD_URI_TTL", b.UploadURITTL, log)
	b.ArchiveOutputs = utils.GetEnvAsBool("BATCH_OUTPUT_ARCHIVE", b.ArchiveOutputs, log)
	b.MaxOutputBytes = getEnvAsInt64("BATCH_MAX_OUTPUT_BYTES", b.MaxOutputBytes, log)
	b.TempDir = utils.GetEnv("BATCH_TEMP_DIR", b.TempDir, log)

	s := &cfg.Storage
	s.Mode = utils.GetEnv("OBJECT_STORAGE_MODE", s.Mode, log)
	s.EmulatorHost = utils.GetEnv("STORAGE_EMULATOR_HOST", s.EmulatorHost, log)
	s.PublicBaseURL = utils.GetEnv("STORAGE_PUBLIC_BASE_URL", s.PublicBaseURL, log)
	s.InputsBucket = utils.GetEnv("INPUTS_BUCKET_NAME", s.InputsBucket, log)
	s.OutputsBucket = utils.GetEnv("OUTPUTS_BUCKET_NAME", s.OutputsBucket, log)
	s.ExternalBaseURL = utils.GetEnv("EXTERNAL_STORAGE_BASE_URL", s.ExternalBaseURL, log)
	s.S3Region = utils.GetEnv("S3_REGION", s.S3Region, log)
	s.S3Endpoint = utils.GetEnv("S3_ENDPOINT", s.S3Endpoint, log)
	s.S3AccessKeyID = utils.GetEnv("S3_ACCESS_KEY_ID", s.S3AccessKeyID, log)
	s.S3SecretAccessKey = utils.GetEnv("S3_SECRET_ACCESS_KEY", s.S3SecretAccessKey, log)
	s.S3PathStyle = utils.GetEnvAsBool("S3_PATH_STYLE", s.S3PathStyle, log)

	n := &cfg.Notifications
	n.RedisAddr = utils.GetEnv("REDIS_ADDR", n.RedisAddr, log)
	n.RedisPassword = utils.GetEnv("REDIS_PASSWORD", n.RedisPassword, log)
	n.RedisDB = utils.GetEnvAsInt("REDIS_DB", n.RedisDB, log)
	n.Stream = utils.GetEnv("NOTIFY_STREAM", n.Stream, log)
	n.StreamMaxLen = getEnvAsInt64("NOTIFY_STREAM_MAXLEN", n.StreamMaxLen, log)
	n.Timeout = utils.GetEnvAsDuration("NOTIFY_TIMEOUT", n.Timeout, log)

	t := &cfg.Tracing
	t.Enabled = utils.GetEnvAsBool("OTEL_ENABLED", t.Enabled, log)
	t.ServiceName = utils.GetEnv("OTEL_SERVICE_NAME", t.ServiceName, log)
	t.Environment = utils.GetEnv("DEPLOY_ENV", t.Environment, log)
	t.Version = utils.GetEnv("SERVICE_VERSION", t.Version, log)
	t.Endpoint = utils.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", t.Endpoint, log)
	t.Headers = utils.GetEnv("OTEL_EXPORTER_OTLP_HEADERS", t.Headers, log)
	t.Insecure = utils.GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", t.Insecure, log)
	t.SampleRatio = getEnvAsFloat("OTEL_SAMPLER_RATIO", t.SampleRatio, log)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER=%q must be %q or %q", c.Database.Driver, db.DriverPostgres, db.DriverSQLite))
	}
	if c.Batch.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_MAX_SIZE must be positive, got %d", c.Batch.MaxBatchSize))
	}
	if c.Batch.MaxInputsPerClient < 0 {
		errs = append(errs, fmt.Errorf("BATCH_MAX_INPUTS_PER_CLIENT must not be negative, got %d", c.Batch.MaxInputsPerClient))
	}
	if c.Batch.UploadURITTL <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_UPLOAD_URI_TTL must be positive, got %s", c.Batch.UploadURITTL))
	}
	if strings.TrimSpace(c.Storage.OutputsBucket) == "" {
		errs = append(errs, errors.New("OUTPUTS_BUCKET_NAME is required"))
	}
	if strings.TrimSpace(c.Storage.InputsBucket) == "" && strings.TrimSpace(c.Storage.ExternalBaseURL) == "" {
		errs = append(errs, errors.New("INPUTS_BUCKET_NAME or EXTERNAL_STORAGE_BASE_URL is required"))
	}
	return errors.Join(errs...)
}

func (c Config) dbConfig() db.Config {
	return db.Config{
		Driver:           c.Database.Driver,
		PostgresHost:     c.Database.Host,
		PostgresPort:     c.Database.Port,
		PostgresUser:     c.Database.User,
		PostgresPassword: c.Database.Password,
		PostgresName:     c.Database.Name,
		PostgresSSLMode:  c.Database.SSLMode,
		SQLitePath:       c.Database.SQLitePath,
		MaxOpenConns:     c.Database.MaxOpenConns,
		MaxIdleConns:     c.Database.MaxIdleConns,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsInt64(key string, defaultVal int64, log *logger.Logger) int64 {
	raw := utils.GetEnv(key, "", log)
	if strings.TrimSpace(raw) == "" {
		return defaultVal
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		log.Warn("Environment variable could not be parsed as int64, using default", "env_var", key, "providedVal", raw, "defaultVal", defaultVal)
		return defaultVal
	}
	return v
}

func getEnvAsFloat(key string, defaultVal float64, log *logger.Logger) float64 {
	raw := utils.GetEnv(key, "", log)
	if strings.TrimSpace(raw) == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		log.Warn("Environment variable could not be parsed as float, using default", "env_var", key, "providedVal", raw, "defaultVal", defaultVal)
		return defaultVal
	}
	return v
}
