package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is loaded once at startup and threaded through as a value. Outside
// this file, only internal/pkg/logger (LOG_JSON) and internal/pkg/tracing
// (the OTLP protocol variables) read environment variables directly.
type Config struct {
	Port           int      `mapstructure:"port"`
	PublicDir      string   `mapstructure:"public_dir"`
	LogLevel       string   `mapstructure:"log_level"`
	LogFormat      string   `mapstructure:"log_format"` // json | text
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"`
	UpstreamTimeoutSec int `mapstructure:"upstream_timeout_sec"` // §5: 25s upstream HTTP deadline

	// Port selection (spec.md §6 "Environment / configuration surface").
	DBDriver      string `mapstructure:"db_driver"`      // postgres | sqlite
	DBURL         string `mapstructure:"db_url"`
	StorageDriver string `mapstructure:"storage_driver"` // disk
	StoragePath   string `mapstructure:"storage_path"`
	CacheDriver   string `mapstructure:"cache_driver"`   // memory | redis
	CacheURL      string `mapstructure:"cache_url"`
	QueueDriver   string `mapstructure:"queue_driver"`   // "" | channel

	EncryptionKey       string `mapstructure:"encryption_key"`
	SkipPackageStorage  bool   `mapstructure:"skip_package_storage"`

	// Public-mirror defaults (spec.md §4.3).
	PackagistMirroringEnabled bool   `mapstructure:"packagist_mirroring_enabled"`
	PackageCachingEnabled     bool   `mapstructure:"package_caching_enabled"`
	PackagistBaseURL          string `mapstructure:"packagist_base_url"`

	// PublicBaseURL is this service's own externally-reachable origin
	// (e.g. "https://mirror.example.com"), stamped onto every dist.url in
	// outgoing responses (spec.md §4.3 invariant: dist.url's host is this
	// proxy). Left empty, it's derived per-request from Host/
	// X-Forwarded-Host — the common case behind a load balancer that
	// never needs this set explicitly.
	PublicBaseURL string `mapstructure:"public_base_url"`

	// Number of workers the channel JobQueue (QUEUE_DRIVER=channel) runs,
	// independent of GOMAXPROCS. The synchronous strategy does not use it:
	// its enqueue_all starts one goroutine per job.
	JobWorkerPoolSize int `mapstructure:"job_worker_pool_size"`

	// Tracing (otel), following the teacher's own config surface.
	TracingEnabled      bool    `mapstructure:"tracing_enabled"`
	TracingEndpoint     string  `mapstructure:"tracing_endpoint"`
	TracingServiceName  string  `mapstructure:"tracing_service_name"`
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`

	MetricsAuthEnabled bool `mapstructure:"metrics_auth_enabled"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/pkgmirror/")
	viper.AddConfigPath("$HOME/.pkgmirror")
	viper.AddConfigPath(".")

	viper.SetDefault("port", 8080)
	viper.SetDefault("public_dir", "./public")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("allowed_origins", []string{"*"})

	viper.SetDefault("request_timeout_sec", 30)
	viper.SetDefault("shutdown_timeout_sec", 15)
	viper.SetDefault("upstream_timeout_sec", 25)

	viper.SetDefault("db_driver", "sqlite")
	viper.SetDefault("db_url", "./pkgmirror.db")
	viper.SetDefault("storage_driver", "disk")
	viper.SetDefault("storage_path", "./storage")
	viper.SetDefault("cache_driver", "memory")
	viper.SetDefault("cache_url", "")
	viper.SetDefault("queue_driver", "")

	viper.SetDefault("encryption_key", "")
	viper.SetDefault("skip_package_storage", false)

	viper.SetDefault("packagist_mirroring_enabled", true)
	viper.SetDefault("package_caching_enabled", true)
	viper.SetDefault("packagist_base_url", "https://repo.packagist.org")
	viper.SetDefault("public_base_url", "")

	viper.SetDefault("job_worker_pool_size", 8)

	viper.SetDefault("tracing_enabled", false)
	viper.SetDefault("tracing_endpoint", "")
	viper.SetDefault("tracing_service_name", "pkgmirror")
	viper.SetDefault("tracing_sampling_rate", 1.0)

	viper.SetDefault("metrics_auth_enabled", false)

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, entry := range cfg.AllowedOrigins {
		for _, p := range strings.Split(entry, ",") {
			if o := strings.TrimSpace(p); o != "" {
				origins = append(origins, o)
			}
		}
	}
	cfg.AllowedOrigins = origins

	if !cfg.TracingEnabled && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		cfg.TracingEnabled = true
		if cfg.TracingEndpoint == "" {
			cfg.TracingEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
	}

	return &cfg, nil
}
