package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/logging"
	"github.com/FairForge/metavault/internal/props"
	"github.com/FairForge/metavault/internal/reconcile"
	"github.com/FairForge/metavault/internal/store"
	"gopkg.in/yaml.v3"
)

// Folder kinds
const (
	FolderLocal = "local"
	FolderS3    = "s3"
)

// Tag providers selectable in config
const (
	ProviderRemote = "remote"
	ProviderGoogle = "google"
	ProviderImagga = "imagga"
	ProviderDummy  = "dummy"
	ProviderNone   = "none"
)

type Config struct {
	Log       logging.LoggerConfig `yaml:"log"`
	Folder    FolderConfig         `yaml:"folder"`
	Reconcile ReconcileConfig      `yaml:"reconcile"`
	Tagging   TaggingConfig        `yaml:"tagging"`
	Store     StoreConfig          `yaml:"store"`
	Cache     CacheConfig          `yaml:"cache"`
	Server    ServerConfig         `yaml:"server"`
}

type FolderConfig struct {
	Kind string   `yaml:"kind"`
	Path string   `yaml:"path"`
	S3   S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type ReconcileConfig struct {
	Fields          string `yaml:"fields"`
	SkipExisting    bool   `yaml:"skip_existing"`
	ContinueOnError bool   `yaml:"continue_on_error"`
	CommitWorkers   int    `yaml:"commit_workers"`
	CommitCapacity  int    `yaml:"commit_capacity"`
	TagUploadSize   int    `yaml:"tag_upload_size"`
	LoadConcurrency int    `yaml:"load_concurrency"`
}

type TaggingConfig struct {
	Provider        string        `yaml:"provider"`
	Endpoint        string        `yaml:"endpoint"`
	UseImagga       bool          `yaml:"use_imagga"`
	Timeout         time.Duration `yaml:"timeout"`
	GoogleAPIKey    string        `yaml:"google_api_key"`
	ImaggaAPIKey    string        `yaml:"imagga_api_key"`
	ImaggaAPISecret string        `yaml:"imagga_api_secret"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	Burst           int           `yaml:"burst"`
}

type StoreConfig struct {
	Kind             string        `yaml:"kind"`
	SQLitePath       string        `yaml:"sqlite_path"`
	RedisURL         string        `yaml:"redis_url"`
	RedisPrefix      string        `yaml:"redis_prefix"`
	PostgresDSN      string        `yaml:"postgres_dsn"`
	MemoryTTL        time.Duration `yaml:"memory_ttl"`
	Compression      string        `yaml:"compression"`
	CompressionLevel int           `yaml:"compression_level"`
}

type CacheConfig struct {
	GetWindow       time.Duration `yaml:"get_window"`
	SetWindow       time.Duration `yaml:"set_window"`
	ThumbSize       int           `yaml:"thumb_size"`
	WarmConcurrency int           `yaml:"warm_concurrency"`
	OpTimeout       time.Duration `yaml:"op_timeout"`
}

type ServerConfig struct {
	Port         int   `yaml:"port"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log: logging.LoggerConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatConsole,
		},
		Folder: FolderConfig{
			Kind: FolderLocal,
			Path: ".",
		},
		Reconcile: ReconcileConfig{
			Fields:          "quick",
			CommitWorkers:   2,
			CommitCapacity:  16,
			TagUploadSize:   500,
			LoadConcurrency: 8,
		},
		Tagging: TaggingConfig{
			Provider:      ProviderRemote,
			Endpoint:      "http://localhost:3000",
			Timeout:       120 * time.Second,
			RatePerSecond: 5,
			Burst:         1,
		},
		Store: StoreConfig{
			Kind:        store.KindSQLite,
			SQLitePath:  "metavault-cache.db",
			RedisPrefix: "metavault:",
			Compression: "zstd",
		},
		Cache: CacheConfig{
			GetWindow:       200 * time.Millisecond,
			SetWindow:       100 * time.Millisecond,
			ThumbSize:       32,
			WarmConcurrency: 16,
			OpTimeout:       30 * time.Second,
		},
		Server: ServerConfig{
			Port:         3000,
			MaxBodyBytes: 100 << 20,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	var errs []error

	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Folder.Kind {
	case FolderLocal:
		if c.Folder.Path == "" {
			errs = append(errs, errors.New("folder.path is required"))
		}
	case FolderS3:
		if c.Folder.S3.Bucket == "" {
			errs = append(errs, errors.New("folder.s3.bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("folder.kind %q is not local or s3", c.Folder.Kind))
	}

	if _, err := reconcile.ParseFields(c.Reconcile.Fields); err != nil {
		errs = append(errs, fmt.Errorf("reconcile.fields: %w", err))
	}

	switch c.Tagging.Provider {
	case ProviderRemote:
		if c.Tagging.Endpoint == "" {
			errs = append(errs, errors.New("tagging.endpoint is required for the remote provider"))
		}
	case ProviderGoogle, ProviderImagga, ProviderDummy, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("tagging.provider %q is unknown", c.Tagging.Provider))
	}
	if c.Tagging.RatePerSecond < 0 {
		errs = append(errs, errors.New("tagging.rate_per_second must not be negative"))
	}

	switch c.Store.Kind {
	case store.KindMemory:
	case store.KindSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required"))
		}
	case store.KindRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required"))
		}
	case store.KindPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is unknown", c.Store.Kind))
	}

	if c.Cache.GetWindow <= 0 || c.Cache.SetWindow <= 0 {
		errs = append(errs, errors.New("cache windows must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

// S3Options converts the folder section for folder.NewS3
func (c *Config) S3Options() folder.S3Options {
	s := c.Folder.S3
	return folder.S3Options{
		Bucket:       s.Bucket,
		Prefix:       s.Prefix,
		Region:       s.Region,
		Endpoint:     s.Endpoint,
		AccessKey:    s.AccessKey,
		SecretKey:    s.SecretKey,
		UsePathStyle: s.UsePathStyle,
	}
}

// StoreOptions converts the store section for store.Open
func (c *Config) StoreOptions() store.Options {
	s := c.Store
	return store.Options{
		Kind:             s.Kind,
		SQLitePath:       s.SQLitePath,
		RedisURL:         s.RedisURL,
		RedisPrefix:      s.RedisPrefix,
		PostgresDSN:      s.PostgresDSN,
		MemoryTTL:        s.MemoryTTL,
		Compression:      s.Compression,
		CompressionLevel: s.CompressionLevel,
	}
}

// ReconcilerConfig converts the reconcile section for reconcile.New
func (c *Config) ReconcilerConfig() reconcile.Config {
	return reconcile.Config{
		CommitWorkers:  c.Reconcile.CommitWorkers,
		CommitCapacity: c.Reconcile.CommitCapacity,
		TagUploadSize:  c.Reconcile.TagUploadSize,
	}
}

// PropsOptions converts the cache section for props.New
func (c *Config) PropsOptions() props.Options {
	return props.Options{
		GetWindow: c.Cache.GetWindow,
		SetWindow: c.Cache.SetWindow,
		ThumbSize: c.Cache.ThumbSize,
	}
}
