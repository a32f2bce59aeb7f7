// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Overlap policies for runs of the same job.
const (
	OverlapAllow  = "Allow"
	OverlapForbid = "Forbid"
)

// Config holds all configuration for the batch application.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	DataFile         string        `mapstructure:"data_file" validate:"required"`
	OutputFile       string        `mapstructure:"output_file"`
	ChunkSize        int           `mapstructure:"chunk_size" validate:"gte=1"`
	TransactionLimit int           `mapstructure:"transaction_limit" validate:"gte=1"`
	SchedulePeriod   time.Duration `mapstructure:"schedule_period" validate:"gt=0"`
	CronExpr         string        `mapstructure:"cron_expr"`
	OverlapPolicy    string        `mapstructure:"overlap_policy" validate:"oneof=Allow Forbid"`
	Repository       string        `mapstructure:"repository" validate:"oneof=memory etcd sqlite"`
	SqlitePath       string        `mapstructure:"sqlite_path" validate:"required_if=Repository sqlite"`
	EtcdEndpoints    []string      `mapstructure:"etcd_endpoints" validate:"required_if=Repository etcd"`
	EtcdTimeout      time.Duration `mapstructure:"etcd_timeout"`
	HttpListenAddr   string        `mapstructure:"http_listen_addr"`
	SeedCount        int           `mapstructure:"seed_count" validate:"gte=0"`
	SeedOnStart      bool          `mapstructure:"seed_on_start"`
	TaskletCommand   string        `mapstructure:"tasklet_command"`
	TaskletTimeout   time.Duration `mapstructure:"tasklet_timeout"`
	TraceSpans       bool          `mapstructure:"trace_spans"`
}

// Schedule returns the cron spec the scheduler should use.
func (c *Config) Schedule() string {
	if c.CronExpr != "" {
		return c.CronExpr
	}
	return "@every " + c.SchedulePeriod.String()
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("data_file", "database.yaml")
	v.SetDefault("output_file", "output.txt")
	v.SetDefault("chunk_size", 20)
	v.SetDefault("transaction_limit", 5)
	v.SetDefault("schedule_period", "5000ms")
	v.SetDefault("cron_expr", "")
	v.SetDefault("overlap_policy", OverlapForbid)
	v.SetDefault("repository", "memory")
	v.SetDefault("sqlite_path", "batch.db")
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("seed_count", 100)
	v.SetDefault("seed_on_start", true)
	v.SetDefault("tasklet_command", "")
	v.SetDefault("tasklet_timeout", "30s")
	v.SetDefault("trace_spans", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("batch")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
