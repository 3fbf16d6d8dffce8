// Package config loads node/index process configuration from a file plus
// environment overrides via spf13/viper, mapping the recognized config keys
// onto construction parameters for cachecore.Manager, indexsrv and reorg.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NodeConfig is a node process's configuration (the nodeserver.* keys).
type NodeConfig struct {
	Threads int `mapstructure:"threads"`

	Cache struct {
		Size     map[string]int64 `mapstructure:"size"`
		Strategy string           `mapstructure:"strategy"`
		Local    struct {
			Replacement string `mapstructure:"replacement"`
		} `mapstructure:"local"`
	} `mapstructure:"cache"`

	ListenDelivery string        `mapstructure:"listen_delivery"`
	ListenControl  string        `mapstructure:"listen_control"`
	IndexAddr      string        `mapstructure:"index_addr"`
	DeliveryTTL    time.Duration `mapstructure:"delivery_ttl"`
}

// IndexConfig is the index process's configuration (the indexserver.* keys).
type IndexConfig struct {
	Reorg struct {
		Strategy   string        `mapstructure:"strategy"`
		Relevance  string        `mapstructure:"relevance"`
		Interval   time.Duration `mapstructure:"interval"`
		QuotaBytes int64         `mapstructure:"quota_bytes"`
	} `mapstructure:"reorg"`

	Batching struct {
		Enable bool `mapstructure:"enable"`
	} `mapstructure:"batching"`

	Scheduler    string `mapstructure:"scheduler"`
	Listen       string `mapstructure:"listen"`
	ListenWorker string `mapstructure:"listen_worker"`
}

// LoadNode loads node configuration from configFile (falling back to
// MAPPING_CACHE_CONFIG_FILE / "configs/node.yaml") plus MAPPING_CACHE_-
// prefixed environment overrides.
func LoadNode(configFile string) (*NodeConfig, error) {
	v := newViper()
	setNodeDefaults(v)
	if err := read(v, configFile, "configs/node.yaml"); err != nil {
		return nil, err
	}
	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("mapping-cache: unmarshal node config: %w", err)
	}
	return &cfg, nil
}

// LoadIndex loads index configuration the same way.
func LoadIndex(configFile string) (*IndexConfig, error) {
	v := newViper()
	setIndexDefaults(v)
	if err := read(v, configFile, "configs/index.yaml"); err != nil {
		return nil, err
	}
	var cfg IndexConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("mapping-cache: unmarshal index config: %w", err)
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MAPPING_CACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, configFile, fallback string) error {
	if configFile == "" {
		configFile = os.Getenv("MAPPING_CACHE_CONFIG_FILE")
	}
	if configFile == "" {
		configFile = fallback
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		// A missing file means "run on defaults"; viper reports it as a
		// plain path error when the file was named explicitly.
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("mapping-cache: read config file %s: %w", configFile, err)
	}
	return nil
}

func setNodeDefaults(v *viper.Viper) {
	v.SetDefault("threads", 0) // 0 = default pool of 4
	v.SetDefault("cache.strategy", "cache-all")
	v.SetDefault("cache.local.replacement", "lru")
	v.SetDefault("listen_delivery", ":9100")
	v.SetDefault("listen_control", ":9101")
	v.SetDefault("index_addr", "127.0.0.1:9200")
	v.SetDefault("delivery_ttl", 30*time.Second)
}

func setIndexDefaults(v *viper.Viper) {
	v.SetDefault("reorg.strategy", "lowest-relevance")
	v.SetDefault("reorg.relevance", "lru")
	v.SetDefault("reorg.interval", 60*time.Second)
	v.SetDefault("reorg.quota_bytes", int64(512<<20))
	v.SetDefault("batching.enable", true)
	v.SetDefault("scheduler", "locality")
	v.SetDefault("listen", ":9200")
	v.SetDefault("listen_worker", ":9201")
}
