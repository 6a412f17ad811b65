package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

const (
	DefaultQueryLimit    = 100
	DefaultOutboundQueue = 32
	DefaultChannel       = "trunk:events"
)

var (
	// Cache the configuration after first load
	cachedConfig    atomic.Value // stores *types.Config
	configLoadOnce  sync.Once
	configLoadError error

	writeMutex sync.Mutex

	// Debounce timer for config file changes
	debounceTimer *time.Timer
	debounceMutex sync.Mutex

	listenersMutex sync.Mutex
	listeners      []func(*types.Config)
)

// InitConfig initializes the global viper configuration. A .env file in the
// working directory is loaded first so that TRUNK_* variables can be kept
// out of the yaml file.
func InitConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/trunk-relay")

	viper.SetEnvPrefix("TRUNK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Println("No config.yaml found, running with defaults and environment")
	} else {
		log.Printf("Using config file %s", viper.ConfigFileUsed())
	}

	if err := reloadConfigCache(); err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	if viper.ConfigFileUsed() == "" {
		return nil
	}

	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		// Debounce file changes to avoid reading partial writes
		debounceMutex.Lock()
		defer debounceMutex.Unlock()

		if debounceTimer != nil {
			debounceTimer.Stop()
		}

		debounceTimer = time.AfterFunc(500*time.Millisecond, func() {
			log.Printf("Config file changed (debounced): %s", e.Name)
			writeMutex.Lock()
			err := reloadConfigCache()
			writeMutex.Unlock()

			if err != nil {
				log.Printf("Error reloading config cache after file change: %v", err)
				return
			}
			notifyListeners()
		})
	})

	return nil
}

// SetDefaults registers the default value of every known key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 9000)
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.data_path", "./data")
	v.SetDefault("server.proxy_header", "")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.path", "logs")

	v.SetDefault("relay.name", "trunk-relay")
	v.SetDefault("relay.description", "Event relay with cross-process fan-out")
	v.SetDefault("relay.contact", "")
	v.SetDefault("relay.pubkey", "")
	v.SetDefault("relay.software", "https://github.com/HORNET-Storage/trunk-relay")
	v.SetDefault("relay.version", "0.1.0")
	v.SetDefault("relay.supported_nips", []int{1, 11})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "events.db")
	v.SetDefault("database.max_open_conns", 16)
	v.SetDefault("database.max_idle_conns", 4)

	v.SetDefault("bridge.transport", "memory")
	v.SetDefault("bridge.redis_url", "redis://localhost:6379/0")
	v.SetDefault("bridge.channel", DefaultChannel)
	v.SetDefault("bridge.codec", "json")

	v.SetDefault("limits.query_limit", DefaultQueryLimit)
	v.SetDefault("limits.outbound_queue", DefaultOutboundQueue)
	v.SetDefault("limits.fanout_workers", 0)
	v.SetDefault("limits.max_message_bytes", 512*1024)
}

// Load builds a configuration from v without touching the global cache
func Load(v *viper.Viper) (*types.Config, error) {
	cfg := &types.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the relay cannot run with
func Validate(cfg *types.Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", cfg.Database.Driver)
	}

	switch cfg.Bridge.Transport {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown bridge.transport %q", cfg.Bridge.Transport)
	}

	switch cfg.Bridge.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("unknown bridge.codec %q", cfg.Bridge.Codec)
	}

	if cfg.Bridge.Channel == "" {
		cfg.Bridge.Channel = DefaultChannel
	}
	if cfg.Limits.QueryLimit <= 0 || cfg.Limits.QueryLimit > DefaultQueryLimit {
		cfg.Limits.QueryLimit = DefaultQueryLimit
	}
	if cfg.Limits.OutboundQueue <= 0 {
		cfg.Limits.OutboundQueue = DefaultOutboundQueue
	}

	return nil
}

func reloadConfigCache() error {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		return err
	}
	cachedConfig.Store(cfg)
	return nil
}

// GetConfig returns the cached configuration struct
func GetConfig() (*types.Config, error) {
	if cfg := cachedConfig.Load(); cfg != nil {
		return cfg.(*types.Config), nil
	}

	configLoadOnce.Do(func() {
		configLoadError = reloadConfigCache()
	})

	if configLoadError != nil {
		return nil, configLoadError
	}

	cfg := cachedConfig.Load()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	return cfg.(*types.Config), nil
}

// OnReload registers fn to run with the new configuration after the config
// file changes on disk.
func OnReload(fn func(*types.Config)) {
	listenersMutex.Lock()
	defer listenersMutex.Unlock()
	listeners = append(listeners, fn)
}

func notifyListeners() {
	cfg, err := GetConfig()
	if err != nil {
		return
	}

	listenersMutex.Lock()
	fns := append([]func(*types.Config){}, listeners...)
	listenersMutex.Unlock()

	for _, fn := range fns {
		fn(cfg)
	}
}

// GetDataDir returns the data directory path
func GetDataDir() string {
	cfg, err := GetConfig()
	if err != nil || cfg.Server.DataPath == "" {
		return "./data"
	}
	return cfg.Server.DataPath
}

// GetPath returns a path relative to the data directory
func GetPath(subPath string) string {
	return filepath.Join(GetDataDir(), subPath)
}
