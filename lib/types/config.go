// Configuration and settings types
package types

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Database DatabaseConfig `mapstructure:"database"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
	DataPath    string `mapstructure:"data_path"`

	// ProxyHeader is only honoured for requests arriving from TrustedProxies
	ProxyHeader    string   `mapstructure:"proxy_header"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
	Path   string `mapstructure:"path"`
}

// RelayConfig holds the relay information document fields
type RelayConfig struct {
	Name          string `mapstructure:"name"`
	Description   string `mapstructure:"description"`
	Contact       string `mapstructure:"contact"`
	PubKey        string `mapstructure:"pubkey"`
	Software      string `mapstructure:"software"`
	Version       string `mapstructure:"version"`
	SupportedNIPs []int  `mapstructure:"supported_nips"`
}

// DatabaseConfig selects and tunes the relational event store
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // sqlite or postgres
	DSN          string `mapstructure:"dsn"`
	Path         string `mapstructure:"path"` // sqlite file, relative to the data path
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// BridgeConfig selects the cross-process fan-out transport
type BridgeConfig struct {
	Transport string `mapstructure:"transport"` // memory or redis
	RedisURL  string `mapstructure:"redis_url"`
	Channel   string `mapstructure:"channel"`
	Codec     string `mapstructure:"codec"` // json or cbor
}

// LimitsConfig holds relay resource limits
type LimitsConfig struct {
	QueryLimit      int `mapstructure:"query_limit"`
	OutboundQueue   int `mapstructure:"outbound_queue"`
	FanoutWorkers   int `mapstructure:"fanout_workers"`
	MaxMessageBytes int `mapstructure:"max_message_bytes"`
}
