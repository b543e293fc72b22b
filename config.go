// Server configuration

package main

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const DEFAULT_RTMP_PORT = 1935
const DEFAULT_CHUNK_SIZE = 128
const DEFAULT_PING_SECONDS = 60
const DEFAULT_PING_TIMEOUT_SECONDS = 30

const STREAM_ID_DEFAULT_MAX_LENGTH = 128
const GOP_CACHE_DEFAULT_LIMIT = 256 * 1024 * 1024
const IP_DEFAULT_LIMIT = 4

// RTMP protocol options
type RTMPConfig struct {
	Port        int  `yaml:"port"`         // TCP port to listen on
	ChunkSize   int  `yaml:"chunk_size"`   // Chunk size for outgoing packets
	GopCache    bool `yaml:"gop_cache"`    // False to disable the GOP cache
	Ping        int  `yaml:"ping"`         // Ping request period (seconds)
	PingTimeout int  `yaml:"ping_timeout"` // Socket idle timeout (seconds)
}

// Authentication options
type AuthConfig struct {
	Publish bool   `yaml:"publish"` // True to require a signature for publishing
	Play    bool   `yaml:"play"`    // True to require a signature for playing
	Secret  string `yaml:"secret"`  // Secret passed to the signature verifier
}

// Server configuration
type ServerConfig struct {
	RTMP RTMPConfig `yaml:"rtmp"`
	Auth AuthConfig `yaml:"auth"`

	BindAddress string `yaml:"bind_address"`

	StreamIdMaxLength int `yaml:"id_max_length"` // Max length for channel names and stream keys

	IpLimit       uint32 `yaml:"-"` // Max number of sessions for a single IP (env only)
	GopCacheLimit int64  `yaml:"-"` // Limit of the GOP cache in bytes (env only)
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		RTMP: RTMPConfig{
			Port:        DEFAULT_RTMP_PORT,
			ChunkSize:   DEFAULT_CHUNK_SIZE,
			GopCache:    true,
			Ping:        DEFAULT_PING_SECONDS,
			PingTimeout: DEFAULT_PING_TIMEOUT_SECONDS,
		},
		Auth: AuthConfig{
			Publish: false,
			Play:    false,
			Secret:  "",
		},
		BindAddress:       "",
		StreamIdMaxLength: STREAM_ID_DEFAULT_MAX_LENGTH,
		IpLimit:           IP_DEFAULT_LIMIT,
		GopCacheLimit:     GOP_CACHE_DEFAULT_LIMIT,
	}
}

// Loads the configuration from the YAML file
// and applies any environment variable overrides
// Returns the configuration to use
func LoadServerConfig() ServerConfig {
	config := defaultServerConfig()

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yml"
	}

	content, e := os.ReadFile(configFile)
	if e == nil {
		e = yaml.Unmarshal(content, &config)
		if e != nil {
			LogWarning("Could not parse " + configFile + ": " + e.Error())
			config = defaultServerConfig()
		}
	}

	config.applyEnvOverrides()

	if config.RTMP.ChunkSize < DEFAULT_CHUNK_SIZE {
		config.RTMP.ChunkSize = DEFAULT_CHUNK_SIZE
	}

	if config.StreamIdMaxLength <= 0 {
		config.StreamIdMaxLength = STREAM_ID_DEFAULT_MAX_LENGTH
	}

	return config
}

func (config *ServerConfig) applyEnvOverrides() {
	config.BindAddress = envStringOverride("BIND_ADDRESS", config.BindAddress)

	config.RTMP.Port = envIntOverride("RTMP_PORT", config.RTMP.Port)
	config.RTMP.ChunkSize = envIntOverride("RTMP_CHUNK_SIZE", config.RTMP.ChunkSize)
	config.RTMP.GopCache = envBoolOverride("RTMP_GOP_CACHE", config.RTMP.GopCache)
	config.RTMP.Ping = envIntOverride("RTMP_PING", config.RTMP.Ping)
	config.RTMP.PingTimeout = envIntOverride("RTMP_PING_TIMEOUT", config.RTMP.PingTimeout)

	config.Auth.Publish = envBoolOverride("AUTH_PUBLISH", config.Auth.Publish)
	config.Auth.Play = envBoolOverride("AUTH_PLAY", config.Auth.Play)
	config.Auth.Secret = envStringOverride("AUTH_SECRET", config.Auth.Secret)

	config.StreamIdMaxLength = envIntOverride("ID_MAX_LENGTH", config.StreamIdMaxLength)

	ipLimit := envIntOverride("MAX_IP_CONCURRENT_CONNECTIONS", int(config.IpLimit))
	if ipLimit > 0 {
		config.IpLimit = uint32(ipLimit)
	}

	gopLimitMb := envIntOverride("GOP_CACHE_SIZE_MB", 0)
	if gopLimitMb > 0 {
		config.GopCacheLimit = int64(gopLimitMb) * 1024 * 1024
	}
}

func envStringOverride(name string, current string) string {
	r := os.Getenv(name)

	if r == "" {
		return current
	}

	return r
}

func envIntOverride(name string, current int) int {
	r := os.Getenv(name)

	if r == "" {
		return current
	}

	n, e := strconv.Atoi(r)

	if e != nil {
		return current
	}

	return n
}

func envBoolOverride(name string, current bool) bool {
	switch os.Getenv(name) {
	case "YES", "TRUE", "true", "1":
		return true
	case "NO", "FALSE", "false", "0":
		return false
	default:
		return current
	}
}
