package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Cowsay  CowsayConfig  `toml:"cowsay"`
	Cache   CacheConfig   `toml:"cache"`
	Auth    AuthConfig    `toml:"auth"`
	Archive ArchiveConfig `toml:"archive"`
}

type ServerConfig struct {
	Host                string `toml:"host"`                  // default 0.0.0.0
	Port                int    `toml:"port"`                  // default 80
	GracefulShutdownSec int    `toml:"graceful_shutdown_sec"` // time to drain before shutdown (default 30)
}

type CowsayConfig struct {
	Candidates       []string `toml:"candidates"`        // tried in order (default /usr/games/cowsay, cowsay)
	DefaultText      string   `toml:"default_text"`      // used when a request has no text (default "Moo!")
	TimeoutSec       int      `toml:"timeout_sec"`       // per invocation (default 10)
	MaxTextLength    int      `toml:"max_text_length"`   // in characters (default 1000)
	RememberResolved bool     `toml:"remember_resolved"` // try the last working candidate first
}

type CacheConfig struct {
	Size       *int `toml:"size"`       // rendered outputs kept; 0 disables (default 0)
	Expiration int  `toml:"expiration"` // seconds (default 3600)
}

type AuthConfig struct {
	Keys            []string `toml:"keys"`
	ServiceURL      string   `toml:"service_url"` // key verification service, POST {service_url}/validate
	ServiceToken    string   `toml:"service_token"`
	CacheExpiration int      `toml:"cache_expiration"` // seconds (default 300)
	HTTPTimeout     int      `toml:"http_timeout"`     // seconds (default 5)
	CacheSize       int      `toml:"cache_size"`       // default 10000
	FailOpen        bool     `toml:"fail_open"`
}

type ArchiveConfig struct {
	Endpoint    string `toml:"endpoint"` // for S3-compatible services such as R2 or MinIO
	Region      string `toml:"region"`
	Bucket      string `toml:"bucket"` // archiving is off when empty
	AccessKeyID string `toml:"access_key_id"`
	SecretKey   string `toml:"secret_key"`
	Prefix      string `toml:"prefix"`
}

const (
	DefaultHost                = "0.0.0.0"
	DefaultPort                = 80
	DefaultGracefulShutdownSec = 30
	DefaultText                = "Moo!"
	DefaultTimeoutSec          = 10
	DefaultMaxTextLength       = 1000
	DefaultCacheSize           = 0
	DefaultCacheExpiration     = 3600
)

var DefaultCandidates = []string{"/usr/games/cowsay", "cowsay"}

func LoadConfig(configPath string) (*Config, error) {
	var config Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("error decoding config file: %v", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// Default returns a config that serves cowsay on 0.0.0.0:80.
func Default() *Config {
	config := &Config{}
	config.ApplyDefaults()
	return config
}

// ApplyDefaults fills every unset value.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.GracefulShutdownSec == 0 {
		c.Server.GracefulShutdownSec = DefaultGracefulShutdownSec
	}

	if len(c.Cowsay.Candidates) == 0 {
		c.Cowsay.Candidates = append([]string(nil), DefaultCandidates...)
	}
	if c.Cowsay.DefaultText == "" {
		c.Cowsay.DefaultText = DefaultText
	}
	if c.Cowsay.TimeoutSec == 0 {
		c.Cowsay.TimeoutSec = DefaultTimeoutSec
	}
	if c.Cowsay.MaxTextLength == 0 {
		c.Cowsay.MaxTextLength = DefaultMaxTextLength
	}

	if c.Cache.Size == nil {
		size := DefaultCacheSize
		c.Cache.Size = &size
	}
	if c.Cache.Expiration == 0 {
		c.Cache.Expiration = DefaultCacheExpiration
	}
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	for _, candidate := range c.Cowsay.Candidates {
		if strings.TrimSpace(candidate) == "" {
			return fmt.Errorf("cowsay candidates must not be empty")
		}
	}
	if c.Cowsay.TimeoutSec < 0 {
		return fmt.Errorf("invalid cowsay timeout: %d", c.Cowsay.TimeoutSec)
	}
	if c.Cowsay.MaxTextLength < 0 {
		return fmt.Errorf("invalid max text length: %d", c.Cowsay.MaxTextLength)
	}
	if c.Cache.Size != nil && *c.Cache.Size < 0 {
		return fmt.Errorf("invalid cache size: %d", *c.Cache.Size)
	}
	return nil
}

// OverrideFromEnv applies COWSAY_* environment variables on top of the file.
// Values that fail to parse are ignored.
func (c *Config) OverrideFromEnv(getenv func(string) string) {
	setString := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if v := getenv(name); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	setList := func(name string, dst *[]string) {
		if v := getenv(name); v != "" {
			*dst = splitList(v)
		}
	}

	setString("COWSAY_SERVER_HOST", &c.Server.Host)
	setInt("COWSAY_SERVER_PORT", &c.Server.Port)
	setInt("COWSAY_SERVER_GRACEFUL_SHUTDOWN_SEC", &c.Server.GracefulShutdownSec)

	setList("COWSAY_CANDIDATES", &c.Cowsay.Candidates)
	setString("COWSAY_DEFAULT_TEXT", &c.Cowsay.DefaultText)
	setInt("COWSAY_TIMEOUT_SEC", &c.Cowsay.TimeoutSec)
	setInt("COWSAY_MAX_TEXT_LENGTH", &c.Cowsay.MaxTextLength)
	setBool("COWSAY_REMEMBER_RESOLVED", &c.Cowsay.RememberResolved)

	if v := getenv("COWSAY_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Size = &n
		}
	}
	setInt("COWSAY_CACHE_EXPIRATION", &c.Cache.Expiration)

	setList("COWSAY_AUTH_KEYS", &c.Auth.Keys)
	setString("COWSAY_AUTH_SERVICE_URL", &c.Auth.ServiceURL)
	setString("COWSAY_AUTH_SERVICE_TOKEN", &c.Auth.ServiceToken)
	setInt("COWSAY_AUTH_CACHE_EXPIRATION", &c.Auth.CacheExpiration)
	setInt("COWSAY_AUTH_HTTP_TIMEOUT", &c.Auth.HTTPTimeout)
	setInt("COWSAY_AUTH_CACHE_SIZE", &c.Auth.CacheSize)
	setBool("COWSAY_AUTH_FAIL_OPEN", &c.Auth.FailOpen)

	setString("COWSAY_ARCHIVE_ENDPOINT", &c.Archive.Endpoint)
	setString("COWSAY_ARCHIVE_REGION", &c.Archive.Region)
	setString("COWSAY_ARCHIVE_BUCKET", &c.Archive.Bucket)
	setString("COWSAY_ARCHIVE_ACCESS_KEY_ID", &c.Archive.AccessKeyID)
	setString("COWSAY_ARCHIVE_SECRET_KEY", &c.Archive.SecretKey)
	setString("COWSAY_ARCHIVE_PREFIX", &c.Archive.Prefix)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
