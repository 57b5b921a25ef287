package config

import (
	"os"
	"path/filepath"
	"testing"
)

func intPtr(n int) *int { return &n }

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		configData  string
		expectError bool
		expected    *Config
	}{
		{
			name: "full config",
			configData: `
[server]
host = "127.0.0.1"
port = 8080
graceful_shutdown_sec = 5

[cowsay]
candidates = ["/opt/cowsay/bin/cowsay", "cowsay"]
default_text = "Hello"
timeout_sec = 3
max_text_length = 200
remember_resolved = true

[cache]
size = 0
expiration = 60

[auth]
keys = ["k1", "k2"]
service_url = "https://auth.example.com"
service_token = "test-token"
fail_open = true

[archive]
bucket = "renders"
region = "auto"
prefix = "cowsay"
`,
			expected: &Config{
				Server: ServerConfig{Host: "127.0.0.1", Port: 8080, GracefulShutdownSec: 5},
				Cowsay: CowsayConfig{
					Candidates:       []string{"/opt/cowsay/bin/cowsay", "cowsay"},
					DefaultText:      "Hello",
					TimeoutSec:       3,
					MaxTextLength:    200,
					RememberResolved: true,
				},
				Cache: CacheConfig{Size: intPtr(0), Expiration: 60},
				Auth: AuthConfig{
					Keys:         []string{"k1", "k2"},
					ServiceURL:   "https://auth.example.com",
					ServiceToken: "test-token",
					FailOpen:     true,
				},
				Archive: ArchiveConfig{Bucket: "renders", Region: "auto", Prefix: "cowsay"},
			},
		},
		{
			name:       "empty config gets defaults",
			configData: ``,
			expected: &Config{
				Server: ServerConfig{Host: DefaultHost, Port: DefaultPort, GracefulShutdownSec: DefaultGracefulShutdownSec},
				Cowsay: CowsayConfig{
					Candidates:    DefaultCandidates,
					DefaultText:   DefaultText,
					TimeoutSec:    DefaultTimeoutSec,
					MaxTextLength: DefaultMaxTextLength,
				},
				Cache: CacheConfig{Size: intPtr(DefaultCacheSize), Expiration: DefaultCacheExpiration},
			},
		},
		{
			name: "invalid toml",
			configData: `
[server
host = "localhost"
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "test_config.toml")
			if err := os.WriteFile(configPath, []byte(tt.configData), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			config, err := LoadConfig(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if config.Server != tt.expected.Server {
				t.Errorf("Expected server %+v, got %+v", tt.expected.Server, config.Server)
			}

			if len(config.Cowsay.Candidates) != len(tt.expected.Cowsay.Candidates) {
				t.Fatalf("Expected candidates %v, got %v", tt.expected.Cowsay.Candidates, config.Cowsay.Candidates)
			}
			for i := range config.Cowsay.Candidates {
				if config.Cowsay.Candidates[i] != tt.expected.Cowsay.Candidates[i] {
					t.Errorf("Expected candidate %d to be %s, got %s", i, tt.expected.Cowsay.Candidates[i], config.Cowsay.Candidates[i])
				}
			}

			if config.Cowsay.DefaultText != tt.expected.Cowsay.DefaultText {
				t.Errorf("Expected default text %s, got %s", tt.expected.Cowsay.DefaultText, config.Cowsay.DefaultText)
			}

			if config.Cowsay.TimeoutSec != tt.expected.Cowsay.TimeoutSec {
				t.Errorf("Expected timeout %d, got %d", tt.expected.Cowsay.TimeoutSec, config.Cowsay.TimeoutSec)
			}

			if config.Cowsay.MaxTextLength != tt.expected.Cowsay.MaxTextLength {
				t.Errorf("Expected max text length %d, got %d", tt.expected.Cowsay.MaxTextLength, config.Cowsay.MaxTextLength)
			}

			if config.Cowsay.RememberResolved != tt.expected.Cowsay.RememberResolved {
				t.Errorf("Expected remember_resolved %v, got %v", tt.expected.Cowsay.RememberResolved, config.Cowsay.RememberResolved)
			}

			if *config.Cache.Size != *tt.expected.Cache.Size {
				t.Errorf("Expected cache size %d, got %d", *tt.expected.Cache.Size, *config.Cache.Size)
			}

			if config.Cache.Expiration != tt.expected.Cache.Expiration {
				t.Errorf("Expected cache expiration %d, got %d", tt.expected.Cache.Expiration, config.Cache.Expiration)
			}

			if len(config.Auth.Keys) != len(tt.expected.Auth.Keys) {
				t.Errorf("Expected %d auth keys, got %d", len(tt.expected.Auth.Keys), len(config.Auth.Keys))
			}

			if config.Auth.ServiceURL != tt.expected.Auth.ServiceURL {
				t.Errorf("Expected auth service URL %s, got %s", tt.expected.Auth.ServiceURL, config.Auth.ServiceURL)
			}

			if config.Auth.FailOpen != tt.expected.Auth.FailOpen {
				t.Errorf("Expected fail_open %v, got %v", tt.expected.Auth.FailOpen, config.Auth.FailOpen)
			}

			if config.Archive != tt.expected.Archive {
				t.Errorf("Expected archive %+v, got %+v", tt.expected.Archive, config.Archive)
			}
		})
	}
}

func TestLoadConfigNonExistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.toml")
	if err == nil {
		t.Errorf("Expected error for non-existent file, but got none")
	}
}

func TestDefault(t *testing.T) {
	config := Default()

	if config.Server.Host != "0.0.0.0" || config.Server.Port != 80 {
		t.Errorf("Expected 0.0.0.0:80, got %s:%d", config.Server.Host, config.Server.Port)
	}
	if config.Cowsay.DefaultText != "Moo!" {
		t.Errorf("Expected default text Moo!, got %s", config.Cowsay.DefaultText)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"blank candidate", func(c *Config) { c.Cowsay.Candidates = []string{"cowsay", " "} }},
		{"negative timeout", func(c *Config) { c.Cowsay.TimeoutSec = -1 }},
		{"negative max length", func(c *Config) { c.Cowsay.MaxTextLength = -5 }},
		{"negative cache size", func(c *Config) { c.Cache.Size = intPtr(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.modify(config)
			if err := config.Validate(); err == nil {
				t.Errorf("Expected validation error, but got none")
			}
		})
	}
}

func TestOverrideFromEnv(t *testing.T) {
	env := map[string]string{
		"COWSAY_SERVER_HOST":       "127.0.0.1",
		"COWSAY_SERVER_PORT":       "9090",
		"COWSAY_CANDIDATES":        " /a/cowsay , cowsay ,",
		"COWSAY_DEFAULT_TEXT":      "Baa!",
		"COWSAY_TIMEOUT_SEC":       "not-a-number",
		"COWSAY_CACHE_SIZE":        "0",
		"COWSAY_AUTH_KEYS":         "k1,k2",
		"COWSAY_AUTH_FAIL_OPEN":    "1",
		"COWSAY_ARCHIVE_BUCKET":    "renders",
		"COWSAY_REMEMBER_RESOLVED": "true",
	}

	config := Default()
	config.OverrideFromEnv(func(name string) string { return env[name] })

	if config.Server.Host != "127.0.0.1" || config.Server.Port != 9090 {
		t.Errorf("Expected 127.0.0.1:9090, got %s:%d", config.Server.Host, config.Server.Port)
	}
	if len(config.Cowsay.Candidates) != 2 || config.Cowsay.Candidates[0] != "/a/cowsay" || config.Cowsay.Candidates[1] != "cowsay" {
		t.Errorf("Unexpected candidates: %v", config.Cowsay.Candidates)
	}
	if config.Cowsay.DefaultText != "Baa!" {
		t.Errorf("Expected default text Baa!, got %s", config.Cowsay.DefaultText)
	}
	if config.Cowsay.TimeoutSec != DefaultTimeoutSec {
		t.Errorf("Unparseable timeout should be ignored, got %d", config.Cowsay.TimeoutSec)
	}
	if !config.Cowsay.RememberResolved {
		t.Errorf("Expected remember_resolved to be enabled")
	}
	if *config.Cache.Size != 0 {
		t.Errorf("Expected cache size 0, got %d", *config.Cache.Size)
	}
	if len(config.Auth.Keys) != 2 || !config.Auth.FailOpen {
		t.Errorf("Unexpected auth config: %+v", config.Auth)
	}
	if config.Archive.Bucket != "renders" {
		t.Errorf("Expected archive bucket renders, got %s", config.Archive.Bucket)
	}
}

func TestLoadConfigExample(t *testing.T) {
	config, err := LoadConfig(filepath.Join("..", "config.example.toml"))
	if err != nil {
		t.Fatalf("Example config should load: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Example config should be valid: %v", err)
	}
	if config.Archive.Bucket != "" || len(config.Auth.Keys) != 0 {
		t.Errorf("Example config should leave auth and archive disabled")
	}
}
