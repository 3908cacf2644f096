package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatclient/internal/logger"
)

// loadEnv reads .env only outside production (deployed builds configure via env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// CacheConfig configures the local state cache (room and friend snapshots).
type CacheConfig struct {
	// RedisURL empty means the in-memory cache is used.
	RedisURL   string
	TTLMinutes int
}

// Config holds the resolved client settings.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// Content API
	APIBaseURL string
	APIToken   string

	// Event channel
	SocketURL         string
	WSWriteTimeout    time.Duration
	WSPongTimeout     time.Duration
	WSMaxMessageSize  int64
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration

	// Stub server (services/stubserver)
	StubAddr           string
	CORSAllowedOrigins string

	LogLevel string
	Cache    CacheConfig
}

// yamlConfig is the file shape (timeouts as integer seconds, reconnect
// delays as milliseconds).
type yamlConfig struct {
	APIBaseURL         string `yaml:"api_base_url"`
	APIToken           string `yaml:"api_token"`
	SocketURL          string `yaml:"socket_url"`
	WSWriteTimeout     int    `yaml:"ws_write_timeout"`
	WSPongTimeout      int    `yaml:"ws_pong_timeout"`
	WSMaxMessageSize   int64  `yaml:"ws_max_message_size"`
	ReconnectMinMS     int    `yaml:"reconnect_min_ms"`
	ReconnectMaxMS     int    `yaml:"reconnect_max_ms"`
	StubAddr           string `yaml:"stub_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	LogLevel           string `yaml:"log_level"`
	Cache              struct {
		RedisURL   string `yaml:"redis_url"`
		TTLMinutes int    `yaml:"ttl_minutes"`
	} `yaml:"cache"`
}

// Load loads the configuration.
// .env is applied first (if present), then YAML, then env vars on top.
func Load() *Config {
	loadEnv()
	yc := yamlConfig{
		APIBaseURL:         "http://localhost:8080",
		SocketURL:          "ws://localhost:8080/socket",
		WSWriteTimeout:     10,
		WSPongTimeout:      60,
		WSMaxMessageSize:   1 << 20,
		ReconnectMinMS:     500,
		ReconnectMaxMS:     15000,
		StubAddr:           ":8080",
		CORSAllowedOrigins: "*",
		LogLevel:           "info",
	}
	yc.Cache.TTLMinutes = 10

	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	cacheTTL := envInt("CACHE_TTL_MINUTES", yc.Cache.TTLMinutes)
	if cacheTTL <= 0 {
		cacheTTL = 10
	}

	return &Config{
		APIBaseURL:         strings.TrimSuffix(envStr("API_BASE_URL", yc.APIBaseURL), "/"),
		APIToken:           envStr("API_TOKEN", yc.APIToken),
		SocketURL:          envStr("SOCKET_URL", yc.SocketURL),
		WSWriteTimeout:     time.Duration(envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout)) * time.Second,
		WSPongTimeout:      time.Duration(envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout)) * time.Second,
		WSMaxMessageSize:   int64(envInt("WS_MAX_MESSAGE_SIZE", int(yc.WSMaxMessageSize))),
		ReconnectMinDelay:  time.Duration(envInt("RECONNECT_MIN_MS", yc.ReconnectMinMS)) * time.Millisecond,
		ReconnectMaxDelay:  time.Duration(envInt("RECONNECT_MAX_MS", yc.ReconnectMaxMS)) * time.Millisecond,
		StubAddr:           envStr("STUB_ADDR", yc.StubAddr),
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
		Cache: CacheConfig{
			RedisURL:   envStr("CACHE_REDIS_URL", yc.Cache.RedisURL),
			TTLMinutes: cacheTTL,
		},
	}
}

// envStr returns an environment variable or the fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns a numeric environment variable or the fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
