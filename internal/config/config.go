package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile apunta a un YAML opcional que se aplica antes que el entorno.
const EnvConfigFile = "GPS_CONFIG"

type Config struct {
	// Colector
	UDPAddr       string `yaml:"udp_addr"`
	MetricsPort   string `yaml:"metrics_port"`
	SendAck       bool   `yaml:"send_ack"`
	TimeWindowSec int    `yaml:"time_window_sec"`
	PollTimeoutMs int    `yaml:"poll_timeout_ms"`
	TrackLogPath  string `yaml:"track_log_path"`
	TrackLogMaxKB int    `yaml:"track_log_max_kb"`
	LogLevel      string `yaml:"log_level"`

	// Destinos opcionales: vacío = deshabilitado
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	MongoURI      string `yaml:"mongodb_uri"`
	MongoDatabase string `yaml:"mongodb_database"`
	GRPCServer    string `yaml:"grpc_server"`
	ProxyAddr     string `yaml:"proxy_addr"`

	// Simulador
	ServerAddr   string `yaml:"server_addr"`
	DeviceID     int    `yaml:"device_id"`
	AckTimeoutMs int    `yaml:"ack_timeout_ms"`
}

func Default() Config {
	return Config{
		UDPAddr:       ":9999",
		MetricsPort:   "9000",
		SendAck:       true,
		TimeWindowSec: 300,
		PollTimeoutMs: 1000,
		TrackLogPath:  "gps_tracking.log",
		TrackLogMaxKB: 1024,
		LogLevel:      "info",
		MongoDatabase: "tracking",
		ServerAddr:    "127.0.0.1:9999",
		DeviceID:      1,
		AckTimeoutMs:  3000,
	}
}

// Load arma la configuración: defaults, luego el YAML de GPS_CONFIG (si
// existe), luego variables de entorno, y valida el resultado.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.UDPAddr = getEnv("UDP_ADDR", c.UDPAddr)
	c.MetricsPort = getEnv("METRICS_PORT", c.MetricsPort)
	c.SendAck = getEnvBool("SEND_ACK", c.SendAck)
	c.TimeWindowSec = getEnvInt("TIME_WINDOW_SEC", c.TimeWindowSec)
	c.PollTimeoutMs = getEnvInt("POLL_TIMEOUT_MS", c.PollTimeoutMs)
	c.TrackLogPath = getEnv("TRACK_LOG_PATH", c.TrackLogPath)
	c.TrackLogMaxKB = getEnvInt("TRACK_LOG_MAX_KB", c.TrackLogMaxKB)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.MongoURI = getEnv("MONGODB_URI", c.MongoURI)
	c.MongoDatabase = getEnv("MONGODB_DATABASE", c.MongoDatabase)
	c.GRPCServer = getEnv("GRPC_SERVER", c.GRPCServer)
	c.ProxyAddr = getEnv("PROXY_ADDR", c.ProxyAddr)

	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.DeviceID = getEnvInt("DEVICE_ID", c.DeviceID)
	c.AckTimeoutMs = getEnvInt("ACK_TIMEOUT_MS", c.AckTimeoutMs)
}

// Validate verifica que la configuración sea coherente.
func (c Config) Validate() error {
	if c.UDPAddr == "" {
		return fmt.Errorf("invalid UDP_ADDR: must not be empty")
	}
	if p, err := strconv.Atoi(c.MetricsPort); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid METRICS_PORT %q: must be in range 1..65535", c.MetricsPort)
	}
	if c.TimeWindowSec <= 0 {
		return fmt.Errorf("invalid TIME_WINDOW_SEC: must be > 0")
	}
	if c.PollTimeoutMs <= 0 {
		return fmt.Errorf("invalid POLL_TIMEOUT_MS: must be > 0")
	}
	if c.TrackLogMaxKB < 0 {
		return fmt.Errorf("invalid TRACK_LOG_MAX_KB: must be >= 0")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid REDIS_DB: must be >= 0")
	}
	if c.DeviceID < 0 || c.DeviceID > 65535 {
		return fmt.Errorf("invalid DEVICE_ID: must be in range 0..65535")
	}
	if c.AckTimeoutMs <= 0 {
		return fmt.Errorf("invalid ACK_TIMEOUT_MS: must be > 0")
	}
	return nil
}

func (c Config) TimeWindow() time.Duration  { return time.Duration(c.TimeWindowSec) * time.Second }
func (c Config) PollTimeout() time.Duration { return time.Duration(c.PollTimeoutMs) * time.Millisecond }
func (c Config) AckTimeout() time.Duration  { return time.Duration(c.AckTimeoutMs) * time.Millisecond }
func (c Config) TrackLogMaxBytes() int64    { return int64(c.TrackLogMaxKB) * 1024 }

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
