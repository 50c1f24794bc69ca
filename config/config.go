package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 可选角色（与客户端角色选择界面一致）
var Characters = []string{"blacky", "pinky", "alterEgo", "greenThumb"}

// Config 进程级配置：默认值 → YAML 文件 → .env / 环境变量 → 命令行
type Config struct {
	InstanceID string       `yaml:"instance_id"`
	Server     ServerConfig `yaml:"server"`
	Match      MatchConfig  `yaml:"match"`
	Log        LogConfig    `yaml:"log"`
	NATS       NATSConfig   `yaml:"nats"`
}

// ServerConfig HTTP 与 WebSocket 连接参数
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	SendBuffer      int           `yaml:"send_buffer"`
}

// MatchConfig 对局规则常量，可通过 /admin/config 热更新（下一次重置生效）
type MatchConfig struct {
	MatchSeconds        int    `yaml:"match_seconds" json:"matchSeconds"`
	CountdownSeconds    int    `yaml:"countdown_seconds" json:"countdownSeconds"`
	ResetDelaySeconds   int    `yaml:"reset_delay_seconds" json:"resetDelaySeconds"`
	FinishScore         int64  `yaml:"finish_score" json:"finishScore"`
	BroadcastIntervalMs int    `yaml:"broadcast_interval_ms" json:"broadcastIntervalMs"`
	DefaultCharacter    string `yaml:"default_character" json:"defaultCharacter"`
	DefaultName         string `yaml:"default_name" json:"defaultName"`
}

// LogConfig 日志文件与级别
type LogConfig struct {
	File    string `yaml:"file"`
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// NATSConfig 对局生命周期事件推送（URL 为空则关闭）
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Default 返回全部默认值
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			AllowedOrigins:  []string{"*"},
			WriteTimeout:    5 * time.Second,
			ReadTimeout:     60 * time.Second,
			PingInterval:    25 * time.Second,
			MaxMessageBytes: 1 << 20, // 1MB
			SendBuffer:      64,
		},
		Match: DefaultMatch(),
		Log: LogConfig{
			File:  "app.log",
			Level: "debug",
		},
		NATS: NATSConfig{
			Subject: "arena.match",
		},
	}
}

// DefaultMatch 对局默认规则
func DefaultMatch() MatchConfig {
	return MatchConfig{
		MatchSeconds:        120,
		CountdownSeconds:    20,
		ResetDelaySeconds:   10,
		FinishScore:         10000,
		BroadcastIntervalMs: 50,
		DefaultCharacter:    "blacky",
		DefaultName:         "Unknown",
	}
}

// Load 按优先级合并配置。path 为空时跳过 YAML 文件。
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// .env 不存在属于正常情况
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.InstanceID = getEnv("ARENA_INSTANCE_ID", cfg.InstanceID)

	// 兼容托管平台注入的 PORT
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Server.Addr = getEnv("ARENA_ADDR", cfg.Server.Addr)
	if origins := os.Getenv("ARENA_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	cfg.Server.WriteTimeout = getEnvAsDuration("ARENA_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ReadTimeout = getEnvAsDuration("ARENA_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.PingInterval = getEnvAsDuration("ARENA_PING_INTERVAL", cfg.Server.PingInterval)
	cfg.Server.MaxMessageBytes = int64(getEnvAsInt("ARENA_MAX_MESSAGE_BYTES", int(cfg.Server.MaxMessageBytes)))
	cfg.Server.SendBuffer = getEnvAsInt("ARENA_SEND_BUFFER", cfg.Server.SendBuffer)

	cfg.Match.MatchSeconds = getEnvAsInt("ARENA_MATCH_SECONDS", cfg.Match.MatchSeconds)
	cfg.Match.CountdownSeconds = getEnvAsInt("ARENA_COUNTDOWN_SECONDS", cfg.Match.CountdownSeconds)
	cfg.Match.ResetDelaySeconds = getEnvAsInt("ARENA_RESET_DELAY_SECONDS", cfg.Match.ResetDelaySeconds)
	cfg.Match.FinishScore = int64(getEnvAsInt("ARENA_FINISH_SCORE", int(cfg.Match.FinishScore)))
	cfg.Match.BroadcastIntervalMs = getEnvAsInt("ARENA_BROADCAST_INTERVAL_MS", cfg.Match.BroadcastIntervalMs)
	cfg.Match.DefaultCharacter = getEnv("ARENA_DEFAULT_CHARACTER", cfg.Match.DefaultCharacter)
	cfg.Match.DefaultName = getEnv("ARENA_DEFAULT_NAME", cfg.Match.DefaultName)

	cfg.Log.File = getEnv("ARENA_LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("ARENA_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Console = getEnvAsBool("ARENA_LOG_CONSOLE", cfg.Log.Console)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Subject = getEnv("ARENA_NATS_SUBJECT", cfg.NATS.Subject)
}

// Validate 检查进程级配置
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is empty")
	}
	if c.Server.WriteTimeout <= 0 || c.Server.ReadTimeout <= 0 || c.Server.PingInterval <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Server.PingInterval >= c.Server.ReadTimeout {
		return fmt.Errorf("server.ping_interval (%s) must be shorter than read_timeout (%s)",
			c.Server.PingInterval, c.Server.ReadTimeout)
	}
	if c.Server.SendBuffer <= 0 {
		return errors.New("server.send_buffer must be positive")
	}
	if err := c.Match.Validate(); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	return nil
}

// Validate 检查对局规则（热更新时同样调用）
func (m MatchConfig) Validate() error {
	if m.MatchSeconds <= 0 {
		return fmt.Errorf("match_seconds must be positive, got %d", m.MatchSeconds)
	}
	if m.CountdownSeconds <= 0 {
		return fmt.Errorf("countdown_seconds must be positive, got %d", m.CountdownSeconds)
	}
	if m.ResetDelaySeconds < 0 {
		return fmt.Errorf("reset_delay_seconds must not be negative, got %d", m.ResetDelaySeconds)
	}
	if m.FinishScore <= 0 {
		return fmt.Errorf("finish_score must be positive, got %d", m.FinishScore)
	}
	if m.BroadcastIntervalMs <= 0 {
		return fmt.Errorf("broadcast_interval_ms must be positive, got %d", m.BroadcastIntervalMs)
	}
	if !IsCharacter(m.DefaultCharacter) {
		return fmt.Errorf("unknown default_character %q", m.DefaultCharacter)
	}
	return nil
}

// IsCharacter 判断是否为合法角色
func IsCharacter(s string) bool {
	for _, c := range Characters {
		if c == s {
			return true
		}
	}
	return false
}

func (m MatchConfig) ResetDelay() time.Duration {
	return time.Duration(m.ResetDelaySeconds) * time.Second
}

func (m MatchConfig) BroadcastInterval() time.Duration {
	return time.Duration(m.BroadcastIntervalMs) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
