package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// EnvConfigPath 覆盖配置文件路径的环境变量
const EnvConfigPath = "VOICESTUDIO_CONFIG"

// DefaultConfigPath 默认配置文件路径
const DefaultConfigPath = "config/config.yaml"

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Inference InferenceConfig `yaml:"inference"`
	Storage   StorageConfig   `yaml:"storage"`
	History   HistoryConfig   `yaml:"history"`
	Events    EventsConfig    `yaml:"events"`
	Player    PlayerConfig    `yaml:"player"`
	Task      TaskConfig      `yaml:"task"`
	Studio    StudioConfig    `yaml:"studio"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port          int    `yaml:"port"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	MediaDir      string `yaml:"media_dir"`
	MediaBaseURL  string `yaml:"media_base_url"`
	// 生成的音频保留多久，0 表示不清理
	MediaMaxAge    time.Duration `yaml:"media_max_age"`
	MediaSweepSpec string        `yaml:"media_sweep_spec"`
}

// LogConfig 日志配置，filename 为空时输出到 stdout
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
}

// InferenceConfig 推理服务配置
type InferenceConfig struct {
	Provider           string        `yaml:"provider"` // mock | openai
	OpenAIAPIKey       string        `yaml:"openai_api_key"`
	OpenAIBaseURL      string        `yaml:"openai_base_url"`
	TranscribeDelay    time.Duration `yaml:"transcribe_delay"`
	SynthesizeDelay    time.Duration `yaml:"synthesize_delay"`
	DiarizeDelay       time.Duration `yaml:"diarize_delay"`
	CloneDelay         time.Duration `yaml:"clone_delay"`
	LiveInterval       time.Duration `yaml:"live_interval"`
	MinCloneSampleRate int           `yaml:"min_clone_sample_rate"`
	DemoAudioURL       string        `yaml:"demo_audio_url"`
	DemoAudioDuration  time.Duration `yaml:"demo_audio_duration"` // 默认同 player.default_duration
	SynthesisCacheTTL  time.Duration `yaml:"synthesis_cache_ttl"`
}

// StorageConfig 注册表存储配置
type StorageConfig struct {
	Type     string         `yaml:"type"` // memory | redis | postgres | hybrid
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// HistoryConfig 历史记录配置
type HistoryConfig struct {
	Backend          string `yaml:"backend"` // memory | redis
	TranscriptionCap int    `yaml:"transcription_cap"`
	DiarizationCap   int    `yaml:"diarization_cap"`
	TTSCap           int    `yaml:"tts_cap"`
}

// EventsConfig 事件外发配置
type EventsConfig struct {
	Type       string         `yaml:"type"` // memory | rabbitmq
	BufferSize int            `yaml:"buffer_size"`
	RabbitMQ   RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig RabbitMQ 配置
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// PlayerConfig 播放器配置
type PlayerConfig struct {
	DefaultDuration time.Duration `yaml:"default_duration"`
	AssumedBitrate  int           `yaml:"assumed_bitrate"`
	ProbeCacheSize  int           `yaml:"probe_cache_size"`
	LoadTimeout     time.Duration `yaml:"load_timeout"`
}

// TaskConfig 任务配置
type TaskConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// StudioConfig 工作台配置
type StudioConfig struct {
	DefaultVoiceID  string `yaml:"default_voice_id"`
	DigitalHumanURL string `yaml:"digital_human_url"`
}

// Path 配置文件路径：环境变量优先
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	// 读取配置文件
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析 YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 验证配置
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// Default 全部使用默认值的配置（模拟推理 + 内存存储）
func Default() *Config {
	c := &Config{}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// Validate 验证配置并补默认值
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = 25 << 20
	}
	if c.Server.MediaDir == "" {
		c.Server.MediaDir = "media"
	}
	if c.Server.MediaBaseURL == "" {
		c.Server.MediaBaseURL = "/media/"
	}
	if c.Server.MediaSweepSpec == "" {
		c.Server.MediaSweepSpec = "@every 10m"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("未知日志格式: %s", c.Log.Format)
	}
	if c.Log.MaxSize <= 0 {
		c.Log.MaxSize = 100
	}
	if c.Log.MaxAge <= 0 {
		c.Log.MaxAge = 7
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}

	if err := c.validateInference(); err != nil {
		return err
	}

	switch c.Storage.Type {
	case "":
		c.Storage.Type = "memory"
	case "memory":
	case "redis", "postgres", "hybrid":
		if c.Storage.Type != "postgres" && c.Storage.Redis.Addr == "" {
			c.Storage.Redis.Addr = "localhost:6379"
		}
		if c.Storage.Type != "redis" && c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.type=%s 需要设置 postgres.dsn", c.Storage.Type)
		}
	default:
		return fmt.Errorf("未知存储类型: %s", c.Storage.Type)
	}

	switch c.History.Backend {
	case "":
		c.History.Backend = "memory"
	case "memory":
	case "redis":
		if c.Storage.Redis.Addr == "" {
			c.Storage.Redis.Addr = "localhost:6379"
		}
	default:
		return fmt.Errorf("未知历史记录后端: %s", c.History.Backend)
	}
	// 容量必须有上限
	if c.History.TranscriptionCap <= 0 {
		c.History.TranscriptionCap = 15
	}
	if c.History.DiarizationCap <= 0 {
		c.History.DiarizationCap = 15
	}
	if c.History.TTSCap <= 0 {
		c.History.TTSCap = 20
	}

	switch c.Events.Type {
	case "":
		c.Events.Type = "memory"
	case "memory":
	case "rabbitmq":
		if c.Events.RabbitMQ.URL == "" {
			return fmt.Errorf("events.type=rabbitmq 需要设置 rabbitmq.url")
		}
		if c.Events.RabbitMQ.Exchange == "" {
			c.Events.RabbitMQ.Exchange = "voicestudio.events"
		}
	default:
		return fmt.Errorf("未知事件类型: %s", c.Events.Type)
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 256
	}

	if c.Player.DefaultDuration <= 0 {
		c.Player.DefaultDuration = 30 * time.Second
	}
	if c.Player.AssumedBitrate <= 0 {
		c.Player.AssumedBitrate = 128000
	}
	if c.Player.ProbeCacheSize <= 0 {
		c.Player.ProbeCacheSize = 256
	}
	if c.Player.LoadTimeout <= 0 {
		c.Player.LoadTimeout = 10 * time.Second
	}
	if c.Inference.DemoAudioDuration <= 0 {
		c.Inference.DemoAudioDuration = c.Player.DefaultDuration
	}

	if c.Task.Timeout <= 0 {
		c.Task.Timeout = 2 * time.Minute
	}

	if c.Studio.DefaultVoiceID == "" {
		c.Studio.DefaultVoiceID = "preset_xiaoxiao"
	}
	if c.Studio.DigitalHumanURL == "" {
		c.Studio.DigitalHumanURL = "https://newshuziren.vercel.app/"
	}

	return nil
}

func (c *Config) validateInference() error {
	in := &c.Inference
	switch in.Provider {
	case "":
		in.Provider = "mock"
	case "mock":
	case "openai":
		if in.OpenAIAPIKey == "" || in.OpenAIAPIKey == "your-openai-api-key-here" {
			return fmt.Errorf("请在配置文件中设置有效的 OpenAI API Key")
		}
	default:
		return fmt.Errorf("未知推理服务: %s", in.Provider)
	}

	if in.TranscribeDelay <= 0 {
		in.TranscribeDelay = 1500 * time.Millisecond
	}
	if in.SynthesizeDelay <= 0 {
		in.SynthesizeDelay = 1500 * time.Millisecond
	}
	if in.DiarizeDelay <= 0 {
		in.DiarizeDelay = 2 * time.Second
	}
	if in.CloneDelay <= 0 {
		in.CloneDelay = 2500 * time.Millisecond
	}
	if in.LiveInterval <= 0 {
		in.LiveInterval = 3 * time.Second
	}
	if in.MinCloneSampleRate <= 0 {
		in.MinCloneSampleRate = 16000
	}
	if in.SynthesisCacheTTL <= 0 {
		in.SynthesisCacheTTL = 10 * time.Minute
	}
	return nil
}
