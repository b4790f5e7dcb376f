package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/zhouzirui/atlas-chat/backend/internal/llm/openai"
)

// Provider names accepted by ai.provider.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Session driver names accepted by session.driver.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Session SessionConfig
	Redis   RedisConfig
}

// ConfigurationError reports a missing or invalid setting. It is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider         string
	APIKey           string
	AccessKey        string
	SecretKey        string
	Model            string
	BaseURL          string
	Region           string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	Temperature      *float64
	TopP             *float64
	MaxTokens        *int
	Timeout          time.Duration
	HistoryMaxTurns  int
	HistoryMaxTokens int
}

// SessionConfig controls the session store driver and its eviction policy.
type SessionConfig struct {
	Driver        string
	TTL           time.Duration
	MaxSessions   int
	SweepInterval time.Duration
}

// RedisConfig is used when session.driver is redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

var envBindings = map[string]string{
	"server.addr":            "PORT",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
	"ai.provider":            "LLM_PROVIDER",
	"ai.api_key":             "ARK_API_KEY",
	"ai.access_key":          "ARK_ACCESS_KEY",
	"ai.secret_key":          "ARK_SECRET_KEY",
	"ai.model":               "ARK_MODEL",
	"ai.base_url":            "ARK_BASE_URL",
	"ai.region":              "ARK_REGION",
	"ai.openai_api_key":      "OPENAI_API_KEY",
	"ai.openai_base_url":     "OPENAI_BASE_URL",
	"ai.openai_model":        "OPENAI_MODEL",
	"ai.temperature":         "ARK_TEMPERATURE",
	"ai.top_p":               "ARK_TOP_P",
	"ai.max_tokens":          "ARK_MAX_TOKENS",
	"ai.timeout":             "AI_TIMEOUT",
	"ai.history_max_turns":   "HISTORY_MAX_TURNS",
	"ai.history_max_tokens":  "HISTORY_MAX_TOKENS",
	"session.driver":         "SESSION_DRIVER",
	"session.ttl":            "SESSION_TTL",
	"session.max_sessions":   "SESSION_MAX",
	"session.sweep_interval": "SESSION_SWEEP_INTERVAL",
	"redis.addr":             "REDIS_ADDR",
	"redis.password":         "REDIS_PASSWORD",
	"redis.db":               "REDIS_DB",
}

// Load reads configuration from an optional config file and the environment.
// An empty path searches for config.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", env)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("ai.provider", ProviderArk)
	v.SetDefault("ai.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ai.region", "cn-beijing")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.history_max_turns", 20)
	v.SetDefault("ai.history_max_tokens", 4000)
	v.SetDefault("session.driver", DriverMemory)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}

func fromViper(v *viper.Viper) (*Config, error) {
	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	sess, err := loadSessionConfig(v)
	if err != nil {
		return nil, err
	}

	redisDB, err := intValue(v, "redis.db")
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Log: LogConfig{
			Level:  strings.ToLower(stringValue(v, "log.level")),
			Format: strings.ToLower(stringValue(v, "log.format")),
		},
		AI:      ai,
		Session: sess,
		Redis: RedisConfig{
			Addr:     stringValue(v, "redis.addr"),
			Password: stringValue(v, "redis.password"),
			DB:       redisDB,
		},
	}, nil
}

func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := stringValue(v, "server.addr")
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are used verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, &ConfigurationError{Key: "PORT", Reason: fmt.Sprintf("invalid value %q", port)}
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	temperature, err := optionalFloat(v, "ai.temperature")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := optionalFloat(v, "ai.top_p")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := optionalInt(v, "ai.max_tokens")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := durationValue(v, "ai.timeout")
	if err != nil {
		return AIConfig{}, err
	}

	maxTurns, err := intValue(v, "ai.history_max_turns")
	if err != nil {
		return AIConfig{}, err
	}

	maxHistoryTokens, err := intValue(v, "ai.history_max_tokens")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:         strings.ToLower(stringValue(v, "ai.provider")),
		APIKey:           stringValue(v, "ai.api_key"),
		AccessKey:        stringValue(v, "ai.access_key"),
		SecretKey:        stringValue(v, "ai.secret_key"),
		Model:            stringValue(v, "ai.model"),
		BaseURL:          stringValue(v, "ai.base_url"),
		Region:           stringValue(v, "ai.region"),
		OpenAIAPIKey:     stringValue(v, "ai.openai_api_key"),
		OpenAIBaseURL:    stringValue(v, "ai.openai_base_url"),
		OpenAIModel:      stringValue(v, "ai.openai_model"),
		Temperature:      temperature,
		TopP:             topP,
		MaxTokens:        maxTokens,
		Timeout:          timeout,
		HistoryMaxTurns:  maxTurns,
		HistoryMaxTokens: maxHistoryTokens,
	}, nil
}

func loadSessionConfig(v *viper.Viper) (SessionConfig, error) {
	ttl, err := durationValue(v, "session.ttl")
	if err != nil {
		return SessionConfig{}, err
	}

	sweep, err := durationValue(v, "session.sweep_interval")
	if err != nil {
		return SessionConfig{}, err
	}

	maxSessions, err := intValue(v, "session.max_sessions")
	if err != nil {
		return SessionConfig{}, err
	}

	driver := strings.ToLower(stringValue(v, "session.driver"))
	if driver != DriverMemory && driver != DriverRedis {
		return SessionConfig{}, &ConfigurationError{Key: "SESSION_DRIVER", Reason: fmt.Sprintf("unknown driver %q", driver)}
	}

	return SessionConfig{
		Driver:        driver,
		TTL:           ttl,
		MaxSessions:   maxSessions,
		SweepInterval: sweep,
	}, nil
}

// Validate checks that the selected credential profile is complete.
func (c AIConfig) Validate() error {
	switch c.Provider {
	case ProviderArk:
		if c.Model == "" {
			return &ConfigurationError{Key: "ARK_MODEL", Reason: "model endpoint is required"}
		}
		if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
			return &ConfigurationError{Key: "ARK_API_KEY", Reason: "provide ARK_API_KEY or ARK_ACCESS_KEY + ARK_SECRET_KEY"}
		}
	case ProviderOpenAI:
		if c.OpenAIModel == "" {
			return &ConfigurationError{Key: "OPENAI_MODEL", Reason: "model is required"}
		}
		if c.OpenAIAPIKey == "" {
			return &ConfigurationError{Key: "OPENAI_API_KEY", Reason: "api key is required"}
		}
	default:
		return &ConfigurationError{Key: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	return nil
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	if c.Provider == ProviderOpenAI {
		return openai.NewChatModel(ctx, openai.Config{
			APIKey:      c.OpenAIAPIKey,
			BaseURL:     c.OpenAIBaseURL,
			Model:       c.OpenAIModel,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   maxTokens,
		})
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

func stringValue(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func envName(key string) string {
	if env, ok := envBindings[key]; ok {
		return env
	}
	return key
}

func intValue(v *viper.Viper, key string) (int, error) {
	raw := stringValue(v, key)
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigurationError{Key: envName(key), Reason: fmt.Sprintf("invalid integer %q", raw)}
	}
	return val, nil
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	raw := stringValue(v, key)
	if raw == "" {
		return 0, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &ConfigurationError{Key: envName(key), Reason: fmt.Sprintf("invalid duration %q", raw)}
	}
	return val, nil
}

func optionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := stringValue(v, key)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ConfigurationError{Key: envName(key), Reason: fmt.Sprintf("invalid number %q", raw)}
	}
	return &val, nil
}

func optionalInt(v *viper.Viper, key string) (*int, error) {
	raw := stringValue(v, key)
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ConfigurationError{Key: envName(key), Reason: fmt.Sprintf("invalid integer %q", raw)}
	}
	return &val, nil
}
