package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server         ServerConfig
	AI             AIConfig
	Chat           ChatConfig
	Call           CallConfig
	Log            LogConfig
	CharactersFile string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	call, err := loadCallConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:         server,
		AI:             ai,
		Chat:           chat,
		Call:           call,
		Log:            logCfg,
		CharactersFile: strings.TrimSpace(os.Getenv("CHARACTERS_FILE")),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	addr, err := ParseAddr(os.Getenv("PORT"))
	if err != nil {
		return ServerConfig{}, err
	}

	shutdown, err := parseDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:            addr,
		ShutdownTimeout: shutdown,
		AllowedOrigins:  parseListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}, nil
}

// ParseAddr 将 PORT 风格的输入规范化为监听地址。
func ParseAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// GenerationParams 描述一次生成使用的采样参数。
type GenerationParams struct {
	Temperature      float64
	MaxTokens        int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	Chat      GenerationParams
	VoiceCall GenerationParams
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置与给定的采样参数创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context, params GenerationParams) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	temperature := float32(params.Temperature)
	maxTokens := params.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:          c.BaseURL,
		Region:           c.Region,
		APIKey:           c.APIKey,
		AccessKey:        c.AccessKey,
		SecretKey:        c.SecretKey,
		Model:            c.Model,
		MaxTokens:        &maxTokens,
		Temperature:      &temperature,
		TopP:             toFloat32(params.TopP),
		FrequencyPenalty: toFloat32(params.FrequencyPenalty),
		PresencePenalty:  toFloat32(params.PresencePenalty),
	}

	return ark.NewChatModel(ctx, cfg)
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	val := float32(*v)
	return &val
}

func loadAIConfig() (AIConfig, error) {
	chat, err := loadGenerationParams("ARK_CHAT", GenerationParams{
		Temperature:      0.8,
		MaxTokens:        800,
		TopP:             floatPtr(0.9),
		FrequencyPenalty: floatPtr(0.5),
		PresencePenalty:  floatPtr(0.5),
	})
	if err != nil {
		return AIConfig{}, err
	}

	voice, err := loadGenerationParams("ARK_CALL", GenerationParams{
		Temperature:      0.7,
		MaxTokens:        150,
		FrequencyPenalty: floatPtr(0.8),
	})
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("Model")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Chat:      chat,
		VoiceCall: voice,
	}, nil
}

// loadGenerationParams 读取 <prefix>_TEMPERATURE 等覆盖项。
func loadGenerationParams(prefix string, defaults GenerationParams) (GenerationParams, error) {
	params := defaults

	temperature, err := parseOptionalFloatEnv(prefix + "_TEMPERATURE")
	if err != nil {
		return GenerationParams{}, err
	}
	if temperature != nil {
		params.Temperature = *temperature
	}

	maxTokens, err := parseOptionalIntEnv(prefix + "_MAX_TOKENS")
	if err != nil {
		return GenerationParams{}, err
	}
	if maxTokens != nil {
		if *maxTokens < 1 {
			return GenerationParams{}, fmt.Errorf("invalid %s_MAX_TOKENS value %d", prefix, *maxTokens)
		}
		params.MaxTokens = *maxTokens
	}

	for key, dst := range map[string]**float64{
		prefix + "_TOP_P":             &params.TopP,
		prefix + "_FREQUENCY_PENALTY": &params.FrequencyPenalty,
		prefix + "_PRESENCE_PENALTY":  &params.PresencePenalty,
	} {
		val, err := parseOptionalFloatEnv(key)
		if err != nil {
			return GenerationParams{}, err
		}
		if val != nil {
			*dst = val
		}
	}

	return params, nil
}

// ChatConfig 描述会话相关限制。
type ChatConfig struct {
	ContextLimit     int
	MaxMessageLength int
}

func loadChatConfig() (ChatConfig, error) {
	contextLimit, err := parseIntEnv("CHAT_CONTEXT_LIMIT", 20)
	if err != nil {
		return ChatConfig{}, err
	}

	maxLength, err := parseIntEnv("CHAT_MAX_MESSAGE_LENGTH", 2000)
	if err != nil {
		return ChatConfig{}, err
	}

	return ChatConfig{ContextLimit: contextLimit, MaxMessageLength: maxLength}, nil
}

// CallConfig 描述语音通话与连接调度相关配置。
type CallConfig struct {
	GenerationTimeout    time.Duration
	FirstFragmentTimeout time.Duration
	SendBuffer           int
	WriteTimeout         time.Duration
	PingInterval         time.Duration
	ReadTimeout          time.Duration
}

func loadCallConfig() (CallConfig, error) {
	generation, err := parseDurationEnv("CALL_GENERATION_TIMEOUT", 30*time.Second)
	if err != nil {
		return CallConfig{}, err
	}

	firstFragment, err := parseDurationEnv("CALL_FIRST_FRAGMENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return CallConfig{}, err
	}

	buffer, err := parseIntEnv("WS_SEND_BUFFER", 256)
	if err != nil {
		return CallConfig{}, err
	}
	if buffer < 1 {
		buffer = 1
	}

	write, err := parseDurationEnv("WS_WRITE_TIMEOUT", 5*time.Second)
	if err != nil {
		return CallConfig{}, err
	}

	ping, err := parseDurationEnv("WS_PING_INTERVAL", 25*time.Second)
	if err != nil {
		return CallConfig{}, err
	}

	read, err := parseDurationEnv("WS_READ_TIMEOUT", 60*time.Second)
	if err != nil {
		return CallConfig{}, err
	}

	return CallConfig{
		GenerationTimeout:    generation,
		FirstFragmentTimeout: firstFragment,
		SendBuffer:           buffer,
		WriteTimeout:         write,
		PingInterval:         ping,
		ReadTimeout:          read,
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console"))
	if format != "console" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

func floatPtr(v float64) *float64 { return &v }

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

// parseDurationEnv 接受 Go duration 字符串，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
