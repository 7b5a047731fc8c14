package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	ProviderOpenAICompatible = "openai_compatible"
	ProviderGemini           = "gemini"
	ProviderVertexAnthropic  = "vertex_anthropic"
)

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// Config holds the application configuration
type Config struct {
	Server     ServerConfig           `yaml:"server"`
	Storage    StorageConfig          `yaml:"storage"`
	Generation GenerationConfig       `yaml:"generation"`
	GCP        GCPConfig              `yaml:"gcp"`
	Models     map[string]ModelConfig `yaml:"models"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	AppName     string `yaml:"app_name"`
	CorsOrigins string `yaml:"cors_origins"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

type StorageConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Path     string `yaml:"path"`
	LogLevel string `yaml:"log_level"`
	Migrate  bool   `yaml:"migrate"`
}

type GenerationConfig struct {
	DefaultModel   string  `yaml:"default_model"`
	HistoryLimit   int     `yaml:"history_limit"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// Timeout bounds one model call.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type GCPConfig struct {
	ProjectID         string `yaml:"project_id"`
	VertexLocation    string `yaml:"vertex_location"`
	CredentialsBase64 string `yaml:"credentials_base64"`
	Bucket            string `yaml:"bucket"`
}

// Enabled reports whether service account credentials were provided.
func (g GCPConfig) Enabled() bool {
	return g.CredentialsBase64 != ""
}

// ModelConfig maps a client-facing model choice to a provider endpoint.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"model_id"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Vision   bool   `yaml:"vision"`
}

// Validate reports the first missing setting needed to call the model.
func (m ModelConfig) Validate() error {
	switch m.Provider {
	case ProviderOpenAICompatible, ProviderGemini:
		if m.APIKey == "" {
			return fmt.Errorf("api key is not configured")
		}
	case ProviderVertexAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", m.Provider)
	}
	if m.ModelID == "" {
		return fmt.Errorf("model id is not configured")
	}
	return nil
}

type modelEnv struct {
	apiKey, baseURL, modelID string
}

// environment variables that fill the built-in model catalogue
var modelEnvs = map[string]modelEnv{
	"doubao-pro":    {apiKey: "DOUBAO_API_KEY", baseURL: "DOUBAO_BASE_URL", modelID: "DOUBAO_MODEL_ID"},
	"doubao-flash":  {apiKey: "DOUBAO_API_KEY", baseURL: "DOUBAO_BASE_URL", modelID: "DOUBAO_FLASH_MODEL_ID"},
	"doubao-dream":  {apiKey: "DOUBAO_API_KEY", baseURL: "DOUBAO_BASE_URL", modelID: "DOUBAO_DREAM_MODEL_ID"},
	"deepseek-v3":   {apiKey: "DEEPSEEK_API_KEY", baseURL: "DEEPSEEK_BASE_URL", modelID: "DEEPSEEK_MODEL_ID"},
	"gemini":        {apiKey: "GEMINI_API_KEY", modelID: "GEMINI_MODEL_ID"},
	"claude-vertex": {modelID: "CLAUDE_VERTEX_MODEL"},
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "3000",
			AppName:     "Material Studio Backend",
			CorsOrigins: "*",
			BodyLimitMB: 20,
		},
		Storage: StorageConfig{
			Driver:   DriverBolt,
			Path:     "data/studio.db",
			LogLevel: "warn",
			Migrate:  true,
		},
		Generation: GenerationConfig{
			DefaultModel:   "doubao-pro",
			HistoryLimit:   20,
			TimeoutSeconds: 60,
			Temperature:    0.7,
			MaxTokens:      2000,
		},
		Models: map[string]ModelConfig{
			"doubao-pro":    {Provider: ProviderOpenAICompatible, BaseURL: defaultArkBaseURL, Vision: true},
			"doubao-flash":  {Provider: ProviderOpenAICompatible, BaseURL: defaultArkBaseURL, Vision: true},
			"doubao-dream":  {Provider: ProviderOpenAICompatible, BaseURL: defaultArkBaseURL, Vision: true},
			"deepseek-v3":   {Provider: ProviderOpenAICompatible, BaseURL: defaultArkBaseURL},
			"gemini":        {Provider: ProviderGemini, Vision: true},
			"claude-vertex": {Provider: ProviderVertexAnthropic, Vision: true},
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path and
// the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.CorsOrigins, "CORS_ORIGINS")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.DSN, "DB_URL")
	setString(&c.Storage.Path, "DATABASE_PATH")
	setString(&c.Storage.LogLevel, "DB_LOG_LEVEL")
	setString(&c.Generation.DefaultModel, "DEFAULT_MODEL")
	setString(&c.GCP.ProjectID, "GOOGLE_CLOUD_PROJECT_ID")
	setString(&c.GCP.VertexLocation, "GOOGLE_CLOUD_VERTEXAI_LOCATION")
	setString(&c.GCP.CredentialsBase64, "GCP_SERVICE_ACCOUNT_CREDENTIALS")
	setString(&c.GCP.Bucket, "GCS_BUCKET")

	if err := setBool(&c.Storage.Migrate, "RUN_MIGRATIONS"); err != nil {
		return err
	}
	if err := setInt(&c.Generation.HistoryLimit, "HISTORY_LIMIT"); err != nil {
		return err
	}
	if err := setInt(&c.Generation.TimeoutSeconds, "MODEL_TIMEOUT_SECONDS"); err != nil {
		return err
	}

	if c.Models == nil {
		c.Models = map[string]ModelConfig{}
	}
	for name, env := range modelEnvs {
		m, ok := c.Models[name]
		if !ok {
			continue
		}
		setString(&m.APIKey, env.apiKey)
		setString(&m.BaseURL, env.baseURL)
		setString(&m.ModelID, env.modelID)
		c.Models[name] = m
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverBolt, DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("DB_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Generation.TimeoutSeconds <= 0 {
		return fmt.Errorf("generation.timeout_seconds must be positive")
	}
	if _, ok := c.Models[c.Generation.DefaultModel]; !ok {
		return fmt.Errorf("default model %q is not in the model catalogue", c.Generation.DefaultModel)
	}
	return nil
}

// Model looks up a model choice, falling back to the default one when name is empty.
func (c *Config) Model(name string) (string, ModelConfig, bool) {
	if name == "" {
		name = c.Generation.DefaultModel
	}
	m, ok := c.Models[name]
	return name, m, ok
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
