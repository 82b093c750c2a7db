package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// LLM provider names accepted by LLM_PROVIDER.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	OCR      OCRConfig      `yaml:"ocr"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxUploadMB     int           `yaml:"max_upload_mb"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Language      string        `yaml:"language"`
	DPI           int           `yaml:"dpi"`
	HeicConverter string        `yaml:"heic_converter"`
	TessdataDir   string        `yaml:"tessdata_dir"`
	TempDir       string        `yaml:"temp_dir"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider             string        `yaml:"provider"`
	Model                string        `yaml:"model"`
	APIKey               string        `yaml:"api_key"`
	BaseURL              string        `yaml:"base_url"`
	Temperature          float32       `yaml:"temperature"`
	NarrativeTemperature float32       `yaml:"narrative_temperature"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	MaxInputChars        int           `yaml:"max_input_chars"`
}

// PipelineConfig controls document fan-out.
type PipelineConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	DocumentTimeout time.Duration `yaml:"document_timeout"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in defaults before any overlay is applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8000",
			GRPCAddr:        ":9090",
			CORSOrigins:     []string{"http://localhost:3000"},
			MaxUploadMB:     50,
			RateLimitRPS:    5,
			RateLimitBurst:  10,
			ShutdownTimeout: 15 * time.Second,
		},
		OCR: OCRConfig{
			Language:      "chi_sim+eng",
			DPI:           200,
			HeicConverter: "magick",
			TempDir:       os.TempDir(),
			Timeout:       2 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:             "",
			Model:                "deepseek-chat",
			BaseURL:              "https://api.deepseek.com/v1",
			Temperature:          0,
			NarrativeTemperature: 0.7,
			Timeout:              60 * time.Second,
			MaxRetries:           2,
			MaxInputChars:        24000,
		},
		Pipeline: PipelineConfig{
			Concurrency:     4,
			DocumentTimeout: 3 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file named
// by CONFIG_FILE, and environment variables (optionally seeded from .env).
// Environment variables take precedence over the YAML file.
func LoadConfig() (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayYAML(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()
	cfg.resolveProvider()
	return cfg, nil
}

func (c *Config) overlayYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NewAppError(CodeConfig, "read config file "+path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return NewAppError(CodeConfig, "parse config file "+path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	s := &c.Server
	s.HTTPAddr = getEnv("HTTP_ADDR", s.HTTPAddr)
	s.GRPCAddr = getEnv("GRPC_ADDR", s.GRPCAddr)
	s.CORSOrigins = getEnvAsList("HTTP_CORS_ORIGINS", s.CORSOrigins)
	s.MaxUploadMB = getEnvAsInt("HTTP_MAX_UPLOAD_MB", s.MaxUploadMB)
	s.RateLimitRPS = getEnvAsFloat64("HTTP_RATE_LIMIT_RPS", s.RateLimitRPS)
	s.RateLimitBurst = getEnvAsInt("HTTP_RATE_LIMIT_BURST", s.RateLimitBurst)
	s.ShutdownTimeout = getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	o := &c.OCR
	o.Language = getEnv("OCR_LANG", o.Language)
	o.DPI = getEnvAsInt("OCR_DPI", o.DPI)
	o.HeicConverter = getEnv("HEIC_CONVERTER", o.HeicConverter)
	o.TessdataDir = getEnv("TESSDATA_PREFIX", o.TessdataDir)
	o.TempDir = getEnv("OCR_TEMP_DIR", o.TempDir)
	o.Timeout = getEnvAsDuration("OCR_TIMEOUT", o.Timeout)

	l := &c.LLM
	l.Provider = strings.ToLower(getEnv("LLM_PROVIDER", l.Provider))
	l.Model = getEnv("LLM_MODEL", l.Model)
	l.APIKey = getEnv("LLM_API_KEY", l.APIKey)
	l.BaseURL = getEnv("LLM_BASE_URL", l.BaseURL)
	l.Temperature = getEnvAsFloat32("LLM_TEMPERATURE", l.Temperature)
	l.NarrativeTemperature = getEnvAsFloat32("LLM_NARRATIVE_TEMPERATURE", l.NarrativeTemperature)
	l.Timeout = getEnvAsDuration("LLM_TIMEOUT", l.Timeout)
	l.MaxRetries = getEnvAsInt("LLM_MAX_RETRIES", l.MaxRetries)
	l.MaxInputChars = getEnvAsInt("LLM_MAX_INPUT_CHARS", l.MaxInputChars)

	p := &c.Pipeline
	p.Concurrency = getEnvAsInt("PIPELINE_CONCURRENCY", p.Concurrency)
	p.DocumentTimeout = getEnvAsDuration("PIPELINE_DOCUMENT_TIMEOUT", p.DocumentTimeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// resolveProvider picks the provider from whichever vendor key is present when
// none was named explicitly, and fills the key from the vendor variable.
func (c *Config) resolveProvider() {
	l := &c.LLM
	switch l.Provider {
	case "":
		switch {
		case l.APIKey != "" || os.Getenv("DEEPSEEK_API_KEY") != "" || os.Getenv("OPENAI_API_KEY") != "":
			l.Provider = ProviderOpenAI
		case os.Getenv("GEMINI_API_KEY") != "":
			l.Provider = ProviderGemini
		default:
			l.Provider = ProviderNone
		}
	}
	if l.Provider == ProviderGemini && l.Model == "deepseek-chat" {
		l.Model = "gemini-2.5-flash"
	}
	if l.APIKey != "" {
		return
	}
	switch l.Provider {
	case ProviderOpenAI:
		l.APIKey = getEnv("DEEPSEEK_API_KEY", os.Getenv("OPENAI_API_KEY"))
	case ProviderGemini:
		l.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required).
		Field("GRPC_ADDR", c.Server.GRPCAddr, Required).
		Field("PIPELINE_CONCURRENCY", c.Pipeline.Concurrency, Positive).
		Field("PIPELINE_DOCUMENT_TIMEOUT", c.Pipeline.DocumentTimeout, Positive).
		Field("HTTP_MAX_UPLOAD_MB", c.Server.MaxUploadMB, Positive).
		Field("OCR_DPI", c.OCR.DPI, Positive).
		Field("LLM_MAX_RETRIES", c.LLM.MaxRetries, NonNegative).
		Field("LLM_PROVIDER", c.LLM.Provider, OneOf(ProviderNone, ProviderOpenAI, ProviderGemini))
	if c.LLM.Provider != ProviderNone {
		v.Field("LLM_API_KEY", c.LLM.APIKey, Required)
		v.Field("LLM_MODEL", c.LLM.Model, Required)
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// String renders the configuration with the API key masked.
func (c *Config) String() string {
	masked := *c
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = "***"
	}
	return fmt.Sprintf("%+v", masked)
}
