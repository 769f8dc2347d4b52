package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Data      DataConfig
	Index     IndexConfig
	Zilliz    ZillizConfig
	Embedding EmbeddingConfig
	Redis     RedisConfig
	Session   SessionConfig
	LLM       LLMConfig
	Retrieval RetrievalConfig
	Calc      CalcConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	IsDevelopment  bool
}

type SQLiteConfig struct {
	Path string
}

// DataConfig points at the delimited source tables loaded at startup.
type DataConfig struct {
	CustomersCSV      string
	ProductsCSV       string
	ClosedProductsCSV string
	TransactionsCSV   string
}

// IndexConfig lists one chunk manifest (xlsx) per language code.
type IndexConfig struct {
	Manifests map[string]string
	BatchSize int
}

type ZillizConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type EmbeddingConfig struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL  string
	TaskType string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type SessionConfig struct {
	TTLMinutes int
}

type LLMConfig struct {
	Provider       string
	Model          string
	APIKey         string
	BaseURL        string
	TimeoutSec     int
	MaxAttempts    int
	InitialDelayMS int
	Temperature    float32
	MaxTokens      int
}

type RetrievalConfig struct {
	Backend         string
	TopN            int
	DefaultLanguage string
	Languages       []string
}

type CalcConfig struct {
	ReferenceDate  string
	WeekStart      string
	CurrencySymbol string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bank-assistant")

	v.SetEnvPrefix("BANK_ASSISTANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile reads an optional .env; values already in the environment win.
func loadEnvFile() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("llm.provider must be gemini or openai, got %q", c.LLM.Provider)
	}
	switch c.Retrieval.Backend {
	case "milvus", "memory":
	default:
		return fmt.Errorf("retrieval.backend must be milvus or memory, got %q", c.Retrieval.Backend)
	}
	switch c.Calc.WeekStart {
	case "sunday", "monday":
	default:
		return fmt.Errorf("calc.weekStart must be sunday or monday, got %q", c.Calc.WeekStart)
	}
	switch c.Embedding.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("embedding.provider must be openai or gemini, got %q", c.Embedding.Provider)
	}
	if c.Calc.ReferenceDate != "" {
		if _, err := time.Parse("2006-01-02", c.Calc.ReferenceDate); err != nil {
			return fmt.Errorf("calc.referenceDate must be YYYY-MM-DD: %w", err)
		}
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.maxAttempts must be at least 1")
	}
	return nil
}

// setDefaults registers every key. AutomaticEnv only resolves keys viper
// already knows, so secrets get empty defaults too.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 90)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.isDevelopment", false)
	v.SetDefault("server.allowedOrigins", []string{})

	v.SetDefault("sqlite.path", "./data/assistant.db")

	v.SetDefault("data.customersCSV", "")
	v.SetDefault("data.productsCSV", "")
	v.SetDefault("data.closedProductsCSV", "")
	v.SetDefault("data.transactionsCSV", "")

	v.SetDefault("index.batchSize", 100)

	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.apiKey", "")
	v.SetDefault("zilliz.collectionName", "bank_knowledge_base")
	v.SetDefault("zilliz.vectorDim", 1536)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.apiKey", "")
	v.SetDefault("embedding.baseURL", "")
	v.SetDefault("embedding.taskType", "RETRIEVAL_QUERY")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.ttlMinutes", 30)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.maxAttempts", 3)
	v.SetDefault("llm.initialDelayMS", 1000)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 1024)

	v.SetDefault("retrieval.backend", "milvus")
	v.SetDefault("retrieval.topN", 2)
	v.SetDefault("retrieval.defaultLanguage", "en")
	v.SetDefault("retrieval.languages", []string{"en", "fr", "nl"})

	v.SetDefault("calc.referenceDate", "")
	v.SetDefault("calc.weekStart", "sunday")
	v.SetDefault("calc.currencySymbol", "€")

	v.SetDefault("rateLimit.requestsPerMinute", 30)
	v.SetDefault("rateLimit.burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
