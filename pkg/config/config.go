package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Milvus  MilvusConfig
	SQLite  SQLiteConfig
	Redis   RedisConfig
	LLM     LLMConfig
	Review  ReviewConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type MilvusConfig struct {
	Endpoint   string
	APIKey     string
	VectorDim  int
	IndexNlist int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type LLMConfig struct {
	APIKey             string
	Model              string
	Temperature        float32
	MaxTokens          int
	EmbeddingModel     string
	EmbeddingDim       int
	EmbeddingBatchSize int
	EmbeddingRPS       float64
}

type ReviewConfig struct {
	CatalogPath       string
	DocumentRoot      string
	ChunkSize         int
	ChunkOverlap      int
	TopK              int
	DocumentWorkers   int
	ClauseWorkers     int
	ClassifySampleLen int
	POSampleLen       int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/contract-review")

	viper.SetEnvPrefix("CONTRACT_REVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 600)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.vectorDim", 1536)
	viper.SetDefault("milvus.indexNlist", 1024)

	viper.SetDefault("sqlite.path", "./data/review.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 168)

	viper.SetDefault("llm.model", "gpt-4o-2024-08-06")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.embeddingBatchSize", 100)
	viper.SetDefault("llm.embeddingRPS", 1.0)

	viper.SetDefault("review.catalogPath", "./config/notable_clauses.json")
	viper.SetDefault("review.documentRoot", "")
	viper.SetDefault("review.chunkSize", 1000)
	viper.SetDefault("review.chunkOverlap", 100)
	viper.SetDefault("review.topK", 10)
	viper.SetDefault("review.documentWorkers", 4)
	viper.SetDefault("review.clauseWorkers", 8)
	viper.SetDefault("review.classifySampleLen", 2000)
	viper.SetDefault("review.poSampleLen", 4000)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
