package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Search        SearchConfig
	Zilliz        ZillizConfig
	Elasticsearch ElasticsearchConfig
	Redis         RedisConfig
	LLM           LLMConfig
	Logging       LoggingConfig
	Tracing       TracingConfig
	Indexer       IndexerConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	BodyLimit          int
	Debug              bool
	RateLimitPerMinute int
	MaxQueryLength     int
	AllowedOrigins     []string
}

// StoreConfig points at the ledger table the assistant answers questions about.
type StoreConfig struct {
	Driver       string
	DSN          string
	Schema       string
	Table        string
	AmountColumn string
}

type SearchConfig struct {
	Backend        string
	TopK           int
	PrefixDataType bool
	TimeoutSec     int
}

type ZillizConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type TracingConfig struct {
	Enabled     bool
	Exporter    string
	ServiceName string
}

type IndexerConfig struct {
	PageSize  int
	BatchSize int
}

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ledgerlens")

	v.SetEnvPrefix("LEDGERLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.Table == "" {
		return fmt.Errorf("store.table is required")
	}
	if c.Store.AmountColumn == "" {
		return fmt.Errorf("store.amountColumn is required")
	}
	switch c.Search.Backend {
	case "milvus", "elasticsearch", "none":
	default:
		return fmt.Errorf("unsupported search backend %q", c.Search.Backend)
	}
	return nil
}

func loadEnvFile() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.rateLimitPerMinute", 60)
	v.SetDefault("server.maxQueryLength", 2000)

	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.dsn", "./data/ledger.db")
	v.SetDefault("store.schema", "")
	v.SetDefault("store.table", "LEDGER_ENTRIES")
	v.SetDefault("store.amountColumn", "AMOUNT")

	v.SetDefault("search.backend", "milvus")
	v.SetDefault("search.topK", 5)
	v.SetDefault("search.prefixDataType", true)
	v.SetDefault("search.timeoutSec", 10)

	v.SetDefault("zilliz.endpoint", "localhost:19530")
	v.SetDefault("zilliz.collectionName", "ledger_entries")
	v.SetDefault("zilliz.apiKey", "")
	v.SetDefault("zilliz.vectorDim", 1536)

	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.index", "ledger_entries")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.maxTokens", 512)
	v.SetDefault("llm.timeoutSec", 30)
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.serviceName", "ledgerlens")

	v.SetDefault("indexer.pageSize", 500)
	v.SetDefault("indexer.batchSize", 100)
}
