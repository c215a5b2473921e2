package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	SQLite      SQLiteConfig
	Redis       RedisConfig
	S3          S3Config
	LLM         LLMConfig
	News        NewsConfig
	Feedback    FeedbackConfig
	Training    TrainingConfig
	Improvement ImprovementConfig
	Auth        AuthConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
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
}

type S3Config struct {
	Bucket         string
	Region         string
	RecordPrefix   string
	ArtifactPrefix string
	RefreshTTLSec  int
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Region      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type NewsConfig struct {
	APIKey      string
	Country     string
	PageSize    int
	FallbackURL string
	CacheTTLSec int
	TimeoutSec  int
}

type FeedbackConfig struct {
	DefaultFrequency   int
	LowRatingThreshold int
}

type TrainingConfig struct {
	ExportDir        string
	QualityThreshold float64
	ExportLimit      int
}

type ImprovementConfig struct {
	DaysBack       int
	StageThreshold int
}

type AuthConfig struct {
	// APIKeys maps a static key to a role ("admin" or "user").
	APIKeys map[string]string
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
	viper.AddConfigPath("/etc/attendbot")

	viper.SetEnvPrefix("ATTENDBOT")
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
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("sqlite.path", "./data/attendbot.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("s3.bucket", "school-attendance-data")
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.recordPrefix", "")
	viper.SetDefault("s3.artifactPrefix", "training-data")
	viper.SetDefault("s3.refreshTTLSec", 600)

	viper.SetDefault("llm.provider", "bedrock")
	viper.SetDefault("llm.model", "anthropic.claude-3-5-haiku-20241022-v1:0")
	viper.SetDefault("llm.region", "us-east-1")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("news.country", "us")
	viper.SetDefault("news.pageSize", 5)
	viper.SetDefault("news.fallbackURL", "https://lite.cnn.com")
	viper.SetDefault("news.cacheTTLSec", 900)
	viper.SetDefault("news.timeoutSec", 10)

	viper.SetDefault("feedback.defaultFrequency", 5)
	viper.SetDefault("feedback.lowRatingThreshold", 2)

	viper.SetDefault("training.exportDir", "./exports")
	viper.SetDefault("training.qualityThreshold", 0.3)
	viper.SetDefault("training.exportLimit", 1000)

	viper.SetDefault("improvement.daysBack", 7)
	viper.SetDefault("improvement.stageThreshold", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
