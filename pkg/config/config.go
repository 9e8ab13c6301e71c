package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Data       DataConfig
	Classifier ClassifierConfig
	Training   TrainingConfig
	Pipeline   PipelineConfig
	Scraper    ScraperConfig
	Logging    LoggingConfig
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

type DataConfig struct {
	GoldLabelsPath string
	QueueCSVPath   string
	QueueJSONPath  string
	ModelDir       string
	LockPath       string
}

type ClassifierConfig struct {
	ConfidenceStrategy    string
	ReviewThreshold       float64
	DisagreeMinConfidence float64
	DisagreeMinMargin     float64
	AutoSeedMinConfidence float64
	AutoSeedMaxPerClass   int
}

type TrainingConfig struct {
	MinGoldLabels    int
	MinClassExamples int
	HoldoutFraction  float64
	MinImprovement   float64
	AutoSeedWeight   float64
	RandomSeed       int64
}

type PipelineConfig struct {
	Schedule string
	Workers  int
}

type ScraperConfig struct {
	BaseURL        string
	MaxPages       int
	TimeoutSeconds int
	FetchDetails   bool
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
	viper.AddConfigPath("/etc/wildlife-grad")

	viper.SetEnvPrefix("WILDLIFE_GRAD")
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
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/wildlife_grad.db")

	viper.SetDefault("data.goldLabelsPath", "./data/processed/discipline_labels_gold.json")
	viper.SetDefault("data.queueCSVPath", "./data/processed/discipline_confidence_queue.csv")
	viper.SetDefault("data.queueJSONPath", "./data/processed/discipline_confidence_queue.json")
	viper.SetDefault("data.modelDir", "./data/models/discipline")
	viper.SetDefault("data.lockPath", "./data/pipeline.lock")

	viper.SetDefault("classifier.confidenceStrategy", "margin")
	viper.SetDefault("classifier.reviewThreshold", 0.6)
	viper.SetDefault("classifier.disagreeMinConfidence", 0.7)
	viper.SetDefault("classifier.disagreeMinMargin", 0.1)
	viper.SetDefault("classifier.autoSeedMinConfidence", 0.85)
	viper.SetDefault("classifier.autoSeedMaxPerClass", 3)

	viper.SetDefault("training.minGoldLabels", 5)
	viper.SetDefault("training.minClassExamples", 2)
	viper.SetDefault("training.holdoutFraction", 0.2)
	viper.SetDefault("training.minImprovement", 0.005)
	viper.SetDefault("training.autoSeedWeight", 0.35)
	viper.SetDefault("training.randomSeed", 42)

	viper.SetDefault("pipeline.schedule", "0 6 * * *")
	viper.SetDefault("pipeline.workers", 4)

	viper.SetDefault("scraper.baseURL", "https://jobs.rwfm.tamu.edu/search/")
	viper.SetDefault("scraper.maxPages", 10)
	viper.SetDefault("scraper.timeoutSeconds", 10)
	viper.SetDefault("scraper.fetchDetails", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
