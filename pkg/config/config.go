package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	SQL      SQLConfig      `mapstructure:"sql"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Search   SearchConfig   `mapstructure:"search"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	Workers     int    `mapstructure:"workers"`
	MaxErrorLen int    `mapstructure:"max_error_len"`
}

type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SQLConfig struct {
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	RowLimit    int     `mapstructure:"row_limit"`
}

type RendererConfig struct {
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	Candidates  int     `mapstructure:"candidates"`
}

type SearchConfig struct {
	PageSize      int      `mapstructure:"page_size"`
	Cities        []string `mapstructure:"cities"`
	PropertyTypes []string `mapstructure:"property_types"`
	RoomOptions   []string `mapstructure:"room_options"`
}

type CacheConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func parseDatabaseURL(dbURL string, base DatabaseConfig) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return DatabaseConfig{}, fmt.Errorf("invalid port %q", u.Port())
		}
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	base.Host = u.Hostname()
	base.Port = port
	base.User = u.User.Username()
	base.Password = password
	// Remove leading slash from path to get database name
	base.DBName = strings.TrimPrefix(u.Path, "/")
	base.SSLMode = sslMode
	return base, nil
}

// LoadConfig reads path if it exists, then applies environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set default values
	v.SetDefault("telegram.workers", 4)
	v.SetDefault("telegram.max_error_len", 300)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "testdb")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.query_timeout", 10*time.Second)
	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.timeout", 60*time.Second)
	v.SetDefault("sql.max_tokens", 150)
	v.SetDefault("sql.temperature", 0.2)
	v.SetDefault("sql.row_limit", 3)
	v.SetDefault("renderer.max_tokens", 180)
	v.SetDefault("renderer.temperature", 0.9)
	v.SetDefault("renderer.candidates", 3)
	v.SetDefault("search.page_size", 5)
	v.SetDefault("search.cities", []string{"Москва", "Сочи", "Санкт-Петербург"})
	v.SetDefault("search.property_types", []string{"Квартира", "Дом", "Студия"})
	v.SetDefault("search.room_options", []string{"1 комната", "2 комнаты", "3 комнаты", "4+ комнаты"})
	v.SetDefault("cache.capacity", 10000)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")

	// Enable environment variable support
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Check for DATABASE_URL environment variable
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL, config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.OpenAI.BaseURL = baseURL
	}

	if config.Telegram.Token == "" {
		return nil, errors.New("telegram token is required (telegram.token or TELEGRAM_TOKEN)")
	}

	return &config, nil
}
