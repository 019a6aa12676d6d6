package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Kafka        KafkaConfig        `json:"kafka"`
	Logger       LoggerConfig       `json:"logger"`
	RateLimit    RateLimitConfig    `json:"rate_limit"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Discount     DiscountConfig     `json:"discount"`
	Notification NotificationConfig `json:"notification"`
	Metrics      MetricsConfig      `json:"metrics"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	Migrate  bool   `json:"migrate"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Enabled сообщает, настроены ли брокеры. Пустой KAFKA_BROKERS отключает Kafka.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Topics представляет список топиков Kafka
type Topics struct {
	CartActivity   string `json:"cart_activity"`
	DiscountEvents string `json:"discount_events"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// RateLimitConfig описывает настройки rate limiting
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	Requests      int    `json:"requests"`
	AdminRequests int    `json:"admin_requests"`
	WindowSeconds int    `json:"window_seconds"`
	KeyPrefix     string `json:"key_prefix"`
}

// SchedulerConfig описывает ежедневный запуск рассылки.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone"`
}

// DiscountConfig хранит параметры выпуска кодов.
type DiscountConfig struct {
	ManualExpiryDays int `json:"manual_expiry_days"`
	MaxCodeAttempts  int `json:"max_code_attempts"`
}

// NotificationConfig описывает провайдера email-рассылки.
type NotificationConfig struct {
	Provider       string  `json:"provider"` // log | sendgrid
	SendGridAPIKey string  `json:"sendgrid_api_key"`
	SendGridURL    string  `json:"sendgrid_url"`
	FromAddress    string  `json:"from_address"`
	FromName       string  `json:"from_name"`
	StoreName      string  `json:"store_name"`
	StoreURL       string  `json:"store_url"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries"`
	RatePerSecond  float64 `json:"rate_per_second"`
}

// MetricsConfig описывает экспорт метрик Prometheus.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Load загружает конфигурацию из переменных окружения (и файла .env, если он есть)
func Load() *Config {
	// .env не обязателен: уже выставленные переменные окружения имеют приоритет
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "shop_user"),
			Password: getEnv("DB_PASSWORD", "shop_pass"),
			DBName:   getEnv("DB_NAME", "shop"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			Migrate:  getEnvAsBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getEnv("KAFKA_GROUP_ID", "cart-discounts"),
			Topics: Topics{
				CartActivity:   getEnv("KAFKA_TOPIC_CART_ACTIVITY", "cart-activity"),
				DiscountEvents: getEnv("KAFKA_TOPIC_DISCOUNT_EVENTS", "discount-events"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			AdminRequests: getEnvAsInt("RATE_LIMIT_ADMIN_REQUESTS", 10),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit"),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvAsBool("SCHEDULER_ENABLED", true),
			Timezone: getEnv("SCHEDULER_TIMEZONE", "Europe/Madrid"),
		},
		Discount: DiscountConfig{
			ManualExpiryDays: getEnvAsInt("DISCOUNT_MANUAL_EXPIRY_DAYS", 30),
			MaxCodeAttempts:  getEnvAsInt("DISCOUNT_MAX_CODE_ATTEMPTS", 10),
		},
		Notification: NotificationConfig{
			Provider:       getEnv("NOTIFY_PROVIDER", "log"),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			SendGridURL:    getEnv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			FromAddress:    getEnv("NOTIFY_FROM_ADDRESS", ""),
			FromName:       getEnv("NOTIFY_FROM_NAME", "Cesta Trend"),
			StoreName:      getEnv("NOTIFY_STORE_NAME", "Cesta Trend"),
			StoreURL:       getEnv("NOTIFY_STORE_URL", ""),
			TimeoutSeconds: getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 10),
			MaxRetries:     getEnvAsInt("NOTIFY_MAX_RETRIES", 0),
			RatePerSecond:  getEnvAsFloat("NOTIFY_RATE_PER_SECOND", 5),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat получает значение переменной окружения как float64 с значением по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList разбирает список через запятую, пустые элементы отбрасываются
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvAsBool получает значение переменной окружения как bool с значением по умолчанию
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "true" || valueStr == "1" || valueStr == "yes" {
		return true
	}
	if valueStr == "false" || valueStr == "0" || valueStr == "no" {
		return false
	}
	return defaultValue
}
