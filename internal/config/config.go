package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration values.
type Config struct {
	AppPort       string
	DatabaseURL   string
	JWTSecret     string
	TokenExpires  time.Duration
	CORSOrigin    string
	AdminEmail    string
	AdminPassword string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CatalogCacheTTL time.Duration

	AMQPURL      string
	AMQPExchange string

	TelegramBotToken  string
	TelegramAdminChat string

	OTelEndpoint string

	ShippingFlatFee       float64
	FreeShippingThreshold float64
	TaxRate               float64
	Currency              string
	RewardPointsPerUnit   float64
	MaxPageSize           int
}

// Load reads .env and the process environment and returns a populated Config.
// A missing required setting is fatal.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// FromEnv builds a Config from the process environment and defaults.
func FromEnv() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		AppPort:       v.GetString("APP_PORT"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		TokenExpires:  time.Duration(v.GetInt("JWT_TTL_HOURS")) * time.Hour,
		CORSOrigin:    v.GetString("CORS_ORIGIN"),
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),

		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisPassword:   v.GetString("REDIS_PASSWORD"),
		RedisDB:         v.GetInt("REDIS_DB"),
		CatalogCacheTTL: time.Duration(v.GetInt("CATALOG_CACHE_TTL_SECONDS")) * time.Second,

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),

		TelegramBotToken:  v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramAdminChat: v.GetString("TELEGRAM_ADMIN_CHAT_ID"),

		OTelEndpoint: v.GetString("OTEL_EXPORTER_ENDPOINT"),

		ShippingFlatFee:       v.GetFloat64("SHIPPING_FLAT_FEE"),
		FreeShippingThreshold: v.GetFloat64("FREE_SHIPPING_THRESHOLD"),
		TaxRate:               v.GetFloat64("TAX_RATE"),
		Currency:              v.GetString("CURRENCY"),
		RewardPointsPerUnit:   v.GetFloat64("REWARD_POINTS_PER_UNIT"),
		MaxPageSize:           v.GetInt("MAX_PAGE_SIZE"),
	}

	if cfg.AppPort == "" {
		return nil, errors.New("APP_PORT must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "root:root@tcp(localhost:3306)/glowbeauty?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("JWT_TTL_HOURS", 24*7)
	v.SetDefault("CORS_ORIGIN", "http://localhost:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CATALOG_CACHE_TTL_SECONDS", 300)
	v.SetDefault("AMQP_EXCHANGE", "glowbeauty.events")
	v.SetDefault("SHIPPING_FLAT_FEE", 5.99)
	v.SetDefault("FREE_SHIPPING_THRESHOLD", 50)
	v.SetDefault("TAX_RATE", 0)
	v.SetDefault("CURRENCY", "USD")
	v.SetDefault("REWARD_POINTS_PER_UNIT", 1)
	v.SetDefault("MAX_PAGE_SIZE", 100)
}
