package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

type CardConfig struct {
	BaseURL string
	APIKey  string
}

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// RabbitMQ configuration
	RabbitMQURL         string
	OrderLifecycleQueue string

	// Payment gateways
	Mpesa MpesaConfig
	Card  CardConfig

	// Checkout configuration
	TaxRate          float64
	StaleOrderMaxAge time.Duration
	ReaperSchedule   string

	// Email configuration
	SenderName string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "tikiti-server"),

		// RabbitMQ
		RabbitMQURL:         getEnv("RABBITMQ_URL", ""),
		OrderLifecycleQueue: getEnv("QUEUE_ORDER_LIFECYCLE", "order-lifecycle"),

		// M-Pesa (Daraja)
		Mpesa: MpesaConfig{
			BaseURL:        getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:      getEnv("MPESA_SHORTCODE", "174379"),
			Passkey:        getEnv("MPESA_PASSKEY", ""),
			CallbackURL:    getEnv("MPESA_CALLBACK_URL", ""),
		},

		// Card gateway
		Card: CardConfig{
			BaseURL: getEnv("CARD_GATEWAY_URL", ""),
			APIKey:  getEnv("CARD_GATEWAY_API_KEY", ""),
		},

		// Checkout
		TaxRate:          getEnvAsFloat("TAX_RATE", 0),
		StaleOrderMaxAge: getEnvAsDuration("STALE_ORDER_MAX_AGE", "30m"),
		ReaperSchedule:   getEnv("REAPER_SCHEDULE", "*/5 * * * *"),

		// Email
		SenderName: getEnv("EMAIL_SENDER_NAME", "Tikiti"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
