package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Notifier selection: "pubnub" or "telegram"
	Notifier        string
	TelegramToken   string
	TelegramAPIBase string

	// Stripe checkout configuration
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string
	Currency            string

	// Reservation configuration
	HoldTTL          time.Duration
	HoldSweepEvery   time.Duration
	MaxOrderQuantity int
	PhoneRegion      string

	// Broadcast configuration
	BroadcastWorkers  int
	BroadcastSendRate float64 // sends per second across all workers
	BroadcastBurst    int

	// Reminder configuration
	ReminderCron      string
	ReminderMarkerTTL time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "partyflow-server"),

		// Notifier
		Notifier:        getEnv("NOTIFIER", "pubnub"),
		TelegramToken:   getEnv("TELEGRAM_TOKEN", ""),
		TelegramAPIBase: getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),

		// Stripe
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://127.0.0.1:8090/payment/success"),
		StripeCancelURL:     getEnv("STRIPE_CANCEL_URL", "http://127.0.0.1:8090/payment/cancel"),
		Currency:            getEnv("CURRENCY", "ils"),

		// Reservation
		HoldTTL:          getEnvAsDuration("HOLD_TTL", "15m"),
		HoldSweepEvery:   getEnvAsDuration("HOLD_SWEEP_EVERY", "30s"),
		MaxOrderQuantity: getEnvAsInt("MAX_ORDER_QUANTITY", 5),
		PhoneRegion:      getEnv("PHONE_REGION", "IL"),

		// Broadcast
		BroadcastWorkers:  getEnvAsInt("BROADCAST_WORKERS", 8),
		BroadcastSendRate: getEnvAsFloat("BROADCAST_SEND_RATE", 25),
		BroadcastBurst:    getEnvAsInt("BROADCAST_BURST", 5),

		// Reminders
		ReminderCron:      getEnv("REMINDER_CRON", "0 10 * * *"),
		ReminderMarkerTTL: getEnvAsDuration("REMINDER_MARKER_TTL", "48h"),

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
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
