package config

import (
	"os"
	"strconv"
	"time"
)

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

	// Draw engine configuration
	TicketLockDuration time.Duration // fixed from first acquisition, never refreshed
	TurnDuration       time.Duration
	SweepInterval      time.Duration
	DrawsPerExtension  int
	DrawCommitmentTTL  time.Duration
	MaxTicketsPerDraw  int

	// Shipping estimates
	ShippingBaseFee      string // points, covers the base weight
	ShippingBaseWeightKg string
	ShippingFeePerKg     string // per started kg above the base weight

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
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

		// Draw engine
		TicketLockDuration: getEnvAsDuration("TICKET_LOCK_DURATION", "60s"),
		TurnDuration:       getEnvAsDuration("TURN_DURATION", "3m"),
		SweepInterval:      getEnvAsDuration("SWEEP_INTERVAL", "1s"),
		DrawsPerExtension:  getEnvAsInt("DRAWS_PER_EXTENSION", 10),
		DrawCommitmentTTL:  getEnvAsDuration("DRAW_COMMITMENT_TTL", "10m"),
		MaxTicketsPerDraw:  getEnvAsInt("MAX_TICKETS_PER_DRAW", 10),

		// Shipping
		ShippingBaseFee:      getEnv("SHIPPING_BASE_FEE", "500"),
		ShippingBaseWeightKg: getEnv("SHIPPING_BASE_WEIGHT_KG", "5"),
		ShippingFeePerKg:     getEnv("SHIPPING_FEE_PER_KG", "80"),

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
