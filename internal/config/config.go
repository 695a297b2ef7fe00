package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	JWTPublicKey string
	OTLPEndpoint string

	// TraceSampleRatio is the share of root traces kept, 0..1.
	TraceSampleRatio float64

	ExpirySweepInterval time.Duration
	OutboxPollInterval  time.Duration

	// booker client settings
	APIBaseURL                  string
	APIToken                    string
	ReleaseTimeout              time.Duration
	AvailabilityRefreshInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      getenv("MONGO_DB", "hotel"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		JWTPublicKey: os.Getenv("JWT_PUBLIC_KEY"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		TraceSampleRatio: ratio("OTEL_TRACES_SAMPLER_ARG", 1),

		ExpirySweepInterval: duration("EXPIRY_SWEEP_INTERVAL", 30*time.Second),
		OutboxPollInterval:  duration("OUTBOX_POLL_INTERVAL", 5*time.Second),

		APIBaseURL:                  getenv("API_BASE_URL", "http://localhost:8080"),
		APIToken:                    os.Getenv("API_TOKEN"),
		ReleaseTimeout:              duration("RELEASE_TIMEOUT", 5*time.Second),
		AvailabilityRefreshInterval: duration("AVAILABILITY_REFRESH_INTERVAL", 30*time.Second),
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return def
	}
	return d
}

func ratio(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}
