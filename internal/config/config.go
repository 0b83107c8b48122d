package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN    string
	MongoURI       string
	RedisAddr      string
	RabbitURL      string
	StripeKey      string
	CloudinaryURL  string
	Currency       string
	PublicBaseURL  string
	HTTPAddr       string
	CheckoutTTL    time.Duration
	GatewayTimeout time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	checkoutTTL, _ := time.ParseDuration(os.Getenv("CHECKOUT_TTL"))
	if checkoutTTL == 0 {
		checkoutTTL = 30 * time.Minute
	}

	gatewayTimeout, _ := time.ParseDuration(os.Getenv("GATEWAY_TIMEOUT"))
	if gatewayTimeout == 0 {
		gatewayTimeout = 10 * time.Second
	}

	currency := os.Getenv("CURRENCY")
	if currency == "" {
		currency = "usd"
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		PostgresDSN:    os.Getenv("POSTGRES_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		StripeKey:      os.Getenv("STRIPE_API_SECRET"),
		CloudinaryURL:  os.Getenv("CLOUDINARY_URL"),
		Currency:       currency,
		PublicBaseURL:  os.Getenv("PUBLIC_BASE_URL"),
		HTTPAddr:       addr,
		CheckoutTTL:    checkoutTTL,
		GatewayTimeout: gatewayTimeout,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
