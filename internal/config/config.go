package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"storefront-checkout/internal/money"
)

// Config holds runtime configuration parsed from an optional .env file and
// environment variables.
type Config struct {
	Environment     string
	HTTPAddr        string
	DBConnString    string
	RedisAddr       string
	ShutdownTimeout time.Duration
	LogLevel        string
	AllowedOrigins  []string

	BackendURL     string
	BackendTimeout time.Duration

	BaseCurrency          string
	TaxRate               float64
	DeliveryFee           float64
	FreeDeliveryThreshold float64

	MidtransServerKey  string
	MidtransProduction bool
	PaymentWindow      time.Duration

	SnapshotTTL time.Duration
}

// FromEnv builds Config with defaults, overridden by .env and environment
// variables. A missing .env is fine; a malformed one is an error.
func FromEnv() (Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.SetConfigName(".env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Environment:     stringOrDefault(v, "ENVIRONMENT", "development"),
		HTTPAddr:        stringOrDefault(v, "HTTP_ADDR", ":8080"),
		DBConnString:    stringOrDefault(v, "DB_DSN", ""),
		RedisAddr:       stringOrDefault(v, "REDIS_ADDR", ""),
		ShutdownTimeout: seconds(v, "SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
		LogLevel:        stringOrDefault(v, "LOG_LEVEL", "info"),
		AllowedOrigins:  list(v, "CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		BackendURL:     strings.TrimSuffix(stringOrDefault(v, "BACKEND_URL", "http://localhost:5000/api"), "/"),
		BackendTimeout: seconds(v, "BACKEND_TIMEOUT_SECONDS", 10*time.Second),

		BaseCurrency:          strings.ToUpper(stringOrDefault(v, "BASE_CURRENCY", money.Base)),
		TaxRate:               float(v, "TAX_RATE", 0),
		DeliveryFee:           float(v, "DELIVERY_FEE", 0),
		FreeDeliveryThreshold: float(v, "FREE_DELIVERY_THRESHOLD", 0),

		MidtransServerKey:  stringOrDefault(v, "MIDTRANS_SERVER_KEY", ""),
		MidtransProduction: boolean(v, "MIDTRANS_PRODUCTION", false),
		PaymentWindow:      seconds(v, "PAYMENT_WINDOW_SECONDS", 15*time.Minute),

		SnapshotTTL: hours(v, "SNAPSHOT_TTL_HOURS", 30*24*time.Hour),
	}
	// Stored amounts and the rate table are denominated in money.Base.
	if cfg.BaseCurrency != money.Base {
		return Config{}, fmt.Errorf("BASE_CURRENCY %q is not supported, amounts are stored in %s", cfg.BaseCurrency, money.Base)
	}
	return cfg, nil
}

func stringOrDefault(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}

func seconds(v *viper.Viper, key string, def time.Duration) time.Duration {
	if n, err := strconv.Atoi(v.GetString(key)); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func hours(v *viper.Viper, key string, def time.Duration) time.Duration {
	if n, err := strconv.Atoi(v.GetString(key)); err == nil && n > 0 {
		return time.Duration(n) * time.Hour
	}
	return def
}

func float(v *viper.Viper, key string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64); err == nil && f >= 0 {
		return f
	}
	return def
}

func boolean(v *viper.Viper, key string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key))); err == nil {
		return b
	}
	return def
}

func list(v *viper.Viper, key string, def []string) []string {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
