package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort        string
	DatabaseURL     string
	LogLevel        string
	ShutdownTimeout time.Duration

	JWTSecret    string
	JWTExpiresIn time.Duration

	RedisURL         string
	PassportCacheTTL time.Duration

	PageSize    int
	MaxPageSize int

	Admin AdminSeed
}

// AdminSeed describes the administrator created on first start.
type AdminSeed struct {
	FullName string
	Email    string
	Phone    string
	Password string
}

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("JWT_EXPIRES_IN", 24*time.Hour)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("PASSPORT_CACHE_TTL", 10*time.Minute)
	v.SetDefault("PAGE_SIZE", 10)
	v.SetDefault("MAX_PAGE_SIZE", 100)
	v.SetDefault("ADMIN_FULL_NAME", "Administrator")
	v.SetDefault("ADMIN_EMAIL", "admin@warranty.local")
	v.SetDefault("ADMIN_PHONE", "0000000000")
	v.SetDefault("ADMIN_PASSWORD", "admin")
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) Config {
	_ = godotenv.Load(envFiles...)
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	return Config{
		HTTPPort:         v.GetString("HTTP_PORT"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		ShutdownTimeout:  v.GetDuration("SHUTDOWN_TIMEOUT"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTExpiresIn:     v.GetDuration("JWT_EXPIRES_IN"),
		RedisURL:         v.GetString("REDIS_URL"),
		PassportCacheTTL: v.GetDuration("PASSPORT_CACHE_TTL"),
		PageSize:         v.GetInt("PAGE_SIZE"),
		MaxPageSize:      v.GetInt("MAX_PAGE_SIZE"),
		Admin: AdminSeed{
			FullName: v.GetString("ADMIN_FULL_NAME"),
			Email:    v.GetString("ADMIN_EMAIL"),
			Phone:    v.GetString("ADMIN_PHONE"),
			Password: v.GetString("ADMIN_PASSWORD"),
		},
	}
}
