package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	NotifyBackend         string
	NotifyRedisKey        string
	KafkaBrokers          []string
	KafkaNotifyTopic      string
	AuthSecret            string
	AccessTokenTTLMinutes int
	StrictStock           bool
	MaterialPolicy        string
	LogLevel              string
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory underneath it.
func Load() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NOTIFY_BACKEND", "log")
	v.SetDefault("NOTIFY_REDIS_KEY", "kedaipos:notifications")
	v.SetDefault("KAFKA_NOTIFY_TOPIC", "order-notifications")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("STRICT_STOCK", false)
	v.SetDefault("MATERIAL_POLICY", "tolerate")
	v.SetDefault("LOG_LEVEL", "info")

	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}
	return Config{
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		NotifyBackend:         strings.ToLower(strings.TrimSpace(v.GetString("NOTIFY_BACKEND"))),
		NotifyRedisKey:        v.GetString("NOTIFY_REDIS_KEY"),
		KafkaBrokers:          splitList(v.GetString("KAFKA_BROKERS")),
		KafkaNotifyTopic:      v.GetString("KAFKA_NOTIFY_TOPIC"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		StrictStock:           v.GetBool("STRICT_STOCK"),
		MaterialPolicy:        strings.ToLower(strings.TrimSpace(v.GetString("MATERIAL_POLICY"))),
		LogLevel:              v.GetString("LOG_LEVEL"),
	}
}

// Validate rejects settings that would otherwise be silently reinterpreted.
func (c Config) Validate() error {
	switch c.MaterialPolicy {
	case "tolerate", "enforce":
	default:
		return fmt.Errorf("MATERIAL_POLICY must be tolerate or enforce, got %q", c.MaterialPolicy)
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
