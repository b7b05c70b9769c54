package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Notify   NotifyConfig
	Geocoder GeocoderConfig
}

type ServerConfig struct {
	Addr string
}

type DBConfig struct {
	User     string
	Password string
	DBName   string
	SSLMode  string
	Host     string
	Port     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret     string
	TokenTTLHours int
}

type NotifyConfig struct {
	// RadiusKm is the fixed search radius the dispatcher uses when a
	// request is created.
	RadiusKm float64
	// MaxProviders caps how many providers one request notifies.
	MaxProviders int
	// StaggerMs is the per-provider start delay multiplier for the
	// fan-out, to respect gateway-side rate limits.
	StaggerMs int
	// GatewayURL is the notification gateway endpoint.
	GatewayURL string
	// Locator selects the provider search mechanism: sql, cache, rtree.
	Locator string
	// Policy selects the service-match policy: default, strict.
	Policy string
}

type GeocoderConfig struct {
	Enabled bool
	BaseURL string
}

var Cfg *Config

func InitConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("auth.tokenttlhours", 24)
	viper.SetDefault("notify.radiuskm", 50.0)
	viper.SetDefault("notify.maxproviders", 20)
	viper.SetDefault("notify.staggerms", 100)
	viper.SetDefault("notify.locator", "sql")
	viper.SetDefault("notify.policy", "default")
	viper.SetDefault("geocoder.enabled", true)
	viper.SetDefault("geocoder.baseurl", "https://nominatim.openstreetmap.org")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	err = viper.Unmarshal(&Cfg)
	if err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
