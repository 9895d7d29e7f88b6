package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr      string `mapstructure:"LISTEN_ADDR"`
	StaticDir       string `mapstructure:"STATIC_DIR"`
	CredentialsFile string `mapstructure:"CREDENTIALS_FILE"`
	UpstreamAddr    string `mapstructure:"UPSTREAM_ADDR"`
}

var AppConfig *Config

// LoadConfig loads the configuration from a .env file and environment variables.
func LoadConfig() {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.SetDefault("LISTEN_ADDR", ":3000")
	viper.SetDefault("STATIC_DIR", "./frontend")
	viper.SetDefault("CREDENTIALS_FILE", "./steam-credentials.json")
	viper.SetDefault("UPSTREAM_ADDR", "127.0.0.1:9160")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Warning: .env file not found, loading from environment variables")
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
