// Package config handles application configuration management using Viper
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/raykavin/alertnrun/pkg/core"
)

// Constants for configuration
const (
	DefaultStoragePath = "./alertnrun.db"
	DefaultExchange    = "binance"
)

// AppConfig holds the application configuration
type AppConfig struct {
	Settings    *core.Settings
	Taapi       TaapiConfig
	SMTP        SMTPConfig
	StoragePath string
	LogLevel    string
	AdminID     int64
}

// TaapiConfig holds the taapi.io indicator API configuration. An empty
// key disables the technical alert side of the bot.
type TaapiConfig struct {
	APIKey string
}

// SMTPConfig holds the optional email delivery configuration. An empty
// server address disables email alerts.
type SMTPConfig struct {
	ServerAddress string
	ServerPort    int
	From          string
	Password      string
}

// EmailEnabled reports whether the SMTP side is configured.
func (c SMTPConfig) EmailEnabled() bool {
	return c.ServerAddress != "" && c.From != ""
}

// LoadAppConfig loads application configuration using Viper
func LoadAppConfig() (*AppConfig, error) {
	// Set up Viper for environment variables
	viper.AutomaticEnv()

	defaults := core.DefaultSettings()

	// Set default values
	viper.SetDefault("STORAGE_PATH", DefaultStoragePath)
	viper.SetDefault("EXCHANGE", DefaultExchange)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("SIMPLE_POLLING_PERIOD", defaults.SimplePollingPeriod)
	viper.SetDefault("TECHNICAL_POLLING_PERIOD", defaults.TechnicalPollingPeriod)
	viper.SetDefault("INDICATOR_PERIOD", defaults.IndicatorPeriod)
	viper.SetDefault("INDICATOR_BUFFER", defaults.IndicatorBuffer)
	viper.SetDefault("MAX_ALERTS_PER_USER", defaults.MaxAlertsPerUser)
	viper.SetDefault("OUTPUT_PRECISION", defaults.OutputPrecision)
	viper.SetDefault("SMTP_SERVER_PORT", 587)

	token := viper.GetString("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	// Create the configuration
	config := &AppConfig{
		Settings: &core.Settings{
			Exchange:               viper.GetString("EXCHANGE"),
			SimplePollingPeriod:    viper.GetDuration("SIMPLE_POLLING_PERIOD"),
			TechnicalPollingPeriod: viper.GetDuration("TECHNICAL_POLLING_PERIOD"),
			IndicatorPeriod:        viper.GetDuration("INDICATOR_PERIOD"),
			IndicatorBuffer:        viper.GetFloat64("INDICATOR_BUFFER"),
			MaxAlertsPerUser:       viper.GetInt("MAX_ALERTS_PER_USER"),
			OutputPrecision:        viper.GetInt("OUTPUT_PRECISION"),
			Telegram: core.TelegramSettings{
				Enabled: true,
				Token:   token,
			},
		},
		Taapi: TaapiConfig{
			APIKey: viper.GetString("TAAPI_APIKEY"),
		},
		SMTP: SMTPConfig{
			ServerAddress: viper.GetString("SMTP_SERVER_ADDRESS"),
			ServerPort:    viper.GetInt("SMTP_SERVER_PORT"),
			From:          viper.GetString("SMTP_FROM"),
			Password:      viper.GetString("SMTP_PASSWORD"),
		},
		StoragePath: viper.GetString("STORAGE_PATH"),
		LogLevel:    viper.GetString("LOG_LEVEL"),
		AdminID:     viper.GetInt64("TELEGRAM_ADMIN_ID"),
	}

	return config, nil
}
