package core

import "time"

// Settings represents the main configuration for the application.
type Settings struct {
	// Exchange is the exchange identifier forwarded to the indicator API.
	Exchange string
	// SimplePollingPeriod paces the CEX price alert sweep.
	SimplePollingPeriod time.Duration
	// TechnicalPollingPeriod paces the technical alert sweep.
	TechnicalPollingPeriod time.Duration
	// IndicatorPeriod is the nominal delay between indicator API calls.
	IndicatorPeriod time.Duration
	// IndicatorBuffer is the safety fraction added to IndicatorPeriod so
	// clock skew never trips the upstream quota (0.05 = +5%).
	IndicatorBuffer float64
	// MaxAlertsPerUser caps active alerts per user; 0 disables the cap.
	MaxAlertsPerUser int
	// OutputPrecision is the decimal precision of indicator values in posts.
	OutputPrecision int

	Telegram TelegramSettings
}

// TelegramSettings holds configuration for Telegram integration.
type TelegramSettings struct {
	Enabled bool
	Token   string
}

// DefaultSettings mirrors the polling cadence the bot ships with.
func DefaultSettings() *Settings {
	return &Settings{
		Exchange:               "binance",
		SimplePollingPeriod:    10 * time.Second,
		TechnicalPollingPeriod: 10 * time.Second,
		IndicatorPeriod:        20 * time.Second,
		IndicatorBuffer:        0.05,
		MaxAlertsPerUser:       10,
		OutputPrecision:        3,
	}
}
