package alertnrun

import (
	"github.com/raykavin/alertnrun/pkg/aggregate"
	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/indicator"
	"github.com/raykavin/alertnrun/pkg/logger"
)

// Option is a functional option for configuring a Bot instance
type Option func(*Bot)

// WithStorage sets the alert store, by default a local file called
// alertnrun.db
func WithStorage(storage core.Storage) Option {
	return func(bot *Bot) {
		bot.storage = storage
	}
}

// WithPriceFeeder sets the exchange price feed, by default the Binance
// spot market
func WithPriceFeeder(feed core.PriceFeeder) Option {
	return func(bot *Bot) {
		bot.feed = feed
	}
}

// WithIndicatorFeed sets the technical indicator API client and enables
// the technical alert side of the bot
func WithIndicatorFeed(feed aggregate.IndicatorFeed) Option {
	return func(bot *Bot) {
		bot.indicators = feed
	}
}

// WithNotifier overrides the Telegram notifier built from settings
func WithNotifier(notifier core.Notifier) Option {
	return func(bot *Bot) {
		bot.notifier = notifier
	}
}

// WithMailSender enables email delivery of triggered alerts for users
// who opted in
func WithMailSender(mail core.MailSender) Option {
	return func(bot *Bot) {
		bot.mail = mail
	}
}

// WithCatalog overrides the embedded indicator catalog
func WithCatalog(catalog *indicator.Catalog) Option {
	return func(bot *Bot) {
		bot.catalog = catalog
	}
}

// WithLogger overrides the default logger instance
func WithLogger(log logger.Logger) Option {
	return func(bot *Bot) {
		bot.log = log
	}
}

// WithLogLevel sets the log level. eg: logger.DebugLevel, logger.InfoLevel
func WithLogLevel(level logger.Level) Option {
	return func(bot *Bot) {
		bot.log.SetLevel(level)
	}
}
