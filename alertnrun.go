// Package alertnrun wires the alert bot together: storage, price feed,
// indicator poller, the two alert sweep processes and the notification
// services.
package alertnrun

import (
	"context"
	"fmt"
	"sync"

	"github.com/raykavin/alertnrun/pkg/aggregate"
	"github.com/raykavin/alertnrun/pkg/alerter"
	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/exchange/binance"
	"github.com/raykavin/alertnrun/pkg/indicator"
	"github.com/raykavin/alertnrun/pkg/logger"
	"github.com/raykavin/alertnrun/pkg/notification"
	"github.com/raykavin/alertnrun/pkg/storage"
	"github.com/raykavin/alertnrun/pkg/taapi"
)

// DefaultLog is the default logger instance
var DefaultLog logger.Logger

const defaultDatabase = "alertnrun.db"

// Bot is the assembled alert bot.
type Bot struct {
	settings   *core.Settings
	storage    core.Storage
	feed       core.PriceFeeder
	indicators aggregate.IndicatorFeed
	notifier   core.Notifier
	mail       core.MailSender
	catalog    *indicator.Catalog
	log        logger.Logger

	poller    *aggregate.Poller
	simple    *alerter.Process
	technical *alerter.Process
}

// NewBot creates a new bot instance with the provided settings and
// dependencies. Without a WithIndicatorFeed option (or a taapi key) the
// technical side stays off and only price alerts run.
func NewBot(ctx context.Context, settings *core.Settings, options ...Option) (*Bot, error) {
	bot := &Bot{
		settings: settings,
		catalog:  indicator.Default(),
		log:      DefaultLog,
	}

	// Apply custom options
	for _, option := range options {
		option(bot)
	}

	// Initialize storage
	if err := initializeStorage(bot); err != nil {
		return nil, err
	}

	// Initialize the exchange price feed
	if err := initializeFeed(ctx, bot); err != nil {
		return nil, err
	}

	// Initialize notification systems
	if err := initializeNotifications(bot, settings); err != nil {
		return nil, err
	}

	bot.simple = alerter.NewSimpleProcess(
		bot.storage, bot.feed, bot.notifier, bot.mail,
		settings.SimplePollingPeriod, bot.log)

	if bot.indicators != nil {
		builder := aggregate.NewBuilder(bot.storage, bot.catalog, bot.log)
		bot.poller = aggregate.NewPoller(builder, bot.indicators, bot.storage, bot.notifier, bot.log)
		bot.technical = alerter.NewTechnicalProcess(
			bot.storage, bot.catalog, bot.notifier, bot.mail,
			settings.TechnicalPollingPeriod, settings.OutputPrecision, bot.log)
	}

	return bot, nil
}

// initializeStorage sets up the bot's data storage
func initializeStorage(bot *Bot) error {
	var err error
	if bot.storage == nil {
		bot.storage, err = storage.FromFile(defaultDatabase)
		if err != nil {
			return err
		}
	}
	return nil
}

// initializeFeed sets up the exchange price feed
func initializeFeed(ctx context.Context, bot *Bot) error {
	var err error
	if bot.feed == nil {
		bot.feed, err = binance.NewSpot(ctx, bot.log)
		if err != nil {
			return err
		}
	}
	return nil
}

// initializeNotifications sets up notification systems like Telegram
func initializeNotifications(bot *Bot, settings *core.Settings) error {
	if bot.notifier != nil {
		return nil
	}

	if !settings.Telegram.Enabled {
		return fmt.Errorf("no notifier configured: enable telegram or provide WithNotifier")
	}

	telegram, err := notification.NewTelegram(settings.Telegram.Token, bot.storage)
	if err != nil {
		return err
	}
	bot.notifier = telegram
	return nil
}

// NewIndicatorFeed builds the taapi.io client for the configured
// exchange and polling cadence, for use with WithIndicatorFeed.
func NewIndicatorFeed(settings *core.Settings, apiKey string, log logger.Logger) (aggregate.IndicatorFeed, error) {
	return taapi.NewClient(apiKey, settings.Exchange,
		settings.IndicatorPeriod, settings.IndicatorBuffer, log)
}

// Storage returns the configured alert store, for registration tooling.
func (b *Bot) Storage() core.Storage {
	return b.storage
}

// Run starts the indicator poller and the alert processes and blocks
// until the context is cancelled and every loop has drained. A sweep in
// flight finishes its current user before its process exits.
func (b *Bot) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.simple.Run(ctx)
	}()

	if b.technical != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.poller.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			b.technical.Run(ctx)
		}()
	} else {
		b.log.Warn("no indicator feed configured, technical alerts are disabled")
	}

	wg.Wait()

	return b.storage.Close()
}
