// Package notification provides implementations for the alert delivery
// services: Telegram channels and email.
package notification

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/raykavin/alertnrun/pkg/core"
)

// Telegram delivers alert posts to Telegram chats, implementing
// core.Notifier. Posts use HTML parse mode so headers can carry bold
// markup.
type Telegram struct {
	client  *tb.Bot
	storage core.AlertStorage
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(t *Telegram)

// WithClient overrides the underlying bot client, used by tests.
func WithClient(client *tb.Bot) TelegramOption {
	return func(t *Telegram) {
		t.client = client
	}
}

// NewTelegram creates a Telegram notifier. The storage is consulted for
// the current admin set on every AlertAdmins call so newly promoted
// admins receive error reports without a restart.
func NewTelegram(token string, storage core.AlertStorage, options ...TelegramOption) (*Telegram, error) {
	telegram := &Telegram{storage: storage}

	for _, option := range options {
		option(telegram)
	}

	if telegram.client == nil {
		client, err := tb.NewBot(tb.Settings{
			Token:     token,
			ParseMode: tb.ModeHTML,
			Poller:    &tb.LongPoller{Timeout: 10 * time.Second},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		telegram.client = client
	}

	return telegram, nil
}

// AlertChannels sends text to every channel and reports which deliveries
// succeeded and which failed. A failed channel never blocks its
// siblings.
func (t *Telegram) AlertChannels(text string, channels []int64) (delivered, failed []int64) {
	for _, channel := range channels {
		if _, err := t.client.Send(tb.ChatID(channel), text); err != nil {
			log.WithError(err).Errorf("notification/telegram: failed to send alert to channel %d", channel)
			failed = append(failed, channel)
			continue
		}
		delivered = append(delivered, channel)
	}
	return delivered, failed
}

// AlertAdmins sends text to the private chat of every admin user.
func (t *Telegram) AlertAdmins(text string) {
	admins, err := t.storage.Admins()
	if err != nil {
		log.WithError(err).Error("notification/telegram: failed to load admins for error report")
		return
	}

	for _, admin := range admins {
		if _, err := t.client.Send(tb.ChatID(admin), text); err != nil {
			log.WithError(err).Errorf("notification/telegram: failed to alert admin %d", admin)
		}
	}
}
