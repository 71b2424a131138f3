package core

import "context"

// AlertStorage is the per-user persistence contract shared by the local
// buntdb backend and the SQL backend. Implementations are selected at
// construction; callers never depend on the concrete store.
type AlertStorage interface {
	// Whitelist returns every registered user id, the active user set.
	Whitelist() ([]int64, error)
	// WhitelistUser registers a user with a default configuration. It is
	// a no-op when the user already exists.
	WhitelistUser(userID int64, isAdmin bool) error
	// BlacklistUser removes a user and all of their data.
	BlacklistUser(userID int64) error

	LoadAlerts(userID int64) (AlertsByPair, error)
	SaveAlerts(userID int64, alerts AlertsByPair) error
	LoadConfig(userID int64) (*UserConfig, error)
	SaveConfig(userID int64, config *UserConfig) error

	// Admins returns the user ids flagged as administrators.
	Admins() ([]int64, error)

	// LockUser serializes read-modify-write sequences on one user's
	// record. The returned function releases the lock.
	LockUser(userID int64) (unlock func())

	Close() error
}

// AggregateStorage persists the shared technical indicator aggregate as a
// single document. SaveAggregate must replace the previous snapshot
// atomically so readers never observe a half-written structure.
type AggregateStorage interface {
	LoadAggregate() (Aggregate, error)
	SaveAggregate(Aggregate) error
}

// Storage combines both persistence contracts; the buntdb backend
// implements it in one database file.
type Storage interface {
	AlertStorage
	AggregateStorage
}

// PriceFeeder exposes live exchange market data for simple alerts.
// Implementations own their retry budget and rate limiter; a terminal
// failure surfaces as ErrUpstreamUnavailable and means "skip this alert
// this cycle", never "stop the sweep".
type PriceFeeder interface {
	// LastPrice returns the latest spot price for a symbol without a
	// slash, e.g. BTCUSDT.
	LastPrice(ctx context.Context, symbol string) (float64, error)
	// PercentChange24h returns the rolling 24h percent change for a
	// symbol, expressed as a percentage (-3.8 for -3.8%).
	PercentChange24h(ctx context.Context, symbol string) (float64, error)
}

// Notifier delivers finished alert posts to Telegram chats.
type Notifier interface {
	// AlertChannels sends text to every channel id and returns the ids
	// that succeeded and the ids that failed. One channel's failure must
	// not block delivery to the others.
	AlertChannels(text string, channels []int64) (delivered, failed []int64)
	// AlertAdmins sends a message to every administrator, best effort.
	AlertAdmins(text string)
}

// MailSender renders an alert post into the email template and sends it
// to the given recipients. Failures are returned for logging and are
// never fatal to an alert cycle.
type MailSender interface {
	SendAlert(post string, recipients []string) error
}
