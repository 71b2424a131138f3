package core

import "github.com/samber/lo"

// UserSettings are the per-user preferences that influence alert polling.
type UserSettings struct {
	SendEmailAlerts bool `json:"send_email_alerts"`
}

// UserConfig is the configuration document owned by one whitelisted
// Telegram user. Channels lists every chat id that receives the user's
// alerts; the user's own id is added when they are whitelisted.
type UserConfig struct {
	Settings UserSettings `json:"settings"`
	Channels []int64      `json:"channels"`
	Emails   []string     `json:"emails"`
	IsAdmin  bool         `json:"is_admin"`
}

// DefaultUserConfig returns the configuration a freshly whitelisted user
// starts with: their own chat as the single channel, no emails, email
// alerts disabled.
func DefaultUserConfig(userID int64, isAdmin bool) *UserConfig {
	return &UserConfig{
		Channels: []int64{userID},
		Emails:   []string{},
		IsAdmin:  isAdmin,
	}
}

// AddChannel registers a chat id to receive the user's alerts. It
// reports whether the channel was new.
func (c *UserConfig) AddChannel(id int64) bool {
	if lo.Contains(c.Channels, id) {
		return false
	}
	c.Channels = append(c.Channels, id)
	return true
}

// RemoveChannel unregisters a chat id. It reports whether the channel
// was present.
func (c *UserConfig) RemoveChannel(id int64) bool {
	filtered := lo.Filter(c.Channels, func(channel int64, _ int) bool {
		return channel != id
	})
	removed := len(filtered) != len(c.Channels)
	c.Channels = filtered
	return removed
}

// AddEmail registers an alert email recipient. It reports whether the
// address was new.
func (c *UserConfig) AddEmail(address string) bool {
	if lo.Contains(c.Emails, address) {
		return false
	}
	c.Emails = append(c.Emails, address)
	return true
}

// RemoveEmail unregisters an alert email recipient. It reports whether
// the address was present.
func (c *UserConfig) RemoveEmail(address string) bool {
	filtered := lo.Filter(c.Emails, func(email string, _ int) bool {
		return email != address
	})
	removed := len(filtered) != len(c.Emails)
	c.Emails = filtered
	return removed
}
