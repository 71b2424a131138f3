package core

import (
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// AlertType distinguishes the two alert families handled by the bot.
type AlertType string

const (
	AlertTypeSimple    AlertType = "s" // spot price / percent change alerts
	AlertTypeTechnical AlertType = "t" // technical indicator alerts
)

// Comparison is the operator an alert applies to its target value.
type Comparison string

const (
	CompareAbove     Comparison = "ABOVE"
	CompareBelow     Comparison = "BELOW"
	ComparePctChg    Comparison = "PCTCHG"
	Compare24HrChg   Comparison = "24HRCHG"
)

// SimpleComparisons lists the operators valid for simple alerts, in the
// order they are presented to users.
var SimpleComparisons = []Comparison{CompareAbove, CompareBelow, ComparePctChg, Compare24HrChg}

// minCooldown is the floor applied to user supplied trigger cooldowns.
const minCooldown = 5 * time.Second

// Trigger carries the optional re-arm policy of an alert. When
// CooldownSeconds is nil the alert is single-shot: it fires once and is
// removed on the next evaluation pass. When set, the alert re-arms after
// the cooldown elapses and is never removed by the evaluator.
type Trigger struct {
	CooldownSeconds *int64 `json:"cooldown_seconds"`
	LastTriggered   int64  `json:"last_triggered"`
}

// Enabled reports whether the trigger re-arm policy is active.
func (t *Trigger) Enabled() bool {
	return t != nil && t.CooldownSeconds != nil
}

// Suppressed reports whether a satisfied alert must not fire yet because
// the cooldown since the last trigger has not elapsed.
func (t *Trigger) Suppressed(now int64) bool {
	if !t.Enabled() || t.LastTriggered == 0 {
		return false
	}
	return now-t.LastTriggered < *t.CooldownSeconds
}

// ParseTriggerCooldown parses a user supplied cooldown string such as
// "30s", "5m" or "1h30m" into a Trigger. An empty string yields a
// single-shot trigger. Cooldowns shorter than 5 seconds are raised to the
// floor so a hot alert cannot spam its channels.
func ParseTriggerCooldown(cooldown string) (*Trigger, error) {
	if cooldown == "" {
		return &Trigger{}, nil
	}

	d, err := str2duration.ParseDuration(cooldown)
	if err != nil {
		return nil, fmt.Errorf("%q is an invalid cooldown format (use s/m/h, e.g. \"1h\"): %w", cooldown, err)
	}

	if d < minCooldown {
		d = minCooldown
	}

	seconds := int64(d / time.Second)
	return &Trigger{CooldownSeconds: &seconds}, nil
}

// Alert is one registered rule owned by a user. The envelope fields are
// shared by both families; Entry belongs to simple PCTCHG alerts and the
// Interval/Params/OutputValue group belongs to technical alerts.
type Alert struct {
	Type       AlertType  `json:"type"`
	Indicator  string     `json:"indicator"`
	Comparison Comparison `json:"comparison"`
	Target     float64    `json:"target"`
	Alerted    bool       `json:"alerted"`
	Trigger    *Trigger   `json:"trigger,omitempty"`

	// Simple alerts: reference price captured at creation, PCTCHG only.
	Entry float64 `json:"entry,omitempty"`

	// Technical alerts.
	Interval    string            `json:"interval,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	OutputValue string            `json:"output_value,omitempty"`
}

// PairAlerts holds the ordered alert list registered for one pair.
type PairAlerts struct {
	Pair   string  `json:"pair"`
	Alerts []Alert `json:"alerts"`
}

// AlertsByPair is a user's full alert book. Pair keys and alert lists keep
// insertion order across load/save round trips: the 1-based positions are
// the indices users reference in cancel commands.
type AlertsByPair []PairAlerts

// Get returns the alert list for a pair.
func (a AlertsByPair) Get(pair string) ([]Alert, bool) {
	for i := range a {
		if a[i].Pair == pair {
			return a[i].Alerts, true
		}
	}
	return nil, false
}

// Set replaces the alert list of a pair, appending the pair when absent
// and dropping the pair key when the list becomes empty.
func (a AlertsByPair) Set(pair string, alerts []Alert) AlertsByPair {
	for i := range a {
		if a[i].Pair != pair {
			continue
		}
		if len(alerts) == 0 {
			return append(a[:i], a[i+1:]...)
		}
		a[i].Alerts = alerts
		return a
	}
	if len(alerts) == 0 {
		return a
	}
	return append(a, PairAlerts{Pair: pair, Alerts: alerts})
}

// Append adds an alert at the end of a pair's list.
func (a AlertsByPair) Append(pair string, alert Alert) AlertsByPair {
	for i := range a {
		if a[i].Pair == pair {
			a[i].Alerts = append(a[i].Alerts, alert)
			return a
		}
	}
	return append(a, PairAlerts{Pair: pair, Alerts: []Alert{alert}})
}

// CheckCapacity returns ErrMaxAlertsReached when the book already holds
// max alerts. A max of 0 disables the cap. Called before registering a
// new alert.
func (a AlertsByPair) CheckCapacity(max int) error {
	if max > 0 && a.Count() >= max {
		return fmt.Errorf("%w: limit is %d", ErrMaxAlertsReached, max)
	}
	return nil
}

// Pairs returns the pair keys in insertion order.
func (a AlertsByPair) Pairs() []string {
	pairs := make([]string, len(a))
	for i := range a {
		pairs[i] = a[i].Pair
	}
	return pairs
}

// Count returns the total number of alerts across all pairs.
func (a AlertsByPair) Count() int {
	n := 0
	for i := range a {
		n += len(a[i].Alerts)
	}
	return n
}
