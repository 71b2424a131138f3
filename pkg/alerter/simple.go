package alerter

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/exchange"
	"github.com/raykavin/alertnrun/pkg/logger"
)

// cexHeader prefixes every simple alert post sent to Telegram.
const cexHeader = "🔔 <b>CEX ALERT:</b> 🔔\n"

// Simple evaluates spot price and percent change alerts against the
// exchange price feed.
type Simple struct {
	feed core.PriceFeeder
	log  logger.Logger
}

// NewSimple creates the simple alert evaluator.
func NewSimple(feed core.PriceFeeder, log logger.Logger) *Simple {
	return &Simple{feed: feed, log: log}
}

// NewSimpleProcess wires the simple evaluator into a sweep driver paced
// at the given period.
func NewSimpleProcess(
	storage core.AlertStorage,
	feed core.PriceFeeder,
	notifier core.Notifier,
	mail core.MailSender,
	period time.Duration,
	log logger.Logger,
) *Process {
	return NewProcess("cex", cexHeader, storage, NewSimple(feed, log), notifier, mail, period, log)
}

// Wants reports whether the alert belongs to the simple family.
func (s *Simple) Wants(alert *core.Alert) bool {
	return alert.Type == core.AlertTypeSimple
}

// Evaluate checks a simple alert's predicate against the current spot
// price. ABOVE and BELOW are strict: a price exactly at the target keeps
// the alert pending. PCTCHG is symmetric around the entry price and
// fires in either direction.
func (s *Simple) Evaluate(ctx context.Context, pair string, alert *core.Alert) (Satisfaction, error) {
	symbol := exchange.Symbol(pair)

	price, err := s.feed.LastPrice(ctx, symbol)
	if err != nil {
		return Satisfaction{}, err
	}

	switch alert.Comparison {
	case core.ComparePctChg:
		entry := alert.Entry
		if price > entry*(1+alert.Target) {
			pct := (price - entry) / entry * 100
			return Satisfaction{
				Met:   true,
				Value: pct,
				Post:  fmt.Sprintf("%s UP %.1f%% FROM %s AT %s", pair, pct, fnum(entry), fnum(price)),
			}, nil
		}
		if price < entry*(1-alert.Target) {
			pct := (entry - price) / entry * 100
			return Satisfaction{
				Met:   true,
				Value: pct,
				Post:  fmt.Sprintf("%s DOWN %.1f%% FROM %s AT %s", pair, pct, fnum(entry), fnum(price)),
			}, nil
		}
		return Satisfaction{Value: price}, nil

	case core.Compare24HrChg:
		change, err := s.feed.PercentChange24h(ctx, symbol)
		if err != nil {
			return Satisfaction{}, err
		}
		if math.Abs(change) >= alert.Target {
			return Satisfaction{
				Met:   true,
				Value: change,
				Post:  fmt.Sprintf("%s 24HR CHANGE %.1f%% AT %s", pair, change, fnum(price)),
			}, nil
		}
		return Satisfaction{Value: change}, nil

	case core.CompareAbove:
		if price > alert.Target {
			return Satisfaction{
				Met:   true,
				Value: price,
				Post:  fmt.Sprintf("%s ABOVE %s TARGET AT %s", pair, fnum(alert.Target), fnum(price)),
			}, nil
		}
		return Satisfaction{Value: price}, nil

	case core.CompareBelow:
		if price < alert.Target {
			return Satisfaction{
				Met:   true,
				Value: price,
				Post:  fmt.Sprintf("%s BELOW %s TARGET AT %s", pair, fnum(alert.Target), fnum(price)),
			}, nil
		}
		return Satisfaction{Value: price}, nil

	default:
		return Satisfaction{}, fmt.Errorf("%w: %s on %s", core.ErrInvalidComparison, alert.Comparison, pair)
	}
}

// fnum renders a float without trailing zeros, the way targets and
// prices are echoed back to users.
func fnum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
