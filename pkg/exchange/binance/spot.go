// Package binance implements the price feed client for the Binance spot
// market. All users share one upstream quota, so the client owns a single
// process-wide rate limiter and a bounded retry budget; exhausting the
// budget surfaces core.ErrUpstreamUnavailable and callers skip the
// affected alert for the cycle.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/logger"
)

const (
	defaultMaxRetries = 5
	defaultRetryDelay = 2 * time.Second

	// Binance allows 1200 request weight per minute; the feed stays far
	// below that so command handlers share the same quota comfortably.
	defaultRequestsPerSecond = 5
)

// Spot is the Binance spot market price feed, implementing
// core.PriceFeeder.
type Spot struct {
	client     *binance.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	log        logger.Logger
}

// SpotOption configures a Spot client.
type SpotOption func(*Spot)

// WithCredentials sets API credentials. Public market data endpoints work
// without them.
func WithCredentials(key, secret string) SpotOption {
	return func(s *Spot) {
		s.client = binance.NewClient(key, secret)
	}
}

// WithTestNet enables the Binance testnet.
func WithTestNet() SpotOption {
	return func(_ *Spot) {
		binance.UseTestnet = true
	}
}

// WithRateLimit overrides the shared request rate.
func WithRateLimit(requestsPerSecond float64) SpotOption {
	return func(s *Spot) {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithRetryPolicy overrides the retry budget for transient failures.
func WithRetryPolicy(maxRetries int, delay time.Duration) SpotOption {
	return func(s *Spot) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// NewSpot creates a new Binance spot price feed and verifies
// connectivity.
func NewSpot(ctx context.Context, log logger.Logger, options ...SpotOption) (*Spot, error) {
	spot := &Spot{
		client:     binance.NewClient("", ""),
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		log:        log,
	}

	for _, option := range options {
		option(spot)
	}

	if err := spot.client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance ping fail: %w", err)
	}

	return spot, nil
}

// LastPrice returns the latest spot price for a symbol without a slash,
// e.g. BTCUSDT.
func (s *Spot) LastPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64

	err := s.withRetry(ctx, fmt.Sprintf("price request for %s", symbol), func() error {
		prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			return fmt.Errorf("no price returned for symbol %s", symbol)
		}

		price, err = strconv.ParseFloat(prices[0].Price, 64)
		if err != nil {
			return fmt.Errorf("failed to parse price %q: %w", prices[0].Price, err)
		}
		return nil
	})

	return price, err
}

// PercentChange24h returns the rolling 24h percent change for a symbol,
// expressed as a percentage (-3.8 for -3.8%).
func (s *Spot) PercentChange24h(ctx context.Context, symbol string) (float64, error) {
	var change float64

	err := s.withRetry(ctx, fmt.Sprintf("24hr stats request for %s", symbol), func() error {
		stats, err := s.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}

		for _, stat := range stats {
			if !strings.EqualFold(stat.Symbol, symbol) {
				continue
			}
			change, err = strconv.ParseFloat(stat.PriceChangePercent, 64)
			if err != nil {
				return fmt.Errorf("failed to parse percent change %q: %w", stat.PriceChangePercent, err)
			}
			return nil
		}
		return fmt.Errorf("could not match symbol %s in 24hr stats response", symbol)
	})

	return change, err
}

// withRetry runs fn under the shared limiter, retrying with a fixed delay
// until the budget is spent.
func (s *Spot) withRetry(ctx context.Context, label string, fn func() error) error {
	// Factor 1 keeps the delay flat between attempts.
	retry := &backoff.Backoff{
		Min:    s.retryDelay,
		Max:    s.retryDelay,
		Factor: 1,
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt < s.maxRetries {
			s.log.WithError(lastErr).Warnf("binance %s failed (attempt %d/%d), retrying", label, attempt, s.maxRetries)
			select {
			case <-time.After(retry.Duration()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%w: binance %s failed after %d attempts: %v",
		core.ErrUpstreamUnavailable, label, s.maxRetries, lastErr)
}
