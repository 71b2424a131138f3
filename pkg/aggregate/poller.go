package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/logger"
)

const (
	// emptyIdleDelay keeps the loop from spinning when no technical
	// alerts are registered anywhere.
	emptyIdleDelay = 100 * time.Millisecond
	// errorBackoff is the pause after a failed poll cycle.
	errorBackoff = 15 * time.Second
)

// IndicatorFeed is the bulk indicator API surface the poller consumes.
// The production implementation is taapi.Client.
type IndicatorFeed interface {
	Bulk(ctx context.Context, symbol, interval string, queries []*core.Query) ([]map[string]float64, error)
}

// Poller runs the continuous rebuild-then-fetch cycle that keeps the
// aggregate's indicator values fresh.
type Poller struct {
	builder  *Builder
	feed     IndicatorFeed
	storage  core.AggregateStorage
	notifier core.Notifier // optional, for admin error reports
	log      logger.Logger
}

// NewPoller creates an indicator poller. The notifier may be nil, in
// which case cycle errors are only logged.
func NewPoller(builder *Builder, feed IndicatorFeed, storage core.AggregateStorage, notifier core.Notifier, log logger.Logger) *Poller {
	return &Poller{
		builder:  builder,
		feed:     feed,
		storage:  storage,
		notifier: notifier,
		log:      log,
	}
}

// Run polls until the context is cancelled. A failed cycle is logged as
// critical, reported to admins and retried after a fixed backoff; the
// loop never terminates on a recoverable error.
func (p *Poller) Run(ctx context.Context) {
	p.log.Warn("indicator poller started")

	for ctx.Err() == nil {
		if err := p.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}

			p.log.WithError(err).Errorf("indicator poll cycle failed, restarting in %s", errorBackoff)
			if p.notifier != nil {
				p.notifier.AlertAdmins(fmt.Sprintf(
					"A critical error has occurred in the indicator poller (restarting in %s) - %v",
					errorBackoff, err))
			}
			sleepCtx(ctx, errorBackoff)
		}
	}
}

// Cycle performs one full pass: rebuild the aggregate, issue one bulk
// query per (symbol, interval) group, write the returned values back and
// persist the updated snapshot.
func (p *Poller) Cycle(ctx context.Context) error {
	start := time.Now()

	agg, symbols, err := p.builder.Rebuild()
	if err != nil {
		return err
	}

	if agg.Empty() {
		sleepCtx(ctx, emptyIdleDelay)
		return nil
	}

	for symbol := range symbols.Iter() {
		intervals := make([]string, 0, len(agg[symbol]))
		for interval := range agg[symbol] {
			intervals = append(intervals, interval)
		}
		sort.Strings(intervals)

		for _, interval := range intervals {
			queries := agg[symbol][interval]
			if len(queries) == 0 {
				continue
			}

			results, err := p.feed.Bulk(ctx, symbol, interval, queries)
			if err != nil {
				return err
			}

			now := time.Now().Unix()
			for i, query := range queries {
				for name := range query.Values {
					value, ok := results[i][name]
					if !ok {
						return fmt.Errorf("%w: output %s missing for %s %s %s",
							core.ErrBadAPIResponse, name, symbol, interval, query.Indicator)
					}
					v := value
					query.Values[name] = &v
				}
				query.LastUpdate = now
			}
		}
	}

	if err := p.storage.SaveAggregate(agg); err != nil {
		return fmt.Errorf("failed to persist polled aggregate: %w", err)
	}

	p.log.Infof("aggregate updated: %d queries in %s", agg.Size(), time.Since(start).Round(100*time.Millisecond))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
