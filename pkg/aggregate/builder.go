// Package aggregate maintains the shared technical indicator aggregate:
// the deduplicated, cross-user set of indicator queries and their last
// fetched values. The builder re-derives it from every user's alerts and
// the poller keeps it fresh against the external indicator API.
package aggregate

import (
	"fmt"

	"github.com/StudioSol/set"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/indicator"
	"github.com/raykavin/alertnrun/pkg/logger"
)

// Builder rebuilds the aggregate from all users' current alerts.
type Builder struct {
	storage core.Storage
	catalog *indicator.Catalog
	log     logger.Logger
}

// NewBuilder creates an aggregate builder.
func NewBuilder(storage core.Storage, catalog *indicator.Catalog, log logger.Logger) *Builder {
	return &Builder{storage: storage, catalog: catalog, log: log}
}

// Rebuild derives a fresh aggregate from every whitelisted user's
// technical alerts, deduplicating per (symbol, interval, indicator,
// params) and carrying forward fetched values from the previous
// aggregate so unrelated rebuild timing never erases live data. The new
// snapshot replaces the stored one. The returned set lists symbols in
// first-reference order for deterministic bulk polling.
//
// A user whose alert data cannot be loaded is logged and skipped; the
// rebuild continues with the remaining users.
func (b *Builder) Rebuild() (core.Aggregate, *set.LinkedHashSetString, error) {
	previous, err := b.storage.LoadAggregate()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load previous aggregate: %w", err)
	}

	users, err := b.storage.Whitelist()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load whitelist: %w", err)
	}

	agg := core.Aggregate{}
	symbols := set.NewLinkedHashSetString()

	for _, user := range users {
		alerts, err := b.storage.LoadAlerts(user)
		if err != nil {
			b.log.WithError(err).Errorf("skipping user %d in aggregate rebuild", user)
			continue
		}

		for _, pairAlerts := range alerts {
			for i := range pairAlerts.Alerts {
				alert := &pairAlerts.Alerts[i]
				if alert.Type != core.AlertTypeTechnical {
					continue
				}

				query, err := b.catalog.FormatAlert(alert)
				if err != nil {
					b.log.WithError(err).Errorf("skipping unresolvable alert of user %d on %s", user, pairAlerts.Pair)
					continue
				}

				if !agg.Add(pairAlerts.Pair, alert.Interval, query) {
					continue // equivalent query already aggregated
				}
				symbols.Add(pairAlerts.Pair)

				if match := previous.Find(pairAlerts.Pair, alert.Interval, query); match != nil {
					query.Values = match.Values
					query.LastUpdate = match.LastUpdate
					continue
				}

				values, err := b.catalog.NewValues(alert.Indicator)
				if err != nil {
					return nil, nil, err
				}
				query.Values = values
			}
		}
	}

	if err := b.storage.SaveAggregate(agg); err != nil {
		return nil, nil, fmt.Errorf("failed to persist rebuilt aggregate: %w", err)
	}

	return agg, symbols, nil
}
