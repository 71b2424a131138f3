package alerter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/indicator"
	"github.com/raykavin/alertnrun/pkg/logger"
)

// technicalHeader prefixes every technical alert post sent to Telegram.
const technicalHeader = "🔔 <b>TECHNICAL ALERT:</b> 🔔\n"

// Technical evaluates indicator alerts against the shared aggregate
// maintained by the indicator poller. It never calls the indicator API
// itself.
type Technical struct {
	storage   core.AggregateStorage
	catalog   *indicator.Catalog
	precision int
	log       logger.Logger
}

// NewTechnical creates the technical alert evaluator. Precision is the
// number of decimals indicator values carry in posts.
func NewTechnical(storage core.AggregateStorage, catalog *indicator.Catalog, precision int, log logger.Logger) *Technical {
	return &Technical{storage: storage, catalog: catalog, precision: precision, log: log}
}

// NewTechnicalProcess wires the technical evaluator into a sweep driver
// paced at the given period.
func NewTechnicalProcess(
	storage core.Storage,
	catalog *indicator.Catalog,
	notifier core.Notifier,
	mail core.MailSender,
	period time.Duration,
	precision int,
	log logger.Logger,
) *Process {
	evaluator := NewTechnical(storage, catalog, precision, log)
	return NewProcess("technical", technicalHeader, storage, evaluator, notifier, mail, period, log)
}

// Wants reports whether the alert belongs to the technical family.
func (t *Technical) Wants(alert *core.Alert) bool {
	return alert.Type == core.AlertTypeTechnical
}

// Evaluate resolves the alert's indicator value from the aggregate and
// applies the comparison. An alert whose canonical query has no
// aggregate entry is a consistency fault and aborts the sweep; a matched
// query whose value has not been fetched yet is simply not satisfied.
func (t *Technical) Evaluate(_ context.Context, pair string, alert *core.Alert) (Satisfaction, error) {
	agg, err := t.storage.LoadAggregate()
	if err != nil {
		return Satisfaction{}, err
	}

	if agg.Empty() {
		t.log.Warnf("skipping %s %s alert, the indicator aggregate is still empty", pair, strings.ToUpper(alert.Indicator))
		return Satisfaction{}, nil
	}

	query, err := t.catalog.FormatAlert(alert)
	if err != nil {
		return Satisfaction{}, err
	}

	match := agg.Find(pair, alert.Interval, query)
	if match == nil {
		return Satisfaction{}, fmt.Errorf("%w: %s %s %s",
			core.ErrNoAggregateMatch, pair, alert.Interval, query.Indicator)
	}

	ptr, ok := match.Values[alert.OutputValue]
	if !ok {
		return Satisfaction{}, fmt.Errorf("%w: output %s not tracked for %s %s %s",
			core.ErrNoAggregateMatch, alert.OutputValue, pair, alert.Interval, query.Indicator)
	}
	if ptr == nil {
		return Satisfaction{}, nil // not fetched yet
	}
	value := *ptr

	var met bool
	switch alert.Comparison {
	case core.CompareAbove:
		met = value > alert.Target
	case core.CompareBelow:
		met = value < alert.Target
	default:
		return Satisfaction{}, fmt.Errorf("%w: %s on %s %s",
			core.ErrInvalidComparison, alert.Comparison, pair, alert.Indicator)
	}

	if !met {
		return Satisfaction{Value: value}, nil
	}

	return Satisfaction{
		Met:   true,
		Value: value,
		Post:  t.post(pair, alert, query, value),
	}, nil
}

// post renders a satisfied technical alert, e.g.
// "ETH/USDT Relative Strength Index (RSI) 4h PERIOD=14 ABOVE 70 AT 71.503".
func (t *Technical) post(pair string, alert *core.Alert, query *core.Query, value float64) string {
	name := strings.ToUpper(alert.Indicator)
	if ind, err := t.catalog.Get(alert.Indicator); err == nil {
		name = fmt.Sprintf("%s (%s)", ind.Name, strings.ToUpper(alert.Indicator))
	}

	params := make([]string, 0, len(query.Params))
	for _, p := range query.Params {
		params = append(params, fmt.Sprintf("%s=%s", strings.ToUpper(p.Name), p.Value))
	}

	fields := []string{pair, name, alert.Interval}
	if len(params) > 0 {
		fields = append(fields, strings.Join(params, " "))
	}
	fields = append(fields,
		string(alert.Comparison),
		fnum(alert.Target),
		fmt.Sprintf("AT %.*f", t.precision, value))

	return strings.Join(fields, " ")
}
