package alerter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/indicator"
	"github.com/raykavin/alertnrun/pkg/logger"
	"github.com/raykavin/alertnrun/pkg/storage"
)

func newTechnicalFixture(t *testing.T) (*Technical, *storage.BuntStorage) {
	t.Helper()
	store, err := storage.FromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewTechnical(store, indicator.Default(), 3, logger.Nop()), store
}

func seedAggregate(t *testing.T, store *storage.BuntStorage, value *float64) {
	t.Helper()
	agg := core.Aggregate{}
	agg.Add("ETH/USDT", "4h", &core.Query{
		Indicator: "rsi",
		Params:    []core.QueryParam{{Name: "period", Value: "14"}},
		Values:    map[string]*float64{"value": value},
	})
	require.NoError(t, store.SaveAggregate(agg))
}

func technicalAlert(comparison core.Comparison, target float64) *core.Alert {
	return &core.Alert{
		Type:        core.AlertTypeTechnical,
		Indicator:   "rsi",
		Comparison:  comparison,
		Target:      target,
		Interval:    "4h",
		OutputValue: "value",
	}
}

func TestTechnical_EvaluateAbove(t *testing.T) {
	technical, store := newTechnicalFixture(t)
	value := 71.5
	seedAggregate(t, store, &value)

	sat, err := technical.Evaluate(context.Background(), "ETH/USDT", technicalAlert(core.CompareAbove, 70))
	require.NoError(t, err)
	require.True(t, sat.Met)
	require.Equal(t, 71.5, sat.Value)
	require.Equal(t, "ETH/USDT Relative Strength Index (RSI) 4h PERIOD=14 ABOVE 70 AT 71.500", sat.Post)

	sat, err = technical.Evaluate(context.Background(), "ETH/USDT", technicalAlert(core.CompareBelow, 70))
	require.NoError(t, err)
	require.False(t, sat.Met)
}

func TestTechnical_EvaluateUnfetchedValueIsNotSatisfied(t *testing.T) {
	technical, store := newTechnicalFixture(t)
	seedAggregate(t, store, nil)

	sat, err := technical.Evaluate(context.Background(), "ETH/USDT", technicalAlert(core.CompareAbove, 70))
	require.NoError(t, err)
	require.False(t, sat.Met)
}

func TestTechnical_EvaluateNoMatchIsConsistencyFault(t *testing.T) {
	technical, store := newTechnicalFixture(t)
	value := 71.5
	seedAggregate(t, store, &value)

	// Same indicator, different params: no aggregate entry serves it.
	alert := technicalAlert(core.CompareAbove, 70)
	alert.Params = map[string]string{"period": "21"}

	_, err := technical.Evaluate(context.Background(), "ETH/USDT", alert)
	require.ErrorIs(t, err, core.ErrNoAggregateMatch)

	// Unknown pair as well.
	_, err = technical.Evaluate(context.Background(), "SOL/USDT", technicalAlert(core.CompareAbove, 70))
	require.ErrorIs(t, err, core.ErrNoAggregateMatch)
}

func TestTechnical_EvaluateEmptyAggregateSkips(t *testing.T) {
	technical, _ := newTechnicalFixture(t)

	sat, err := technical.Evaluate(context.Background(), "ETH/USDT", technicalAlert(core.CompareAbove, 70))
	require.NoError(t, err, "an empty aggregate means the poller has not run yet, not a fault")
	require.False(t, sat.Met)
}
