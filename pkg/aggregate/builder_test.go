package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/indicator"
	"github.com/raykavin/alertnrun/pkg/logger"
	"github.com/raykavin/alertnrun/pkg/storage"
)

func newTestStore(t *testing.T) *storage.BuntStorage {
	t.Helper()
	store, err := storage.FromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func rsiAlert(interval string) core.Alert {
	return core.Alert{
		Type:        core.AlertTypeTechnical,
		Indicator:   "rsi",
		Comparison:  core.CompareAbove,
		Target:      70,
		Interval:    interval,
		OutputValue: "value",
	}
}

func saveUserAlerts(t *testing.T, store *storage.BuntStorage, userID int64, book core.AlertsByPair) {
	t.Helper()
	require.NoError(t, store.WhitelistUser(userID, false))
	require.NoError(t, store.SaveAlerts(userID, book))
}

func TestBuilder_RebuildDeduplicatesAcrossUsers(t *testing.T) {
	store := newTestStore(t)

	var user1 core.AlertsByPair
	user1 = user1.Append("ETH/USDT", rsiAlert("4h"))
	user1 = user1.Append("ETH/USDT", core.Alert{Type: core.AlertTypeSimple, Comparison: core.CompareAbove, Target: 3000})
	saveUserAlerts(t, store, 1, user1)

	var user2 core.AlertsByPair
	user2 = user2.Append("ETH/USDT", rsiAlert("4h")) // same query as user 1
	user2 = user2.Append("BTC/USDT", rsiAlert("1d"))
	saveUserAlerts(t, store, 2, user2)

	builder := NewBuilder(store, indicator.Default(), logger.Nop())
	agg, symbols, err := builder.Rebuild()
	require.NoError(t, err)

	// One query for the shared alert, one for the BTC alert; the simple
	// alert contributes nothing.
	require.Equal(t, 2, agg.Size())
	require.Len(t, agg["ETH/USDT"]["4h"], 1)
	require.Len(t, agg["BTC/USDT"]["1d"], 1)

	var order []string
	for symbol := range symbols.Iter() {
		order = append(order, symbol)
	}
	require.Equal(t, []string{"ETH/USDT", "BTC/USDT"}, order)

	// New queries start with a nil slot per declared output.
	query := agg["ETH/USDT"]["4h"][0]
	require.Contains(t, query.Values, "value")
	require.Nil(t, query.Values["value"])

	// The snapshot was persisted.
	stored, err := store.LoadAggregate()
	require.NoError(t, err)
	require.Equal(t, 2, stored.Size())
}

func TestBuilder_RebuildCarriesValuesForward(t *testing.T) {
	store := newTestStore(t)

	var book core.AlertsByPair
	book = book.Append("ETH/USDT", rsiAlert("4h"))
	saveUserAlerts(t, store, 1, book)

	builder := NewBuilder(store, indicator.Default(), logger.Nop())
	agg, _, err := builder.Rebuild()
	require.NoError(t, err)

	// Simulate a completed poll.
	value := 71.5
	query := agg["ETH/USDT"]["4h"][0]
	query.Values["value"] = &value
	query.LastUpdate = 1700000000
	require.NoError(t, store.SaveAggregate(agg))

	// A new user registering an unrelated alert triggers a rebuild; the
	// fetched value must survive it.
	var other core.AlertsByPair
	other = other.Append("BTC/USDT", rsiAlert("1d"))
	saveUserAlerts(t, store, 2, other)

	rebuilt, _, err := builder.Rebuild()
	require.NoError(t, err)
	require.Equal(t, 2, rebuilt.Size())

	carried := rebuilt["ETH/USDT"]["4h"][0]
	require.NotNil(t, carried.Values["value"])
	require.Equal(t, 71.5, *carried.Values["value"])
	require.EqualValues(t, 1700000000, carried.LastUpdate)

	fresh := rebuilt["BTC/USDT"]["1d"][0]
	require.Nil(t, fresh.Values["value"])
}

func TestBuilder_RebuildDropsStaleQueries(t *testing.T) {
	store := newTestStore(t)

	var book core.AlertsByPair
	book = book.Append("ETH/USDT", rsiAlert("4h"))
	saveUserAlerts(t, store, 1, book)

	builder := NewBuilder(store, indicator.Default(), logger.Nop())
	_, _, err := builder.Rebuild()
	require.NoError(t, err)

	// The alert goes away; the next rebuild must not resurrect it.
	require.NoError(t, store.SaveAlerts(1, core.AlertsByPair{}))

	agg, symbols, err := builder.Rebuild()
	require.NoError(t, err)
	require.True(t, agg.Empty())
	count := 0
	for range symbols.Iter() {
		count++
	}
	require.Zero(t, count)
}
