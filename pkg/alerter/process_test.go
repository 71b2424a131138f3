package alerter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/logger"
	"github.com/raykavin/alertnrun/pkg/storage"
)

// fakeNotifier records deliveries and fails the configured channels.
type fakeNotifier struct {
	sent         []string
	failChannels map[int64]bool
	adminAlerts  []string
}

func (f *fakeNotifier) AlertChannels(text string, channels []int64) (delivered, failed []int64) {
	f.sent = append(f.sent, text)
	for _, channel := range channels {
		if f.failChannels[channel] {
			failed = append(failed, channel)
			continue
		}
		delivered = append(delivered, channel)
	}
	return delivered, failed
}

func (f *fakeNotifier) AlertAdmins(text string) {
	f.adminAlerts = append(f.adminAlerts, text)
}

func newProcessFixture(t *testing.T, feed core.PriceFeeder) (*Process, *storage.BuntStorage, *fakeNotifier) {
	t.Helper()
	store, err := storage.FromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	notifier := &fakeNotifier{failChannels: map[int64]bool{}}
	process := NewSimpleProcess(store, feed, notifier, nil, time.Millisecond, logger.Nop())
	return process, store, notifier
}

func saveAlert(t *testing.T, store *storage.BuntStorage, userID int64, pair string, alert core.Alert) {
	t.Helper()
	require.NoError(t, store.WhitelistUser(userID, false))
	alerts, err := store.LoadAlerts(userID)
	require.NoError(t, err)
	require.NoError(t, store.SaveAlerts(userID, alerts.Append(pair, alert)))
}

func TestProcess_SingleShotLifecycle(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"ETHUSDT": 3100}}
	process, store, notifier := newProcessFixture(t, feed)

	saveAlert(t, store, 42, "ETH/USDT", core.Alert{
		Type: core.AlertTypeSimple, Comparison: core.CompareAbove, Target: 3000,
	})

	// First sweep: the alert fires once and is marked, not yet removed.
	require.NoError(t, process.PollAll(context.Background()))
	require.Equal(t, []string{cexHeader + "ETH/USDT ABOVE 3000 TARGET AT 3100"}, notifier.sent)

	alerts, err := store.LoadAlerts(42)
	require.NoError(t, err)
	list, ok := alerts.Get("ETH/USDT")
	require.True(t, ok)
	require.True(t, list[0].Alerted)

	// Second sweep: the satisfied alert is dropped before evaluation and
	// its emptied pair key disappears. No duplicate notification.
	require.NoError(t, process.PollAll(context.Background()))
	require.Len(t, notifier.sent, 1)

	alerts, err = store.LoadAlerts(42)
	require.NoError(t, err)
	_, ok = alerts.Get("ETH/USDT")
	require.False(t, ok)
	require.Zero(t, alerts.Count())
}

func TestProcess_CooldownRearm(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"ETHUSDT": 3100}}
	process, store, notifier := newProcessFixture(t, feed)

	seconds := int64(3600)
	saveAlert(t, store, 42, "ETH/USDT", core.Alert{
		Type: core.AlertTypeSimple, Comparison: core.CompareAbove, Target: 3000,
		Trigger: &core.Trigger{CooldownSeconds: &seconds},
	})

	require.NoError(t, process.PollAll(context.Background()))
	require.Len(t, notifier.sent, 1)

	// The alert re-armed instead of being marked for removal.
	alerts, err := store.LoadAlerts(42)
	require.NoError(t, err)
	list, _ := alerts.Get("ETH/USDT")
	require.Len(t, list, 1)
	require.False(t, list[0].Alerted)
	require.NotZero(t, list[0].Trigger.LastTriggered)

	// Within the cooldown the still-true condition stays silent and the
	// alert survives.
	require.NoError(t, process.PollAll(context.Background()))
	require.Len(t, notifier.sent, 1)

	alerts, err = store.LoadAlerts(42)
	require.NoError(t, err)
	require.Equal(t, 1, alerts.Count())
}

func TestProcess_UpstreamFailureSkipsAlert(t *testing.T) {
	feedErr := &fakeFeed{err: core.ErrUpstreamUnavailable}
	process, store, notifier := newProcessFixture(t, feedErr)

	saveAlert(t, store, 42, "ETH/USDT", core.Alert{
		Type: core.AlertTypeSimple, Comparison: core.CompareAbove, Target: 3000,
	})

	// The sweep completes; the affected alert is carried to the next
	// cycle untouched.
	require.NoError(t, process.PollAll(context.Background()))
	require.Empty(t, notifier.sent)

	alerts, err := store.LoadAlerts(42)
	require.NoError(t, err)
	require.Equal(t, 1, alerts.Count())
}

func TestProcess_BrokenUserIsSkipped(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"ETHUSDT": 3100}}
	process, store, notifier := newProcessFixture(t, feed)

	// User 7 has a config document but no alert book: loading fails with
	// a user config error and must not break the sweep for user 42.
	require.NoError(t, store.SaveConfig(7, core.DefaultUserConfig(7, false)))
	saveAlert(t, store, 42, "ETH/USDT", core.Alert{
		Type: core.AlertTypeSimple, Comparison: core.CompareAbove, Target: 3000,
	})

	require.NoError(t, process.PollAll(context.Background()))
	require.Len(t, notifier.sent, 1)
}

func TestProcess_ChannelFailureDoesNotBlockSiblings(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"ETHUSDT": 3100}}
	process, store, notifier := newProcessFixture(t, feed)
	notifier.failChannels[1002] = true

	saveAlert(t, store, 42, "ETH/USDT", core.Alert{
		Type: core.AlertTypeSimple, Comparison: core.CompareAbove, Target: 3000,
	})

	config, err := store.LoadConfig(42)
	require.NoError(t, err)
	config.Channels = []int64{1001, 1002, 1003}
	require.NoError(t, store.SaveConfig(42, config))

	require.NoError(t, process.PollAll(context.Background()))
	require.Len(t, notifier.sent, 1)

	// The failed channel did not prevent the alert from completing its
	// lifecycle.
	alerts, err := store.LoadAlerts(42)
	require.NoError(t, err)
	list, _ := alerts.Get("ETH/USDT")
	require.True(t, list[0].Alerted)
}

func TestProcess_OtherFamilyIsLeftAlone(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{"ETHUSDT": 3100}}
	process, store, notifier := newProcessFixture(t, feed)

	saveAlert(t, store, 42, "ETH/USDT", core.Alert{
		Type: core.AlertTypeTechnical, Indicator: "rsi", Comparison: core.CompareAbove,
		Target: 70, Interval: "4h", OutputValue: "value",
	})

	require.NoError(t, process.PollAll(context.Background()))
	require.Empty(t, notifier.sent)

	alerts, err := store.LoadAlerts(42)
	require.NoError(t, err)
	require.Equal(t, 1, alerts.Count())
}

func TestProcess_RunStopsOnCancel(t *testing.T) {
	feed := &fakeFeed{prices: map[string]float64{}}
	process, store, _ := newProcessFixture(t, feed)
	require.NoError(t, store.WhitelistUser(42, false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		process.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("process did not stop after cancellation")
	}
}
