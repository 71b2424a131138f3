package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raykavin/alertnrun/pkg/core"
)

func TestCatalog_Get(t *testing.T) {
	catalog := Default()

	ind, err := catalog.Get("rsi")
	require.NoError(t, err)
	require.Equal(t, "Relative Strength Index", ind.Name)

	_, err = catalog.Get("WYCKOFF")
	require.ErrorIs(t, err, core.ErrUnknownIndicator)
}

func TestCatalog_FormatAlert(t *testing.T) {
	catalog := Default()

	t.Run("defaults fill missing params", func(t *testing.T) {
		query, err := catalog.FormatAlert(&core.Alert{Indicator: "RSI"})
		require.NoError(t, err)
		require.Equal(t, "rsi", query.Indicator)
		require.Equal(t, []core.QueryParam{{Name: "period", Value: "14"}}, query.Params)
	})

	t.Run("explicit params override defaults", func(t *testing.T) {
		query, err := catalog.FormatAlert(&core.Alert{
			Indicator: "macd",
			Params:    map[string]string{"optInFastPeriod": "8"},
		})
		require.NoError(t, err)
		require.Equal(t, []core.QueryParam{
			{Name: "optInFastPeriod", Value: "8"},
			{Name: "optInSlowPeriod", Value: "26"},
			{Name: "optInSignalPeriod", Value: "9"},
		}, query.Params)
	})

	t.Run("two alerts with equal params format to the same query", func(t *testing.T) {
		a, err := catalog.FormatAlert(&core.Alert{Indicator: "RSI", Params: map[string]string{"period": "14"}})
		require.NoError(t, err)
		b, err := catalog.FormatAlert(&core.Alert{Indicator: "rsi"})
		require.NoError(t, err)
		require.True(t, a.Same(b))
	})
}

func TestCatalog_NewValues(t *testing.T) {
	values, err := Default().NewValues("bbands")
	require.NoError(t, err)
	require.Len(t, values, 3)
	for _, name := range []string{"valueUpperBand", "valueMiddleBand", "valueLowerBand"} {
		ptr, ok := values[name]
		require.True(t, ok)
		require.Nil(t, ptr)
	}
}

func TestCatalog_ValidateAlert(t *testing.T) {
	catalog := Default()

	cases := []struct {
		name    string
		alert   core.Alert
		wantErr bool
	}{
		{
			name:  "valid simple alert",
			alert: core.Alert{Type: core.AlertTypeSimple, Comparison: core.ComparePctChg},
		},
		{
			name:    "simple alert with unknown comparison",
			alert:   core.Alert{Type: core.AlertTypeSimple, Comparison: "NEAR"},
			wantErr: true,
		},
		{
			name: "valid technical alert",
			alert: core.Alert{
				Type: core.AlertTypeTechnical, Indicator: "rsi", Comparison: core.CompareAbove,
				Interval: "4h", OutputValue: "value", Params: map[string]string{"period": "21"},
			},
		},
		{
			name: "technical alert rejects percent comparisons",
			alert: core.Alert{
				Type: core.AlertTypeTechnical, Indicator: "rsi", Comparison: core.ComparePctChg,
				Interval: "4h", OutputValue: "value",
			},
			wantErr: true,
		},
		{
			name: "unknown indicator",
			alert: core.Alert{
				Type: core.AlertTypeTechnical, Indicator: "vibes", Comparison: core.CompareAbove,
				Interval: "4h", OutputValue: "value",
			},
			wantErr: true,
		},
		{
			name: "invalid interval",
			alert: core.Alert{
				Type: core.AlertTypeTechnical, Indicator: "rsi", Comparison: core.CompareAbove,
				Interval: "3h", OutputValue: "value",
			},
			wantErr: true,
		},
		{
			name: "unknown output value",
			alert: core.Alert{
				Type: core.AlertTypeTechnical, Indicator: "rsi", Comparison: core.CompareAbove,
				Interval: "4h", OutputValue: "valueMACD",
			},
			wantErr: true,
		},
		{
			name: "unknown param",
			alert: core.Alert{
				Type: core.AlertTypeTechnical, Indicator: "rsi", Comparison: core.CompareAbove,
				Interval: "4h", OutputValue: "value", Params: map[string]string{"smoothing": "3"},
			},
			wantErr: true,
		},
		{
			name:    "unknown alert type",
			alert:   core.Alert{Type: "x", Comparison: core.CompareAbove},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := catalog.ValidateAlert(&tc.alert)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
