package taapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/logger"
)

func testQueries() []*core.Query {
	return []*core.Query{
		{Indicator: "rsi", Params: []core.QueryParam{{Name: "period", Value: "14"}}},
		{Indicator: "macd"},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("secret-key", "binance", time.Millisecond, 0, logger.Nop(),
		WithEndpoint(server.URL))
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "binance", time.Second, 0.05, logger.Nop())
	require.Error(t, err)
}

func TestClient_Bulk(t *testing.T) {
	var captured bulkRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"mappings": []map[string]any{
				{"result": map[string]any{"value": 71.5}},
				{"result": map[string]any{
					"valueMACD":       1.2,
					"valueMACDSignal": 0.9,
					"valueMACDHist":   0.3,
					"backtracked":     false,
				}},
			},
		})
	})

	results, err := client.Bulk(context.Background(), "ETH/USDT", "4h", testQueries())
	require.NoError(t, err)

	// Request carries the key, the construct header and one spec per
	// query with params flattened next to the indicator id.
	require.Equal(t, "secret-key", captured.Secret)
	require.Equal(t, "binance", captured.Construct.Exchange)
	require.Equal(t, "ETH/USDT", captured.Construct.Symbol)
	require.Equal(t, "4h", captured.Construct.Interval)
	require.Len(t, captured.Construct.Indicators, 2)
	require.Equal(t, "rsi", captured.Construct.Indicators[0]["indicator"])
	require.Equal(t, float64(14), captured.Construct.Indicators[0]["period"])

	// Results come back in request order, non-numeric outputs dropped.
	require.Len(t, results, 2)
	require.Equal(t, map[string]float64{"value": 71.5}, results[0])
	require.Equal(t, 1.2, results[1]["valueMACD"])
	require.NotContains(t, results[1], "backtracked")
}

func TestClient_BulkNoMappings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": "rate limit exceeded"})
	})

	_, err := client.Bulk(context.Background(), "ETH/USDT", "4h", testQueries())
	require.ErrorIs(t, err, core.ErrBadAPIResponse)
	require.ErrorContains(t, err, "rate limit exceeded")
}

func TestClient_BulkMappingCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"mappings": []map[string]any{
				{"result": map[string]any{"value": 71.5}},
			},
		})
	})

	_, err := client.Bulk(context.Background(), "ETH/USDT", "4h", testQueries())
	require.ErrorIs(t, err, core.ErrBadAPIResponse)
}

func TestClient_BulkMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>upstream proxy error</html>"))
	})

	_, err := client.Bulk(context.Background(), "ETH/USDT", "4h", testQueries())
	require.ErrorIs(t, err, core.ErrBadAPIResponse)
}
