// Package taapi implements the client for the taapi.io bulk indicator
// API. The free tier allows one call per fixed period, so the client owns
// a blocking limiter with a safety buffer added to the nominal period;
// every caller in the process shares it.
package taapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/raykavin/alertnrun/pkg/core"
	"github.com/raykavin/alertnrun/pkg/logger"
)

// DefaultBulkEndpoint is the production bulk query endpoint.
const DefaultBulkEndpoint = "https://api.taapi.io/bulk"

// Client talks to the taapi.io bulk endpoint, implementing the indicator
// feed side of the poller.
type Client struct {
	apiKey   string
	endpoint string
	exchange string
	httpc    *http.Client
	limiter  *rate.Limiter
	log      logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the bulk endpoint, used by tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// NewClient creates a taapi.io client. The period is the nominal minimum
// delay between calls and buffer is the safety fraction added to it
// (0.05 = +5%) so clock skew never trips the upstream quota.
func NewClient(apiKey, exchange string, period time.Duration, buffer float64, log logger.Logger, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing taapi.io api key")
	}

	effective := time.Duration(float64(period) * (1 + buffer))
	client := &Client{
		apiKey:   apiKey,
		endpoint: DefaultBulkEndpoint,
		exchange: exchange,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(effective), 1),
		log:      log,
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

type bulkRequest struct {
	Secret    string        `json:"secret"`
	Construct bulkConstruct `json:"construct"`
}

type bulkConstruct struct {
	Exchange   string           `json:"exchange"`
	Symbol     string           `json:"symbol"`
	Interval   string           `json:"interval"`
	Indicators []map[string]any `json:"indicators"`
}

type bulkResponse struct {
	Mappings []struct {
		Result map[string]any `json:"result"`
	} `json:"mappings"`
	Error string `json:"error"`
}

// Bulk issues one bulk query for every indicator query under a (symbol,
// interval) group and returns one output map per query, in request
// order. It blocks on the shared limiter before calling out. A response
// without mappings is a core.ErrBadAPIResponse: fatal to the poll cycle,
// never silently treated as satisfied.
func (c *Client) Bulk(ctx context.Context, symbol, interval string, queries []*core.Query) ([]map[string]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	request := bulkRequest{
		Secret: c.apiKey,
		Construct: bulkConstruct{
			Exchange:   c.exchange,
			Symbol:     symbol,
			Interval:   interval,
			Indicators: indicatorSpecs(queries),
		},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bulk query: %w", err)
	}

	c.log.Infof("sending bulk query to taapi.io: %s %s (%d indicators)", symbol, interval, len(queries))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulk query failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bulk response: %w", err)
	}

	var parsed bulkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBadAPIResponse, err)
	}

	if parsed.Mappings == nil {
		if parsed.Error != "" {
			return nil, fmt.Errorf("%w: %s", core.ErrBadAPIResponse, parsed.Error)
		}
		return nil, fmt.Errorf("%w: response has no mappings: %s", core.ErrBadAPIResponse, raw)
	}

	if len(parsed.Mappings) != len(queries) {
		return nil, fmt.Errorf("%w: got %d mappings for %d indicators",
			core.ErrBadAPIResponse, len(parsed.Mappings), len(queries))
	}

	results := make([]map[string]float64, len(parsed.Mappings))
	for i, mapping := range parsed.Mappings {
		results[i] = numericOutputs(mapping.Result)
	}
	return results, nil
}

// indicatorSpecs flattens queries into the wire form: the indicator id
// plus its parameters as sibling fields, numeric where possible.
func indicatorSpecs(queries []*core.Query) []map[string]any {
	specs := make([]map[string]any, len(queries))
	for i, q := range queries {
		spec := map[string]any{"indicator": q.Indicator}
		for _, p := range q.Params {
			spec[p.Name] = paramValue(p.Value)
		}
		specs[i] = spec
	}
	return specs
}

func paramValue(value string) any {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// numericOutputs keeps the float-typed output variables of one result.
// All declared output values are documented as floats upstream.
func numericOutputs(result map[string]any) map[string]float64 {
	outputs := make(map[string]float64, len(result))
	for name, value := range result {
		switch v := value.(type) {
		case float64:
			outputs[name] = v
		case json.Number:
			if f, err := v.Float64(); err == nil {
				outputs[name] = f
			}
		}
	}
	return outputs
}
