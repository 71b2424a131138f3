// Package indicator holds the immutable technical indicator reference
// catalog: one entry per supported indicator with its external endpoint,
// parameter specs and output variable names. The catalog validates and
// defaults alert parameters and produces the canonical query form used
// for aggregate matching.
package indicator

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/raykavin/alertnrun/pkg/core"
)

//go:embed catalog.json
var embeddedCatalog []byte

// Intervals lists the candle intervals accepted for technical alerts.
var Intervals = []string{"1m", "5m", "15m", "30m", "1h", "2h", "4h", "12h", "1d", "1w"}

// Param describes one indicator parameter and its default value.
type Param struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Default     string `json:"default"`
}

// Indicator is one catalog entry, keyed by its uppercase id.
type Indicator struct {
	Name     string   `json:"name"`
	Endpoint string   `json:"endpoint"`
	Ref      string   `json:"ref"`
	Params   []Param  `json:"params"`
	Output   []string `json:"output"`
}

// HasOutput reports whether the indicator declares the output variable.
func (i Indicator) HasOutput(name string) bool {
	for _, out := range i.Output {
		if out == name {
			return true
		}
	}
	return false
}

// Catalog is the loaded indicator reference. Loaded once, read-only
// thereafter, safe for concurrent use.
type Catalog struct {
	indicators map[string]Indicator
}

// defaultCatalog is the instance built from the embedded reference.
var defaultCatalog *Catalog

func init() {
	var err error
	defaultCatalog, err = NewCatalog(embeddedCatalog)
	if err != nil {
		panic(fmt.Errorf("failed to load embedded indicator catalog: %w", err))
	}
}

// Default returns the catalog built from the embedded reference document.
func Default() *Catalog {
	return defaultCatalog
}

// NewCatalog parses a catalog document.
func NewCatalog(data []byte) (*Catalog, error) {
	indicators := make(map[string]Indicator)
	if err := json.Unmarshal(data, &indicators); err != nil {
		return nil, fmt.Errorf("failed to unmarshal indicator catalog: %w", err)
	}
	return &Catalog{indicators: indicators}, nil
}

// Get returns the entry for an indicator id, case-insensitive.
func (c *Catalog) Get(id string) (Indicator, error) {
	ind, ok := c.indicators[strings.ToUpper(id)]
	if !ok {
		return Indicator{}, fmt.Errorf("%w: %s", core.ErrUnknownIndicator, id)
	}
	return ind, nil
}

// IDs returns every indicator id in lexical order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.indicators))
	for id := range c.indicators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FormatAlert derives the canonical query for a technical alert: the
// lowercased indicator id plus every catalog parameter in declaration
// order, taking the alert's explicit value or the catalog default. Two
// alerts share one aggregate query exactly when their formatted forms
// are equal.
func (c *Catalog) FormatAlert(alert *core.Alert) (*core.Query, error) {
	ind, err := c.Get(alert.Indicator)
	if err != nil {
		return nil, err
	}

	query := &core.Query{Indicator: strings.ToLower(alert.Indicator)}
	for _, param := range ind.Params {
		value, ok := alert.Params[param.ID]
		if !ok {
			value = param.Default
		}
		query.Params = append(query.Params, core.QueryParam{Name: param.ID, Value: value})
	}

	return query, nil
}

// NewValues builds the null value map for an indicator: one nil slot per
// declared output variable, meaning not fetched yet.
func (c *Catalog) NewValues(id string) (map[string]*float64, error) {
	ind, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	values := make(map[string]*float64, len(ind.Output))
	for _, out := range ind.Output {
		values[out] = nil
	}
	return values, nil
}

// ValidateAlert checks an alert against the catalog at creation time.
func (c *Catalog) ValidateAlert(alert *core.Alert) error {
	switch alert.Type {
	case core.AlertTypeSimple:
		for _, cmp := range core.SimpleComparisons {
			if alert.Comparison == cmp {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", core.ErrInvalidComparison, alert.Comparison)

	case core.AlertTypeTechnical:
		if alert.Comparison != core.CompareAbove && alert.Comparison != core.CompareBelow {
			return fmt.Errorf("%w: %s (technical alerts accept ABOVE or BELOW)",
				core.ErrInvalidComparison, alert.Comparison)
		}

		ind, err := c.Get(alert.Indicator)
		if err != nil {
			return err
		}

		if !validInterval(alert.Interval) {
			return fmt.Errorf("invalid interval %q, expected one of %s",
				alert.Interval, strings.Join(Intervals, ", "))
		}

		if !ind.HasOutput(alert.OutputValue) {
			return fmt.Errorf("invalid output value %q for %s, expected one of %s",
				alert.OutputValue, strings.ToUpper(alert.Indicator), strings.Join(ind.Output, ", "))
		}

		for id := range alert.Params {
			if !hasParam(ind.Params, id) {
				return fmt.Errorf("unknown parameter %q for %s", id, strings.ToUpper(alert.Indicator))
			}
		}
		return nil

	default:
		return fmt.Errorf("invalid alert type: %q (s = simple, t = technical)", alert.Type)
	}
}

func validInterval(interval string) bool {
	for _, i := range Intervals {
		if i == interval {
			return true
		}
	}
	return false
}

func hasParam(params []Param, id string) bool {
	for _, p := range params {
		if p.ID == id {
			return true
		}
	}
	return false
}
