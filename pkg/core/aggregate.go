package core

// QueryParam is one resolved indicator parameter. Params keep the catalog
// declaration order so two queries can be compared field by field.
type QueryParam struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Query is one deduplicated indicator request inside the aggregate.
// Exactly one Query exists per distinct (symbol, interval, indicator,
// params) tuple no matter how many users reference it. Values maps output
// variable names to the last fetched value; nil means not fetched yet.
type Query struct {
	Indicator  string              `json:"indicator"`
	Params     []QueryParam        `json:"params"`
	Values     map[string]*float64 `json:"values"`
	LastUpdate int64               `json:"last_update"`
}

// Same reports whether two queries address the same indicator request,
// comparing indicator id and every parameter value. Fetched values and
// timestamps are not part of the identity.
func (q *Query) Same(other *Query) bool {
	if other == nil || q.Indicator != other.Indicator || len(q.Params) != len(other.Params) {
		return false
	}
	for i := range q.Params {
		if q.Params[i] != other.Params[i] {
			return false
		}
	}
	return true
}

// Aggregate is the shared cross-user collection of technical indicator
// queries, keyed by symbol then interval. It is rebuilt from all users'
// alerts once per poll cycle and replaced as a whole snapshot.
type Aggregate map[string]map[string][]*Query

// Find returns the query under (symbol, interval) matching the probe, or
// nil when no equivalent query exists.
func (a Aggregate) Find(symbol, interval string, probe *Query) *Query {
	for _, q := range a[symbol][interval] {
		if q.Same(probe) {
			return q
		}
	}
	return nil
}

// Add appends a query under (symbol, interval) unless an equivalent query
// is already present. It reports whether the query was added.
func (a Aggregate) Add(symbol, interval string, q *Query) bool {
	if a.Find(symbol, interval, q) != nil {
		return false
	}
	if a[symbol] == nil {
		a[symbol] = make(map[string][]*Query)
	}
	a[symbol][interval] = append(a[symbol][interval], q)
	return true
}

// Empty reports whether the aggregate holds no queries at all.
func (a Aggregate) Empty() bool {
	for _, intervals := range a {
		for _, queries := range intervals {
			if len(queries) > 0 {
				return false
			}
		}
	}
	return true
}

// Size returns the total number of queries in the aggregate.
func (a Aggregate) Size() int {
	n := 0
	for _, intervals := range a {
		for _, queries := range intervals {
			n += len(queries)
		}
	}
	return n
}
