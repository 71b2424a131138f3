package core

import "errors"

var (
	// ErrUpstreamUnavailable marks a price or indicator request that kept
	// failing after the full retry budget. Sweeps skip the affected alert
	// for the current cycle and keep going.
	ErrUpstreamUnavailable = errors.New("upstream api unavailable")

	// ErrBadAPIResponse marks a structurally invalid upstream response,
	// e.g. a bulk indicator reply without mappings. Fatal to the current
	// poll cycle, never silently treated as satisfied.
	ErrBadAPIResponse = errors.New("malformed upstream api response")

	// ErrNoAggregateMatch means an alert references an indicator
	// combination the aggregate does not know about. The builder and the
	// evaluator have diverged, so this is raised instead of skipped.
	ErrNoAggregateMatch = errors.New("no matching aggregate query for alert")

	// ErrInvalidComparison marks a comparison operator that the alert
	// type does not support.
	ErrInvalidComparison = errors.New("invalid comparison operator")

	// ErrUnknownIndicator marks an indicator id absent from the catalog.
	ErrUnknownIndicator = errors.New("unknown indicator id")

	// ErrMaxAlertsReached is returned when a user hits the alert cap.
	ErrMaxAlertsReached = errors.New("maximum active alerts reached")

	// ErrUserConfig marks missing or corrupt per-user data. The affected
	// user is skipped for the rest of the sweep; the sweep continues.
	ErrUserConfig = errors.New("user configuration unavailable")
)
