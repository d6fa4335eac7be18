package metrics

import "nerase/lifecycle"

// Collector records job outcomes and reports on them.
type Collector interface {
	lifecycle.HistorySink
	Snapshot(recent int) Snapshot
}

var _ Collector = (*Store)(nil)
