package ddmin

import "sync/atomic"

// Stats summarizes the oracle traffic of a Minimizer.
type Stats struct {
	OracleCalls int64 `json:"oracle_calls"`
	Failing     int64 `json:"failing"`
	Passing     int64 `json:"passing"`
	MaxDepth    int64 `json:"max_depth"`
}

type counters struct {
	calls    atomic.Int64
	failing  atomic.Int64
	maxDepth atomic.Int64
}

func (c *counters) record(depth int, fails bool) {
	c.calls.Add(1)
	if fails {
		c.failing.Add(1)
	}
	d := int64(depth)
	for {
		cur := c.maxDepth.Load()
		if d <= cur || c.maxDepth.CompareAndSwap(cur, d) {
			return
		}
	}
}

func (c *counters) snapshot() Stats {
	calls := c.calls.Load()
	failing := c.failing.Load()
	return Stats{
		OracleCalls: calls,
		Failing:     failing,
		Passing:     calls - failing,
		MaxDepth:    c.maxDepth.Load(),
	}
}
