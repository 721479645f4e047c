// Package metrics defines the sink interfaces used to observe dispatch.
// Every sink records service outcomes; richer sinks also implement the
// optional recorder interfaces (probes, registry size, role), which callers
// detect with a type assertion. Sinks can be combined with NewMultiSink and
// are built from configuration through NewMetricsSink.
package metrics
