// Package metrics implements lock-free in-process counters for the
// authentication engine. Counters are fixed-size atomic arrays so the
// request hot path never allocates; snapshots copy into maps for callers.
package metrics
