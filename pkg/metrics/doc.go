// Package metrics registers and exposes the controller's Prometheus
// series: reconciliation counts and durations, circuit breaker state,
// scheduler execution counts, change-detection counts, and cluster API
// call counts and durations. Every collector is a package-level var
// registered in init(), following this repository's convention of a
// single flat metrics package rather than per-component registries.
//
// Handler() exposes the default Prometheus registry over HTTP for
// scraping; wiring it to a listener is left to cmd/reconctl.
package metrics
