// Package metrics aggregates the samples produced by virtual users.
//
// Request latencies go into HDR histograms, overall and per endpoint, so any
// percentile can be read back without keeping raw samples. Counters are
// atomic. A background emitter cuts a time bucket every interval, which gives
// the live display and the summary export their time series.
//
// # Basic Usage
//
//	engine := metrics.NewEngine()
//	defer engine.Stop()
//
//	driver.Iterate(ctx, client, engine) // Engine is a scenario.Recorder
//
//	snapshot := engine.GetSnapshot()
//	fmt.Printf("P95 Latency: %v\n", snapshot.Latency.P95)
//	fmt.Printf("Failed: %.2f%%\n", snapshot.ErrorRate*100)
//
// The engine also satisfies threshold.Source, so thresholds are evaluated
// directly against it once the run has stopped.
//
// # Prometheus
//
// An Exporter can be attached as a Sink to mirror every sample into
// Prometheus collectors on a private registry.
package metrics
