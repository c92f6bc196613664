// Package telemetry reads per-node TPU telemetry from Cloud Monitoring and
// publishes the most recent point of each series as a gauge.
//
// One filtered time-series query is issued per metric and node, paced by a
// rate limiter. A failed query only leaves its own gauge unset for the pass;
// the other metrics of the node are still fetched.
package telemetry
