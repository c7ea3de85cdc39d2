/*
Package observability turns engine lifecycle hooks into Prometheus metrics.

Metrics live on their own registry so that several engines (or tests) can coexist in one
process. Mount Metrics.Handler on /metrics and pass Metrics.Hooks to the engine.
*/
package observability
