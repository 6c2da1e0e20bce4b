/*
Package observability turns engine lifecycle hooks into structured logs and
Prometheus metrics.
*/
package observability
