// Package server hosts the PulseCast API from a single HTTP server.
//
// The server builds a consistent middleware chain of request identification,
// rate limiting, metrics, and logging so handlers all share common
// protections and instrumentation.
package server
