// Package httpserver serves the HTTP side of a long-running watch:
// Prometheus metrics, a health check and a websocket stream of row
// changes.
package httpserver
