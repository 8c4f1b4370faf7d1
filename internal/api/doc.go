// Package api wires the HTTP surface: route registration and the request
// handlers.
//
// Handlers translate HTTP requests into service and repository calls and the
// results back into JSON responses; all chat semantics live below this
// layer in the service package.
package api
