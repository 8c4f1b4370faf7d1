// Package middleware provides the cross-cutting HTTP request filters.
//
// Currently that is session authentication: resolving the header credential
// pair against the session registry before a handler runs.
package middleware
