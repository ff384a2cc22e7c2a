// Package middleware holds the HTTP middleware chain: correlation ids,
// request logging, and per-request metrics.
package middleware

type contextKey string
