// Package httputil holds the JSON response and request helpers shared by
// the admin API and the public newsletter endpoints, so every error body
// has the same {"error", "code", "details"} shape.
package httputil
