// Package httputil holds the JSON request/response helpers shared by every
// handler. Handlers go through these instead of raw http.ResponseWriter
// writes so the error envelope and pagination shape stay uniform.
package httputil
