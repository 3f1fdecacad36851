// Package server hosts the Fiber HTTP service used in serve mode: request-ID
// middleware, the /res/* resource endpoint backed by the resource cache, and
// /-/ diagnostics. It also owns the shared upstream http.Client used by the
// fetcher.
package server
