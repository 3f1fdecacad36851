// Package resource turns the flat client resource index into a navigable tree
// and materializes leaves on demand.
//
// A Tree is built once from index records and is read-only afterwards. A
// Fetcher downloads a single leaf into the cache store, bounded by a shared
// concurrency gate, verified against the index checksum and retried with
// exponential backoff. A Cache ties both together and adds directory fan-out,
// listing, in-flight de-duplication and schema-driven decoding.
package resource
