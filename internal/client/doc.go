// Package client is the data access layer of the post API.
//
// Reads go through a QueryCache keyed by entity identity ("posts" and
// "post:<id>") that coalesces concurrent fetches and serves results within a
// freshness window. Writes run as Mutations which invalidate the affected
// keys before their success hook fires. Watch keeps the cache in step with
// writes made by other clients.
package client
