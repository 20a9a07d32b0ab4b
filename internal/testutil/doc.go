// Package testutil contains fixtures shared by tests and the in-process
// examples: fluent builders for requests and location payloads, and stub
// backend adapters serving canned replies on every conventional queue.
// They are not intended for production usage.
package testutil
