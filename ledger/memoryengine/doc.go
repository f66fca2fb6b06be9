// Package memoryengine implements the lending ledger storage in process
// memory with the same version-token concurrency contract as the Postgres
// engine. It backs unit tests and local development.
package memoryengine
