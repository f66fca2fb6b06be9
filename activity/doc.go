// Package activity writes the durable audit trail of API requests and
// outcomes. Writes are best-effort and never fail a request.
package activity
