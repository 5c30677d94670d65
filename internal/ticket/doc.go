// Package ticket defines the support-desk domain model (tickets, messages,
// knowledge-base documents and match snapshots, run-log entries, email
// outbox) and the Store interface the pipeline persists through.
package ticket
