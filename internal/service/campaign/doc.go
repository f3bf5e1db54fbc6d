// Package campaign implements the campaign lifecycle commands and queries.
//
// The service owns the state machine rules (which transitions are legal,
// which are idempotent no-ops) and the coupling between a status change and
// the job queue: starting or resuming enqueues a tick, pausing or stopping
// cancels pending work. Persistence and queue access go through the narrow
// interfaces defined in deps.go so the state machine can be tested against
// in-memory fakes.
package campaign
