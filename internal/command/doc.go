// Package command executes user control intents against the upstream server
// with optimistic local feedback.
//
// The protocol per command is snapshot, optimistic apply, bounded REST call,
// then confirm or rollback. The snapshot captures only the fields the
// command changes, so a rollback can never revert a field that a push update
// mutated concurrently. Single-flight per (device, kind): a second request
// of the same kind while one is pending is rejected, not queued.
package command
