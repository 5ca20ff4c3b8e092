// Package state holds the client-side view of every device.
//
// The Store is the only owner of device-state memory. Everything else
// either writes into it (the message normalizer via Apply, the command
// dispatcher via optimistic writes and rollbacks, the roster manager via
// seed/prune) or reads from it (the UI facade).
//
// # Merge semantics
//
// Inbound messages are partial: a metrics frame says nothing about the
// toggle flag, a state frame may say nothing about power. PartialUpdate
// models this with pointer fields — nil means "not mentioned" — and
// Store.Apply overlays only the mentioned fields. A field set by update k
// keeps update k's value until a later update explicitly includes that
// field, regardless of the shape of intervening messages. Applying the same
// update twice is idempotent.
//
// # Publication
//
// Every Apply publishes the full post-merge record to the device's
// subscribers and to firehose subscribers. Reads and published values are
// deep copies; callers never share memory with the store.
//
// # Usage
//
//	store := state.NewStore()
//	unsub := store.Subscribe("dev-1", func(ls state.LiveState) {
//	    fmt.Println(ls.Metrics.Power)
//	})
//	defer unsub()
//
//	store.Apply("dev-1", state.PartialUpdate{Power: state.Float(120)})
package state
