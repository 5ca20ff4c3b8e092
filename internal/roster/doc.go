// Package roster keeps the store's device identities aligned with the
// upstream listing.
//
// Refresh seeds unknown devices, updates changed ones, and prunes the rest;
// a failed fetch changes nothing. The last successful listing is mirrored
// into the local SQLite cache so a restart can render the device list
// before the upstream server has been reached.
package roster
