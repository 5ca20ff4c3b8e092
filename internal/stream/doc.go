// Package stream normalizes raw push-channel frames into partial updates.
//
// The upstream server emits three distinct message shapes on one channel,
// distinguished only by which identifier keys are present:
//
//   - combined (`_id` and `device_id`): identity fields plus live state
//   - state (`_id` only): control fields — toggle, auto, schedule
//   - metrics (`device_id` only): numeric telemetry
//
// A fourth frame, the liveness signal (`alive`), flips only the connectivity
// flag. Anything else is dropped with a warning; a broken element inside an
// array never affects its siblings.
//
// Output is a state.PartialUpdate with nil pointers for absent fields, so
// the store's field-level merge cannot regress values a frame did not
// mention. Booleans and numbers are decoded tolerantly because different
// firmware revisions encode them differently (true vs 1 vs "1").
package stream
