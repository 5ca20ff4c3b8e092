// Package mqtt provides the optional direct telemetry ingest path.
//
// Edge deployments can point the engine straight at the fleet broker instead
// of (or in addition to) the dashboard's push channel. The client is a pure
// consumer: it subscribes to the configured telemetry topic, unwraps the
// broker envelope, and hands the inner payload to the same normalizer the
// push channel feeds. Reconnection and subscription restoration are
// automatic.
package mqtt
