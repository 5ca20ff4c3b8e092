// Package engine assembles the device-sync pipeline.
//
// It owns component construction, wiring, startup order, and teardown:
//
//	push channel ──▶ normalizer ──▶ state store ──▶ UI facade (WebSocket)
//	MQTT ingest  ──▶ normalizer ──┘            └──▶ InfluxDB sink
//
//	UI facade ──▶ command dispatcher ──▶ upstream REST
//	roster manager ◀──▶ upstream REST + SQLite cache
//
// The engine itself holds no domain logic; every rule lives in the package
// that owns it. What lives here is the glue: which component feeds which,
// in what order they come up, and how they come down.
package engine
