// Package transport owns the push-channel connection to the upstream server.
//
// Exactly one websocket is open per session, authenticated by a token query
// parameter. The lifecycle is an explicit {Disconnected, Connecting,
// Connected} state machine. Unexpected closures reconnect with bounded
// exponential backoff, min(1s·2^n, 30s), for at most five attempts; after
// that the connection is terminal and stays down until something calls
// Retry (the engine does so when a device is observed again). Reconnection
// is also suppressed while nothing observes any device.
//
// Every inbound frame is handed raw to the frame handler; the handler owns
// parsing and its failures never feed back into the connection.
package transport
