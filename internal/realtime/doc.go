// Package realtime is the operator console's persistent connection to the
// server.
//
// One Client owns one websocket at a time. It:
//   - dials with an opaque bearer token and reconnects with exponential
//     backoff when the socket drops, up to a configured attempt cap
//   - sends a liveness ping while open
//   - decodes inbound envelopes and fans them out through a Dispatcher to
//     any number of subscribers, including wildcard subscribers
//   - gates outbound sends on the connection being open, never queueing
//
// Shell multiplexes interactive shell tunnels over the same connection.
//
// Subscriptions belong to the Dispatcher, not to a connection: they survive
// reconnects and Disconnect.
package realtime
