// Package connection implements the realtime Connection Manager.
//
// The Connection Manager:
//   - Owns exactly one graphql-ws WebSocket at a time
//   - Sends connection_init and waits for connection_ack
//   - Starts registered subscriptions once acknowledged, in registration order
//   - Interprets every inbound frame on a single goroutine (machine.go)
//   - Fails all live subscriptions with ErrConnectionLost on transport loss
//   - Optionally reconnects and restarts lost subscriptions (Supervisor)
package connection
