// Package protocol defines the AppSync graphql-ws wire frames.
//
// Inbound frames are decoded into a Frame whose Type is a closed enum; any
// type string the client does not know maps to TypeUnknown so callers can
// switch exhaustively. Outbound frames (connection_init, start, stop) are
// built by the constructors in outbound.go.
package protocol
