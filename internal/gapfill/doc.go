// Package gapfill implements catch-up queries run after each connection
// acknowledgement.
//
// Updates published while the socket was down are never replayed by the
// realtime endpoint. After every connection_ack the Filler POSTs the
// configured GraphQL queries with a since variable (the newest data the
// consumer holds) and delivers the results to the same sink as live data,
// tagged sink.KindGapFill.
package gapfill
