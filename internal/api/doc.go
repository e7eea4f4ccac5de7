// Package api provides the HTTP side of the realtime feed.
//
// Two endpoints share one Client implementation:
//   - the AppSync GraphQL endpoint (https://<host>/graphql), used by gap
//     fill to query updates missed while the socket was down;
//   - the odds data API, used to fetch the initial market line snapshot.
//
// Requests are retried on 5xx and 429 with exponential backoff and jitter.
package api
