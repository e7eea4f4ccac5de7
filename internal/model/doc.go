// Package model defines the market line types carried by the realtime feed.
//
// Lines arrive as generic JSON objects (decoded by ojg) and keep every
// field the server sent; only the fields the snapshot store needs are lifted
// into typed struct fields.
//
// Conventions:
//   - Keys: marketLineKey, a dot-separated path into the odds document
//   - Timestamps: int64 milliseconds since Unix epoch
package model
