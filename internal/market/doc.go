// Package market keeps a live copy of the odds document.
//
// A Snapshot is seeded from the data API and then patched by marketLines
// found in subscription and gap fill events. Each line is written at the
// document path named by its marketLineKey. A line whose sequenceNumber is
// lower than the stored one is dropped.
package market
