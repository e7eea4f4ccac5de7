package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultSnapshotPath is the odds snapshot resource of the data API.
const DefaultSnapshotPath = "/market/nba/props/odds"

// Snapshot is the initial state fetched before subscribing.
type Snapshot struct {
	// Odds is the document updates are applied to, keyed by market line key.
	Odds json.RawMessage `json:"odds"`

	// LastUpdated is the snapshot time in milliseconds since epoch, or 0
	// when the API did not report one.
	LastUpdated int64 `json:"lastUpdated"`
}

type snapshotResponse struct {
	Data *Snapshot `json:"data"`
}

// GetSnapshot fetches the snapshot at path (DefaultSnapshotPath if empty).
func (c *Client) GetSnapshot(ctx context.Context, path string) (*Snapshot, error) {
	if path == "" {
		path = DefaultSnapshotPath
	}

	var resp snapshotResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if resp.Data == nil {
		return &Snapshot{}, nil
	}

	return resp.Data, nil
}
