package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLineFromMap(t *testing.T) {
	t.Run("typed fields", func(t *testing.T) {
		m := map[string]any{
			"marketLineKey":  "nba.game1.points.over",
			"sequenceNumber": int64(42),
			"modifiedOn":     "2024-01-15T10:00:00Z",
			"disabled":       true,
			"price":          int64(-110),
		}

		line, err := LineFromMap(m)
		if err != nil {
			t.Fatalf("LineFromMap failed: %v", err)
		}

		if line.Key != "nba.game1.points.over" {
			t.Errorf("Key = %q", line.Key)
		}
		if line.SequenceNumber != 42 {
			t.Errorf("SequenceNumber = %d, want 42", line.SequenceNumber)
		}
		if line.ModifiedOn != "2024-01-15T10:00:00Z" || !line.Disabled {
			t.Errorf("ModifiedOn/Disabled = %q/%v", line.ModifiedOn, line.Disabled)
		}
		if line.Fields["price"] != int64(-110) {
			t.Errorf("Fields[price] = %v, want -110", line.Fields["price"])
		}
		if diff := cmp.Diff([]string{"nba", "game1", "points", "over"}, line.Path()); diff != "" {
			t.Errorf("Path mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("float sequence number", func(t *testing.T) {
		line, err := LineFromMap(map[string]any{"marketLineKey": "k", "sequenceNumber": 7.0})
		if err != nil {
			t.Fatalf("LineFromMap failed: %v", err)
		}
		if line.SequenceNumber != 7 {
			t.Errorf("SequenceNumber = %d, want 7", line.SequenceNumber)
		}
	})

	t.Run("missing sequence number", func(t *testing.T) {
		line, err := LineFromMap(map[string]any{"marketLineKey": "k"})
		if err != nil {
			t.Fatalf("LineFromMap failed: %v", err)
		}
		if line.SequenceNumber != 0 {
			t.Errorf("SequenceNumber = %d, want 0", line.SequenceNumber)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := LineFromMap(map[string]any{"price": 1}); !errors.Is(err, ErrNoKey) {
			t.Errorf("error = %v, want ErrNoKey", err)
		}
	})

	t.Run("bad sequence number", func(t *testing.T) {
		if _, err := LineFromMap(map[string]any{"marketLineKey": "k", "sequenceNumber": "7"}); err == nil {
			t.Error("expected error for string sequenceNumber")
		}
	})
}

func TestNewer(t *testing.T) {
	tests := []struct {
		name string
		prev int64
		next int64
		want bool
	}{
		{"higher replaces", 1, 2, true},
		{"equal replaces", 2, 2, true},
		{"lower is stale", 3, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := MarketLine{Key: "k", SequenceNumber: tt.prev}
			next := MarketLine{Key: "k", SequenceNumber: tt.next}
			if got := next.Newer(prev); got != tt.want {
				t.Errorf("Newer() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetaFromMap(t *testing.T) {
	m := map[string]any{
		"leagueId":          int64(3),
		"marketSourceGroup": "props",
		"messageId":         "msg-1",
		"messageTimestamp":  "2024-01-15T10:00:00Z",
		"correlationId":     "corr-1",
		"marketLines":       []any{map[string]any{}, map[string]any{}},
	}

	want := UpdateMeta{
		LeagueID:          3,
		MarketSourceGroup: "props",
		MessageID:         "msg-1",
		MessageTimestamp:  "2024-01-15T10:00:00Z",
		CorrelationID:     "corr-1",
		Lines:             2,
	}
	if diff := cmp.Diff(want, MetaFromMap(m)); diff != "" {
		t.Errorf("MetaFromMap mismatch (-want +got):\n%s", diff)
	}
}
