package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoKey is returned for a line without a marketLineKey.
var ErrNoKey = errors.New("market line has no marketLineKey")

// -----------------------------------------------------------------------------
// Market Lines
// -----------------------------------------------------------------------------

// MarketLine is one priced line of a market.
type MarketLine struct {
	Key            string         // marketLineKey
	SequenceNumber int64          // Server sequence, higher is newer
	ModifiedOn     string         // Server modification time as sent
	Disabled       bool           // Line is suspended
	Fields         map[string]any // Full object as received
}

// Path splits Key into the segments of its location in the odds document.
func (l MarketLine) Path() []string {
	return strings.Split(l.Key, ".")
}

// Newer reports whether l should replace prev. Equal sequence numbers
// replace so a replayed update is idempotent.
func (l MarketLine) Newer(prev MarketLine) bool {
	return l.SequenceNumber >= prev.SequenceNumber
}

// LineFromMap lifts the typed fields out of a decoded line object.
func LineFromMap(m map[string]any) (MarketLine, error) {
	key, _ := m["marketLineKey"].(string)
	if key == "" {
		return MarketLine{}, ErrNoKey
	}

	seq, err := toInt64(m["sequenceNumber"])
	if err != nil {
		return MarketLine{}, fmt.Errorf("line %s: sequenceNumber: %w", key, err)
	}

	line := MarketLine{
		Key:            key,
		SequenceNumber: seq,
		Fields:         m,
	}
	line.ModifiedOn, _ = m["modifiedOn"].(string)
	line.Disabled, _ = m["disabled"].(bool)

	return line, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// -----------------------------------------------------------------------------
// Update Envelope
// -----------------------------------------------------------------------------

// UpdateMeta is the envelope of a marketLineUpdate message, minus its lines.
type UpdateMeta struct {
	LeagueID          int64  // League the update belongs to
	MarketSourceGroup string // Source group name
	MessageID         string // Server message id
	MessageTimestamp  string // Server send time as sent
	CorrelationID     string // Correlation id across retries
	Lines             int    // Number of lines carried
}

// MetaFromMap reads the envelope fields of a decoded update object.
func MetaFromMap(m map[string]any) UpdateMeta {
	meta := UpdateMeta{}
	meta.LeagueID, _ = toInt64(m["leagueId"])
	meta.MarketSourceGroup, _ = m["marketSourceGroup"].(string)
	meta.MessageID, _ = m["messageId"].(string)
	meta.MessageTimestamp, _ = m["messageTimestamp"].(string)
	meta.CorrelationID, _ = m["correlationId"].(string)
	if lines, ok := m["marketLines"].([]any); ok {
		meta.Lines = len(lines)
	}
	return meta
}
