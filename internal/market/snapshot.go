package market

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/rickgao/realtime-feed/internal/model"
	"github.com/rickgao/realtime-feed/internal/sink"
)

// ChangeBufferSize is the capacity of the Change channel.
const ChangeBufferSize = 1000

// marketLines matches every line in an update, a list of updates, or a frame.
var marketLines = jp.MustParseString("$..marketLines[*]")

// Change is one line written to the snapshot.
type Change struct {
	Line   model.MarketLine
	Source sink.Kind
	At     time.Time
}

// Stats counts what the snapshot has applied.
type Stats struct {
	Lines       int   // Lines currently held
	Applied     int64 // Lines written
	Stale       int64 // Lines dropped for an older sequenceNumber
	Invalid     int64 // Entries that were not usable lines
	LastUpdated int64 // ms since epoch
}

// Snapshot is a thread-safe odds document.
type Snapshot struct {
	mu sync.RWMutex

	// Odds document as served by the data API, patched in place.
	doc map[string]any

	// Latest line per marketLineKey.
	lines map[string]model.MarketLine

	lastUpdated int64

	applied int64
	stale   int64
	invalid int64

	changes chan Change
	logger  *slog.Logger
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot(logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshot{
		doc:     make(map[string]any),
		lines:   make(map[string]model.MarketLine),
		changes: make(chan Change, ChangeBufferSize),
		logger:  logger,
	}
}

// Seed replaces the document with odds. A nil or null odds document seeds
// an empty snapshot. Lines already present in odds are indexed so later
// updates are checked against their sequence numbers.
func (s *Snapshot) Seed(odds []byte, lastUpdated int64) error {
	doc := make(map[string]any)
	if len(odds) > 0 && string(odds) != "null" {
		v, err := oj.Parse(odds)
		if err != nil {
			return fmt.Errorf("parse odds: %w", err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("parse odds: got %T, want object", v)
		}
		doc = m
	}

	lines := make(map[string]model.MarketLine)
	collectLines(doc, lines)

	s.mu.Lock()
	s.doc = doc
	s.lines = lines
	s.lastUpdated = lastUpdated
	s.mu.Unlock()

	s.logger.Info("snapshot seeded",
		"lines", len(lines),
		"last_updated", lastUpdated,
	)

	return nil
}

// collectLines indexes every object carrying a marketLineKey.
func collectLines(v any, out map[string]model.MarketLine) {
	switch tv := v.(type) {
	case map[string]any:
		if line, err := model.LineFromMap(tv); err == nil {
			out[line.Key] = line
			return
		}
		for _, child := range tv {
			collectLines(child, out)
		}
	case []any:
		for _, child := range tv {
			collectLines(child, out)
		}
	}
}

// Apply writes every marketLines entry found in data and returns how many
// lines changed. data may be a marketLineUpdate object, an array of them,
// or a whole data frame.
func (s *Snapshot) Apply(data []byte, source sink.Kind, at time.Time) (int, error) {
	v, err := oj.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("parse update: %w", err)
	}

	found := marketLines.Get(v)
	changes := make([]Change, 0, len(found))

	s.mu.Lock()
	for _, item := range found {
		m, ok := item.(map[string]any)
		if !ok {
			s.invalid++
			continue
		}

		line, err := model.LineFromMap(m)
		if err != nil {
			s.invalid++
			s.logger.Debug("skipping market line", "error", err)
			continue
		}

		if prev, ok := s.lines[line.Key]; ok && !line.Newer(prev) {
			s.stale++
			continue
		}

		if err := linePath(line).Set(s.doc, m); err != nil {
			s.invalid++
			s.logger.Debug("cannot place market line", "key", line.Key, "error", err)
			continue
		}

		s.lines[line.Key] = line
		s.applied++
		changes = append(changes, Change{Line: line, Source: source, At: at})
	}
	if len(changes) > 0 {
		if ms := at.UnixMilli(); ms > s.lastUpdated {
			s.lastUpdated = ms
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.notifyChange(c)
	}

	return len(changes), nil
}

// linePath is the document location of a line.
func linePath(line model.MarketLine) jp.Expr {
	path := line.Path()
	x := jp.C(path[0])
	for _, seg := range path[1:] {
		x = x.C(seg)
	}
	return x
}

// notifyChange sends a change to the changes channel (non-blocking).
func (s *Snapshot) notifyChange(c Change) {
	select {
	case s.changes <- c:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-s.changes:
		default:
		}
		select {
		case s.changes <- c:
		default:
		}
	}
}

// Changes returns the channel of written lines. When the consumer falls
// behind the oldest changes are dropped.
func (s *Snapshot) Changes() <-chan Change {
	return s.changes
}

// Line returns the latest line for key.
func (s *Snapshot) Line(key string) (model.MarketLine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines[key]
	return line, ok
}

// Keys returns the known marketLineKeys in sorted order.
func (s *Snapshot) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.lines))
	for k := range s.lines {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of lines held.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// LastUpdated returns the time of the newest applied data in ms since epoch.
// Gap fill uses it as the since argument.
func (s *Snapshot) LastUpdated() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// JSON renders the document with sorted keys.
func (s *Snapshot) JSON(indent int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return oj.JSON(s.doc, &ojg.Options{Indent: indent, Sort: true})
}

// Stats returns current counters.
func (s *Snapshot) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Lines:       len(s.lines),
		Applied:     s.applied,
		Stale:       s.stale,
		Invalid:     s.invalid,
		LastUpdated: s.lastUpdated,
	}
}

// OnEvent applies data and gap fill events. Complete events carry no lines.
func (s *Snapshot) OnEvent(e sink.Event) {
	if e.Kind == sink.KindComplete {
		return
	}
	n, err := s.Apply(e.Data, e.Kind, e.ReceivedAt)
	if err != nil {
		s.logger.Warn("failed to apply update",
			"sub_id", e.SubscriptionID,
			"kind", e.Kind.String(),
			"error", err,
		)
		return
	}
	s.logger.Debug("applied update",
		"sub_id", e.SubscriptionID,
		"kind", e.Kind.String(),
		"lines", n,
	)
}

// OnError logs subscription errors; the snapshot keeps its state.
func (s *Snapshot) OnError(err error) {
	s.logger.Warn("subscription error", "error", err)
}
