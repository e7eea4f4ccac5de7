// Package subscription tracks the subscriptions multiplexed over one socket.
//
// The registry is shared by the send path (Register, Unsubscribe) and the
// receive path (state transitions driven by inbound frames), so every
// method takes the registry lock. Pending subscriptions are queued in
// registration order and handed out exactly once by TakePending.
package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/rickgao/realtime-feed/internal/sink"
)

// Errors
var (
	ErrEmptyQuery  = errors.New("query is required")
	ErrNilHandler  = errors.New("handler is required")
	ErrDuplicateID = errors.New("subscription id already registered")
)

// State is the lifecycle state of a subscription.
type State int

const (
	Pending State = iota
	Started
	Stopped
	Errored
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Subscription is a registered GraphQL subscription.
type Subscription struct {
	ID        string
	Query     string
	Field     string         // Field read from payload.data; derived from Query when empty
	Variables map[string]any // Optional operation variables
	Handler   sink.Handler
	State     State
	Err       error // Set when State is Errored
	CreatedAt time.Time

	seq uint64
}

// Option customizes a registration.
type Option func(*Subscription)

// WithID uses a caller-supplied identifier instead of a generated one.
func WithID(id string) Option {
	return func(s *Subscription) {
		s.ID = id
	}
}

// WithField sets the field extracted from payload.data.
func WithField(field string) Option {
	return func(s *Subscription) {
		s.Field = field
	}
}

// WithVariables sets the operation variables.
func WithVariables(vars map[string]any) Option {
	return func(s *Subscription) {
		s.Variables = vars
	}
}

// Registry maps subscription ids to subscriptions.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[string]*Subscription
	pending *queue.Queue // ids in registration order
	seq     uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		subs:    make(map[string]*Subscription),
		pending: queue.New(),
	}
}

// Register stores a new Pending subscription and returns its id. Nothing is
// sent on the wire.
func (r *Registry) Register(query string, h sink.Handler, opts ...Option) (string, error) {
	if query == "" {
		return "", ErrEmptyQuery
	}
	if h == nil {
		return "", ErrNilHandler
	}

	sub := &Subscription{
		Query:     query,
		Handler:   h,
		State:     Pending,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(sub)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Field == "" {
		sub.Field = FieldFromQuery(query)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subs[sub.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, sub.ID)
	}

	r.seq++
	sub.seq = r.seq
	r.subs[sub.ID] = sub
	r.pending.Add(sub.ID)

	r.logger.Debug("subscription registered", "sub_id", sub.ID, "field", sub.Field)
	return sub.ID, nil
}

// Lookup returns a copy of the subscription with the given id.
func (r *Registry) Lookup(id string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// MarkStarted moves a Pending subscription to Started. Returns false for
// unknown ids and for subscriptions already stopped or errored.
func (r *Registry) MarkStarted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		r.logger.Warn("mark started: unknown subscription", "sub_id", id)
		return false
	}

	switch sub.State {
	case Pending, Started:
		sub.State = Started
		return true
	default:
		r.logger.Warn("mark started: subscription not pending",
			"sub_id", id,
			"state", sub.State,
		)
		return false
	}
}

// MarkStopped moves a subscription to Stopped from any state.
func (r *Registry) MarkStopped(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		r.logger.Warn("mark stopped: unknown subscription", "sub_id", id)
		return false
	}
	sub.State = Stopped
	sub.Err = nil
	return true
}

// MarkErrored moves a Pending or Started subscription to Errored. A
// subscription already Errored keeps its first error; a Stopped one stays
// Stopped.
func (r *Registry) MarkErrored(id string, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		r.logger.Warn("mark errored: unknown subscription", "sub_id", id, "error", err)
		return false
	}

	switch sub.State {
	case Pending, Started:
		sub.State = Errored
		sub.Err = err
		return true
	case Errored:
		return true
	default:
		return false
	}
}

// TakePending returns the subscriptions still Pending, in registration
// order, and empties the pending queue.
func (r *Registry) TakePending() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Subscription
	seen := make(map[string]struct{})
	for r.pending.Length() > 0 {
		id := r.pending.Remove().(string)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		sub, ok := r.subs[id]
		if !ok || sub.State != Pending {
			continue
		}
		out = append(out, *sub)
	}
	return out
}

// Requeue returns an Errored or Started subscription to Pending so that it
// is started again on the next acknowledgement.
func (r *Registry) Requeue(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return false
	}
	switch sub.State {
	case Started, Errored:
		sub.State = Pending
		sub.Err = nil
		r.pending.Add(id)
		return true
	default:
		return false
	}
}

// InvalidateAll moves every Pending and Started subscription to Errored and
// returns copies of those that changed, in registration order.
func (r *Registry) InvalidateAll(err error) []Subscription {
	return r.invalidate(err, true)
}

// InvalidateStarted moves every Started subscription to Errored and returns
// copies of those that changed. Pending subscriptions stay queued.
func (r *Registry) InvalidateStarted(err error) []Subscription {
	return r.invalidate(err, false)
}

func (r *Registry) invalidate(err error, includePending bool) []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Subscription
	for _, sub := range r.subs {
		switch {
		case sub.State == Started:
		case sub.State == Pending && includePending:
		default:
			continue
		}
		sub.State = Errored
		sub.Err = err
		out = append(out, *sub)
	}
	sortBySeq(out)
	return out
}

// Remove deletes a subscription. Returns false if it was not registered.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// All returns copies of every subscription in registration order.
func (r *Registry) All() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	sortBySeq(out)
	return out
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Counts returns the number of subscriptions per state.
func (r *Registry) Counts() map[State]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[State]int)
	for _, sub := range r.subs {
		counts[sub.State]++
	}
	return counts
}

func sortBySeq(subs []Subscription) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
}
