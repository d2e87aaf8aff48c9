// Package inmemorystore provides a thread-safe, in-memory implementation of
// nodestore.Store with bounded run retention.
//
// # Characteristics
//
//   - **Ephemeral:** nothing survives the process unless a Sink is attached
//   - **Per-run locking:** runs never contend with each other
//   - **Bounded:** only the most recent runs are kept (32 by default); when a
//     new run is opened the oldest closed runs are evicted. Runs that are
//     still open are never evicted, so the limit may be exceeded while more
//     runs than that are in flight
package inmemorystore

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/cyclegrid/internal/ctxlog"
	"github.com/specialistvlad/cyclegrid/internal/nodestore"
)

// DefaultRetention is the number of runs kept when no option overrides it.
const DefaultRetention = 32

// Option configures a Store.
type Option func(*Store)

// WithRetention keeps at most n closed runs. Values below one keep a single
// run.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n < 1 {
			n = 1
		}
		s.retention = n
	}
}

// WithSink forwards every accepted record to sink. Sink failures are logged
// and do not fail the write.
func WithSink(sink nodestore.Sink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

type run struct {
	mu      sync.RWMutex
	records map[nodestore.Key]nodestore.Record
	order   []nodestore.Key
	elem    *list.Element
	closed  bool
}

// Store is an in-memory nodestore.Store.
type Store struct {
	mu        sync.Mutex
	runs      map[string]*run
	lru       *list.List
	retention int
	sink      nodestore.Sink
}

var _ nodestore.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		runs:      make(map[string]*run),
		lru:       list.New(),
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open registers a run, evicting the oldest closed runs beyond the retention
// limit.
func (s *Store) Open(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return fmt.Errorf("%w: %q", nodestore.ErrRunExists, runID)
	}
	r := &run{records: make(map[nodestore.Key]nodestore.Record)}
	r.elem = s.lru.PushBack(runID)
	s.runs[runID] = r

	s.evictLocked(ctx)
	return nil
}

// evictLocked drops closed runs, oldest first, until the store is within its
// retention limit. s.mu must be held.
func (s *Store) evictLocked(ctx context.Context) {
	for e := s.lru.Front(); e != nil && s.lru.Len() > s.retention; {
		next := e.Next()
		id := e.Value.(string)
		if s.runs[id].closed {
			s.lru.Remove(e)
			delete(s.runs, id)
			ctxlog.FromContext(ctx).Debug("Evicted run from result store.", "runID", id, "retention", s.retention)
		}
		e = next
	}
}

// Close marks the run finished, making it eligible for eviction.
func (s *Store) Close(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[runID]; ok {
		r.closed = true
	}
	return nil
}

func (s *Store) lookup(runID string) (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", nodestore.ErrRunNotFound, runID)
	}
	return r, nil
}

// Record appends rec. Keys are write-once.
func (s *Store) Record(ctx context.Context, rec nodestore.Record) error {
	r, err := s.lookup(rec.RunID)
	if err != nil {
		return err
	}
	key := rec.Key()

	r.mu.Lock()
	if _, exists := r.records[key]; exists {
		r.mu.Unlock()
		return &nodestore.DuplicateRecordError{Key: key}
	}
	r.records[key] = rec
	r.order = append(r.order, key)
	r.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Append(ctx, rec); err != nil {
			ctxlog.FromContext(ctx).Warn("Result sink rejected record.", "runID", rec.RunID, "nodeID", rec.NodeID, "iteration", rec.Iteration, "error", err)
		}
	}
	return nil
}

// Get returns the node's record with the highest iteration.
func (s *Store) Get(ctx context.Context, runID, nodeID string) (nodestore.Record, error) {
	all, err := s.GetAllIterations(ctx, runID, nodeID)
	if err != nil {
		return nodestore.Record{}, err
	}
	return all[len(all)-1], nil
}

// GetIteration returns the record stored under one key.
func (s *Store) GetIteration(_ context.Context, runID, nodeID string, iteration int) (nodestore.Record, error) {
	r, err := s.lookup(runID)
	if err != nil {
		return nodestore.Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[nodestore.Key{RunID: runID, NodeID: nodeID, Iteration: iteration}]
	if !ok {
		return nodestore.Record{}, fmt.Errorf("%w: run %q node %q iteration %d", nodestore.ErrRecordNotFound, runID, nodeID, iteration)
	}
	return rec, nil
}

// GetAllIterations returns the node's records sorted by iteration.
func (s *Store) GetAllIterations(_ context.Context, runID, nodeID string) ([]nodestore.Record, error) {
	r, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []nodestore.Record
	for _, key := range r.order {
		if key.NodeID == nodeID {
			out = append(out, r.records[key])
		}
	}
	r.mu.RUnlock()

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: run %q node %q", nodestore.ErrRecordNotFound, runID, nodeID)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out, nil
}

// Records returns all records of the run in write order.
func (s *Store) Records(_ context.Context, runID string) ([]nodestore.Record, error) {
	r, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]nodestore.Record, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key])
	}
	return out, nil
}

// Release drops the run.
func (s *Store) Release(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[runID]; ok {
		s.lru.Remove(r.elem)
		delete(s.runs, runID)
	}
	return nil
}

// Len returns the number of runs currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
