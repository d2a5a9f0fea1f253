package cache

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Keksclan/rawrsync/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultGCTime is how long an entry without subscribers is retained.
	DefaultGCTime = 5 * time.Minute

	// DefaultMaxRetained bounds the retained pool.
	DefaultMaxRetained = 10_000
)

// Listener is invoked with every entry published for a subscribed key.
// Listeners run on the publishing goroutine after the store lock has been
// released, so they may call back into the Store. Deliveries for one key can
// race when two goroutines publish concurrently; Entry.Version orders them.
type Listener func(k Key, e *Entry)

// Config controls a Store.
type Config struct {
	// GCTime is how long an entry without subscribers stays retained before
	// it may be evicted. A negative value disables eviction; zero selects
	// DefaultGCTime.
	GCTime time.Duration

	// MaxRetained bounds the number of retained entries. Zero selects
	// DefaultMaxRetained.
	MaxRetained int64

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Store is the cache store. All methods are safe for concurrent use; every
// mutation of a key happens under a single lock and never spans a network
// call.
type Store struct {
	id      string
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	slots  map[Key]*slot
	pool   *retained // nil when eviction is disabled
	pooled map[Key]struct{}
	subSeq uint64
	outbox chan []Target // nil until Attach
	relay  <-chan struct{}
}

// slot is the mutable bookkeeping behind one key.
type slot struct {
	entry     *Entry
	epoch     uint64 // bumped by every invalidation of the key
	floor     uint64 // epoch of the last removal; flights begun earlier are dropped
	flight    *Flight
	listeners []listenerRef
}

type listenerRef struct {
	id uint64
	fn Listener
}

type notification struct {
	key       Key
	entry     *Entry
	listeners []Listener
}

// NewStore creates an empty Store.
func NewStore(cfg Config) (*Store, error) {
	s := &Store{
		id:      uuid.NewString(),
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		slots:   make(map[Key]*slot),
		pooled:  make(map[Key]struct{}),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	gc := cfg.GCTime
	if gc == 0 {
		gc = DefaultGCTime
	}
	if gc > 0 {
		maxRetained := cfg.MaxRetained
		if maxRetained <= 0 {
			maxRetained = DefaultMaxRetained
		}
		pool, err := newRetained(maxRetained, gc)
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	return s, nil
}

// ID identifies the store as the origin of bus messages.
func (s *Store) ID() string { return s.id }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.clock.Now() }

// Get returns the current entry for k. Retained entries are returned without
// being revived.
func (s *Store) Get(k Key) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.lookupLocked(k)
	if !ok {
		return nil, false
	}
	return sl.entry, true
}

// Set replaces the entry for k. The store keeps its own copy of e; the
// Version field is assigned by the store.
func (s *Store) Set(k Key, e *Entry) {
	s.mu.Lock()
	sl := s.liveLocked(k)
	n := s.publishLocked(k, sl, e.clone())
	s.retireLocked(k, sl)
	s.gaugeLocked()
	s.mu.Unlock()

	deliver(n)
}

// Subscribe registers l for every publication on k and creates an idle entry
// when none exists. The returned function removes the listener; calling it
// more than once is harmless.
func (s *Store) Subscribe(k Key, l Listener) (unsubscribe func()) {
	s.mu.Lock()
	sl := s.liveLocked(k)
	s.subSeq++
	id := s.subSeq
	sl.listeners = append(sl.listeners, listenerRef{id: id, fn: l})
	s.gaugeLocked()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			sl.listeners = slices.DeleteFunc(sl.listeners, func(r listenerRef) bool { return r.id == id })
			if s.slots[k] == sl {
				s.retireLocked(k, sl)
			}
			s.gaugeLocked()
		})
	}
}

// Subscribers returns the number of listeners registered for k.
func (s *Store) Subscribers(k Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[k]; ok {
		return len(sl.listeners)
	}
	return 0
}

// Begin starts a fetch for k or joins the one already in flight. started is
// true when the caller owns the new flight and must resolve it with Settle.
// Starting a flight publishes a pending entry that keeps the previous data.
func (s *Store) Begin(k Key) (f *Flight, started bool) {
	f, started, _ = s.BeginIf(k, nil)
	return f, started
}

// BeginIf is Begin guarded by need, which is evaluated under the store lock
// against the current entry (Idle when k has no state) and must not call
// back into the Store. When need reports false no flight is started or
// joined and f is nil. e is the entry after the call. A nil need always
// proceeds.
func (s *Store) BeginIf(k Key, need func(*Entry) bool) (f *Flight, started bool, e *Entry) {
	s.mu.Lock()
	current := idleEntry
	if sl, ok := s.lookupLocked(k); ok {
		current = sl.entry
	}
	if need != nil && !need(current) {
		s.mu.Unlock()
		return nil, false, current
	}

	sl := s.liveLocked(k)
	if sl.flight != nil {
		f, e = sl.flight, sl.entry
		s.mu.Unlock()
		return f, false, e
	}

	f = &Flight{
		done:    make(chan struct{}),
		slot:    sl,
		epoch:   sl.epoch,
		started: s.clock.Now(),
	}
	sl.flight = f
	e = sl.entry.clone()
	e.Status = StatusPending
	e.Err = nil
	e.Stale = false
	e.Fetching = true
	n := s.publishLocked(k, sl, e)
	s.gaugeLocked()
	s.mu.Unlock()

	deliver(n)
	return f, true, e
}

// Flight returns the fetch currently in flight for k, if any.
func (s *Store) Flight(k Key) (*Flight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[k]; ok && sl.flight != nil {
		return sl.flight, true
	}
	return nil, false
}

// Settle resolves f with the fetch outcome and publishes the resulting entry.
// When k was invalidated after f began, the entry lands stale so the next
// evaluation refetches; when k was removed after f began, the result is only
// handed to the flight's waiters.
func (s *Store) Settle(k Key, f *Flight, data any, err error) {
	s.mu.Lock()
	f.data, f.err = data, err

	var n []notification
	sl := f.slot
	if sl.flight == f {
		sl.flight = nil
	}
	// A removal after f began raised the floor, possibly on a slot that has
	// since been dropped from the store.
	if f.epoch >= sl.floor {
		prev := sl.entry
		e := &Entry{
			UpdatedAt: s.clock.Now(),
			Stale:     f.epoch != sl.epoch,
			Fetching:  sl.flight != nil,
		}
		if err == nil {
			e.Status = StatusSuccess
			e.Data = data
			e.HasData = true
		} else {
			e.Status = StatusError
			e.Err = err
			e.Data = prev.Data
			e.HasData = prev.HasData
		}
		if e.Fetching {
			e.Status = StatusPending
		}
		n = s.publishLocked(k, sl, e)
	}
	if s.slots[k] == sl {
		s.retireLocked(k, sl)
	}
	s.gaugeLocked()
	close(f.done)
	s.mu.Unlock()

	deliver(n)
}

// MarkStale flags the entry for k so the next evaluation refetches it. The
// data is kept (stale-while-revalidate). The invalidation is recorded even
// while a fetch is pending so that fetch lands stale. It reports whether an
// entry existed.
func (s *Store) MarkStale(k Key) bool {
	s.mu.Lock()
	sl, ok := s.lookupLocked(k)
	var n []notification
	if ok {
		n = s.markStaleLocked(k, sl)
	}
	s.mu.Unlock()

	deliver(n)
	return ok
}

// Remove evicts k. Subscribers receive an idle entry and a fetch that began
// before the removal can no longer repopulate the key.
func (s *Store) Remove(k Key) bool {
	s.mu.Lock()
	n, ok := s.removeLocked(k)
	s.gaugeLocked()
	s.mu.Unlock()

	deliver(n)
	return ok
}

// Invalidate applies targets and returns the keys it touched. When a Bus is
// attached the targets are also published for other processes.
func (s *Store) Invalidate(targets ...Target) []Key {
	keys := s.apply(targets)

	s.mu.Lock()
	out, done := s.outbox, s.relay
	s.mu.Unlock()
	if out != nil && len(targets) > 0 {
		select {
		case out <- targets:
		case <-done:
		}
	}
	return keys
}

// Keys returns every key with state, live or retained, in string order.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]Key, 0, len(s.slots)+len(s.pooled))
	for k := range s.slots {
		keys = append(keys, k)
	}
	for k := range s.pooled {
		if _, ok := s.lookupLocked(k); ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Compare(a.String(), b.String())
	})
	return keys
}

// Len returns the number of live and retained entries.
func (s *Store) Len() (live, retained int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots), len(s.pooled)
}

// Close releases the retained pool.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.close()
		s.pool = nil
		clear(s.pooled)
	}
}

func (s *Store) apply(targets []Target) []Key {
	s.mu.Lock()
	var (
		keys []Key
		ns   []notification
		seen = make(map[Key]bool)
	)
	for _, t := range targets {
		for _, k := range s.resolveLocked(t) {
			var n []notification
			if t.Kind == TargetRemove {
				n, _ = s.removeLocked(k)
			} else if sl, ok := s.lookupLocked(k); ok {
				n = s.markStaleLocked(k, sl)
			}
			ns = append(ns, n...)
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	s.gaugeLocked()
	s.mu.Unlock()

	deliver(ns)
	if len(keys) > 0 {
		s.logger.Debug("cache: invalidated", "targets", len(targets), "keys", len(keys))
	}
	return keys
}

// resolveLocked expands t into the keys that currently have state.
func (s *Store) resolveLocked(t Target) []Key {
	if t.Kind != TargetResource {
		if _, ok := s.lookupLocked(t.Key); ok {
			return []Key{t.Key}
		}
		return nil
	}
	var keys []Key
	for k := range s.slots {
		if t.Matches(k) {
			keys = append(keys, k)
		}
	}
	for k := range s.pooled {
		if t.Matches(k) {
			if _, ok := s.lookupLocked(k); ok {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func (s *Store) publish(bus Bus, targets []Target) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, Invalidation{Origin: s.id, Targets: targets}); err != nil {
		s.logger.Warn("cache: publish invalidation failed", "error", err)
	}
}

// lookupLocked finds the slot for k among live and retained slots.
func (s *Store) lookupLocked(k Key) (*slot, bool) {
	if sl, ok := s.slots[k]; ok {
		return sl, true
	}
	if _, ok := s.pooled[k]; ok && s.pool != nil {
		if sl, ok := s.pool.get(k); ok {
			return sl, true
		}
		// Evicted by the pool.
		delete(s.pooled, k)
	}
	return nil, false
}

// liveLocked returns the live slot for k, reviving a retained slot or
// creating an idle one.
func (s *Store) liveLocked(k Key) *slot {
	if sl, ok := s.slots[k]; ok {
		return sl
	}
	if _, ok := s.pooled[k]; ok && s.pool != nil {
		delete(s.pooled, k)
		if sl, ok := s.pool.get(k); ok {
			s.pool.del(k)
			s.slots[k] = sl
			return sl
		}
	}
	sl := &slot{entry: idleEntry}
	s.slots[k] = sl
	return sl
}

// retireLocked moves sl out of the live map once nothing references it.
func (s *Store) retireLocked(k Key, sl *slot) {
	if len(sl.listeners) > 0 || sl.flight != nil || s.pool == nil {
		return
	}
	delete(s.slots, k)
	if sl.entry.Status == StatusIdle {
		return
	}
	s.pool.put(k, sl)
	s.pooled[k] = struct{}{}
}

func (s *Store) markStaleLocked(k Key, sl *slot) []notification {
	sl.epoch++
	s.metrics.Invalidated(string(k.Resource), metrics.InvalidateStale)
	switch sl.entry.Status {
	case StatusSuccess, StatusError:
		if sl.entry.Stale {
			return nil
		}
		e := sl.entry.clone()
		e.Stale = true
		return s.publishLocked(k, sl, e)
	}
	return nil
}

func (s *Store) removeLocked(k Key) ([]notification, bool) {
	sl, ok := s.lookupLocked(k)
	if !ok {
		return nil, false
	}
	s.metrics.Invalidated(string(k.Resource), metrics.InvalidateRemove)
	sl.epoch++
	sl.floor = sl.epoch
	sl.flight = nil
	n := s.publishLocked(k, sl, &Entry{Status: StatusIdle})
	if len(sl.listeners) == 0 {
		delete(s.slots, k)
		if _, pooled := s.pooled[k]; pooled {
			delete(s.pooled, k)
			s.pool.del(k)
		}
	}
	return n, true
}

// publishLocked installs e as the entry for k and returns the deliveries the
// caller must make once the lock is released.
func (s *Store) publishLocked(k Key, sl *slot, e *Entry) []notification {
	e.Version = sl.entry.Version + 1
	sl.entry = e
	if len(sl.listeners) == 0 {
		return nil
	}
	fns := make([]Listener, len(sl.listeners))
	for i, r := range sl.listeners {
		fns[i] = r.fn
	}
	return []notification{{key: k, entry: e, listeners: fns}}
}

func (s *Store) gaugeLocked() {
	s.metrics.SetEntries(len(s.slots), len(s.pooled))
}

func deliver(ns []notification) {
	for _, n := range ns {
		for _, fn := range n.listeners {
			fn(n.key, n.entry)
		}
	}
}

// Flight is a fetch in progress, shared by every caller of the same key.
type Flight struct {
	done    chan struct{}
	slot    *slot
	epoch   uint64
	started time.Time
	data    any
	err     error
}

// Done is closed once the flight has settled.
func (f *Flight) Done() <-chan struct{} { return f.done }

// Result blocks until the flight settles and returns its outcome.
func (f *Flight) Result() (any, error) {
	<-f.done
	return f.data, f.err
}

// Started returns when the flight began.
func (f *Flight) Started() time.Time { return f.started }
