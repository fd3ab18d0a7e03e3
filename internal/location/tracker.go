package location

import (
	"context"
	"fmt"
	"sync"
)

// Tracker wraps a Geolocator and emits samples whose heading is always set.
//
// A Tracker holds at most one watch at a time. The watch is owned by the
// Subscription returned from Start: closing it (or calling Stop) releases
// the underlying device watch.
type Tracker struct {
	geo  Geolocator
	opts Options

	mu       sync.Mutex
	resolver headingResolver
	watching bool
	gen      uint64
	watchID  WatchID
	hasID    bool
	sub      *Subscription
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithWatchOptions overrides WatchDefaults for continuous tracking.
func WithWatchOptions(o Options) TrackerOption {
	return func(t *Tracker) { t.opts = o }
}

// NewTracker creates a Tracker over geo. A nil geo models a host without
// geolocation capability.
func NewTracker(geo Geolocator, opts ...TrackerOption) *Tracker {
	t := &Tracker{geo: geo, opts: WatchDefaults}
	for _, o := range opts {
		o(t)
	}
	return t
}

// CurrentSample requests a single fix and resolves its heading against the
// retained previous sample.
func (t *Tracker) CurrentSample(ctx context.Context) (Sample, error) {
	if t.geo == nil {
		return Sample{}, ErrUnsupported
	}

	fix, err := t.geo.CurrentPosition(ctx, OneShotDefaults)
	if err != nil {
		return Sample{}, fmt.Errorf("location: current sample: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolver.resolve(fix), nil
}

// Start begins watching the device position. Calling Start while a watch is
// active returns the existing subscription.
func (t *Tracker) Start() (*Subscription, error) {
	if t.geo == nil {
		return nil, ErrUnsupported
	}

	t.mu.Lock()
	if t.watching {
		sub := t.sub
		t.mu.Unlock()
		return sub, nil
	}
	t.gen++
	gen := t.gen
	t.watching = true
	t.hasID = false
	sub := newSubscription(t)
	t.sub = sub
	t.mu.Unlock()

	// WatchPosition is called without holding mu: some geolocators deliver
	// the first fix synchronously.
	id := t.geo.WatchPosition(t.opts,
		func(fix Fix) { t.handleFix(gen, fix) },
		func(perr *PositionError) { t.handleError(gen, perr) },
	)

	t.mu.Lock()
	if !t.watching || t.gen != gen {
		// Stopped before the watch ID was known.
		t.mu.Unlock()
		t.geo.ClearWatch(id)
		return sub, nil
	}
	t.watchID = id
	t.hasID = true
	t.mu.Unlock()

	return sub, nil
}

// Stop releases the device watch. It is a no-op when not watching.
// Fixes already queued by the device are dropped.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.watching {
		t.mu.Unlock()
		return
	}
	t.watching = false
	id, hasID := t.watchID, t.hasID
	t.hasID = false
	t.sub.closeLocked()
	t.sub = nil
	t.mu.Unlock()

	if hasID {
		t.geo.ClearWatch(id)
	}
}

func (t *Tracker) handleFix(gen uint64, fix Fix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.watching || t.gen != gen {
		return
	}
	offer(t.sub.samples, t.resolver.resolve(fix))
}

func (t *Tracker) handleError(gen uint64, perr *PositionError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.watching || t.gen != gen {
		return
	}
	offer(t.sub.errs, perr)
}

// stopSub stops the tracker only if sub is still the active subscription.
func (t *Tracker) stopSub(sub *Subscription) {
	t.mu.Lock()
	active := t.watching && t.sub == sub
	t.mu.Unlock()
	if active {
		t.Stop()
	}
}

// Subscription is the consumer side of a watch. Each channel holds at most
// one pending value; a newer value replaces an unread one, so a slow consumer
// only ever sees the latest sample.
type Subscription struct {
	t       *Tracker
	samples chan Sample
	errs    chan *PositionError
	done    chan struct{}
}

func newSubscription(t *Tracker) *Subscription {
	return &Subscription{
		t:       t,
		samples: make(chan Sample, 1),
		errs:    make(chan *PositionError, 1),
		done:    make(chan struct{}),
	}
}

// Samples delivers resolved samples in device order. Closed on stop.
func (s *Subscription) Samples() <-chan Sample { return s.samples }

// Errors delivers transient per-fix errors. Closed on stop.
func (s *Subscription) Errors() <-chan *PositionError { return s.errs }

// Done is closed when the watch stops.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the watch this subscription owns. Safe to call repeatedly.
func (s *Subscription) Close() { s.t.stopSub(s) }

// closeLocked must be called with the tracker's mu held.
func (s *Subscription) closeLocked() {
	close(s.samples)
	close(s.errs)
	close(s.done)
}

// offer performs a latest-wins send on a 1-buffered channel. Callers must be
// the channel's only sender.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
