package location

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Feed is a Geolocator whose fixes are pushed in from outside, typically by
// the device reporting its position over HTTP.
//
// Each watch created with a non-zero Timeout receives a Timeout error whenever
// no fix arrives within that window; the watch keeps running afterwards.
type Feed struct {
	// deliverMu serializes callback delivery so watchers observe fixes and
	// errors in push order. It is never held while mu is released and
	// reacquired by a callback.
	deliverMu sync.Mutex

	mu      sync.Mutex
	nextID  WatchID
	watches map[WatchID]*feedWatch
	waiters map[chan feedResult]struct{}
	last    *Fix
}

type feedWatch struct {
	onFix        func(Fix)
	onErr        func(*PositionError)
	timeout      time.Duration
	timer        *time.Timer
	lastActivity time.Time
}

type feedResult struct {
	fix Fix
	err *PositionError
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{
		watches: make(map[WatchID]*feedWatch),
		waiters: make(map[chan feedResult]struct{}),
	}
}

// Push delivers fix to every active watch and pending one-shot request.
// A zero Timestamp is replaced with the current time.
func (f *Feed) Push(fix Fix) {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}

	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	last := fix
	f.last = &last
	waiters := f.drainWaitersLocked()
	ids, watches := f.snapshotLocked()
	now := time.Now()
	for _, w := range watches {
		w.lastActivity = now
		if w.timer != nil {
			w.timer.Reset(w.timeout)
		}
	}
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- feedResult{fix: fix}
	}
	for i, w := range watches {
		if f.active(ids[i]) {
			w.onFix(fix)
		}
	}
}

// Fail delivers a device-side error (for example, the user revoked location
// permission) to every active watch and pending one-shot request.
func (f *Feed) Fail(perr *PositionError) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	waiters := f.drainWaitersLocked()
	ids, watches := f.snapshotLocked()
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- feedResult{err: perr}
	}
	for i, w := range watches {
		if f.active(ids[i]) {
			w.onErr(perr)
		}
	}
}

// CurrentPosition returns a cached fix when opts.MaximumAge allows it, and
// otherwise waits for the next pushed fix.
func (f *Feed) CurrentPosition(ctx context.Context, opts Options) (Fix, error) {
	f.mu.Lock()
	if f.last != nil && opts.MaximumAge > 0 && time.Since(f.last.Timestamp) <= opts.MaximumAge {
		fix := *f.last
		f.mu.Unlock()
		return fix, nil
	}
	ch := make(chan feedResult, 1)
	f.waiters[ch] = struct{}{}
	f.mu.Unlock()

	var timeoutC <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return Fix{}, r.err
		}
		return r.fix, nil
	case <-timeoutC:
		f.removeWaiter(ch)
		return Fix{}, &PositionError{Code: Timeout, Message: fmt.Sprintf("no fix within %s", opts.Timeout)}
	case <-ctx.Done():
		f.removeWaiter(ch)
		return Fix{}, ctx.Err()
	}
}

// WatchPosition registers a watch. Callbacks run on the pushing goroutine
// or, for timeouts, on a timer goroutine.
func (f *Feed) WatchPosition(opts Options, onFix func(Fix), onErr func(*PositionError)) WatchID {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	w := &feedWatch{onFix: onFix, onErr: onErr, timeout: opts.Timeout, lastActivity: time.Now()}
	if opts.Timeout > 0 {
		w.timer = time.AfterFunc(opts.Timeout, func() { f.fireTimeout(id) })
	}
	f.watches[id] = w
	return id
}

// ClearWatch removes a watch. Unknown IDs are ignored.
func (f *Feed) ClearWatch(id WatchID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.watches[id]
	if !ok {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(f.watches, id)
}

func (f *Feed) fireTimeout(id WatchID) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	w, ok := f.watches[id]
	if !ok {
		f.mu.Unlock()
		return
	}
	// A Push may have re-armed the timer while this callback waited on
	// deliverMu.
	if time.Since(w.lastActivity) < w.timeout {
		f.mu.Unlock()
		return
	}
	w.lastActivity = time.Now()
	w.timer.Reset(w.timeout)
	f.mu.Unlock()

	w.onErr(&PositionError{Code: Timeout, Message: fmt.Sprintf("no fix within %s", w.timeout)})
}

func (f *Feed) active(id WatchID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.watches[id]
	return ok
}

func (f *Feed) snapshotLocked() ([]WatchID, []*feedWatch) {
	ids := make([]WatchID, 0, len(f.watches))
	watches := make([]*feedWatch, 0, len(f.watches))
	for id, w := range f.watches {
		ids = append(ids, id)
		watches = append(watches, w)
	}
	return ids, watches
}

func (f *Feed) drainWaitersLocked() []chan feedResult {
	if len(f.waiters) == 0 {
		return nil
	}
	out := make([]chan feedResult, 0, len(f.waiters))
	for ch := range f.waiters {
		out = append(out, ch)
	}
	f.waiters = make(map[chan feedResult]struct{})
	return out
}

func (f *Feed) removeWaiter(ch chan feedResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.waiters, ch)
}
