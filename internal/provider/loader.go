// Package provider acquires the mapping provider's API key and loads the
// provider SDK exactly once per process, exposing a readiness signal to the
// components that depend on it.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"googlemaps.github.io/maps"
)

// defaultLoadTimeout bounds the whole key-fetch + SDK-load chain.
const defaultLoadTimeout = 15 * time.Second

// State is the provider readiness state. Transitions only move forward,
// except that a key-fetch failure returns the loader to Unloaded.
type State int

const (
	Unloaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Readiness is a point-in-time view of the loader state. Reason is set only
// when State is Failed.
type Readiness struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// SDK is the loaded provider handle shared by every consumer.
type SDK struct {
	Key  string
	Maps *maps.Client
}

// KeyFetchError means the API key could not be obtained. The loader returns
// to Unloaded, so a later Acquire retries.
type KeyFetchError struct {
	Err error
}

func (e *KeyFetchError) Error() string { return fmt.Sprintf("provider: key fetch: %v", e.Err) }
func (e *KeyFetchError) Unwrap() error { return e.Err }

// ScriptLoadError means the SDK failed to load after a key was obtained.
// It is terminal for the process.
type ScriptLoadError struct {
	Err error
}

func (e *ScriptLoadError) Error() string { return fmt.Sprintf("provider: sdk load: %v", e.Err) }
func (e *ScriptLoadError) Unwrap() error { return e.Err }

// Injector loads the provider SDK bound to key.
type Injector interface {
	Inject(ctx context.Context, key string) (*SDK, error)
}

// Logger is a printf-style logging function.
type Logger func(format string, args ...any)

// Loader is the process-wide owner of provider readiness. Construct one at
// startup and pass it to every consumer.
type Loader struct {
	keys     *KeyCache
	injector Injector
	timeout  time.Duration
	logger   Logger

	mu         sync.Mutex
	state      State
	sdk        *SDK
	err        error
	pending    *pendingLoad
	injections int
}

// pendingLoad is the single in-flight load shared by all concurrent callers.
type pendingLoad struct {
	done chan struct{}
	sdk  *SDK
	err  error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoadTimeout bounds the key fetch + SDK load chain.
func WithLoadTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

// WithLogger sets a logger for load transitions.
func WithLogger(lg Logger) LoaderOption {
	return func(l *Loader) { l.logger = lg }
}

// NewLoader creates a Loader in the Unloaded state.
func NewLoader(keys *KeyCache, injector Injector, opts ...LoaderOption) *Loader {
	l := &Loader{keys: keys, injector: injector, timeout: defaultLoadTimeout}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Acquire returns the loaded SDK, loading it on first use.
//
// Callers that arrive while a load is in flight wait on the same load. ctx
// only bounds the caller's own wait: the shared load keeps running when a
// waiter gives up.
func (l *Loader) Acquire(ctx context.Context) (*SDK, error) {
	l.mu.Lock()
	var p *pendingLoad
	switch l.state {
	case Ready:
		sdk := l.sdk
		l.mu.Unlock()
		return sdk, nil
	case Failed:
		err := l.err
		l.mu.Unlock()
		return nil, err
	case Loading:
		p = l.pending
	default:
		p = &pendingLoad{done: make(chan struct{})}
		l.pending = p
		l.state = Loading
		go l.load(p)
	}
	l.mu.Unlock()

	select {
	case <-p.done:
		return p.sdk, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready blocks until the provider is usable and reports why it is not.
func (l *Loader) Ready(ctx context.Context) error {
	_, err := l.Acquire(ctx)
	return err
}

// Status reports the current readiness without triggering a load.
func (l *Loader) Status() Readiness {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := Readiness{State: l.state}
	if l.state == Failed && l.err != nil {
		r.Reason = l.err.Error()
	}
	return r
}

func (l *Loader) load(p *pendingLoad) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	defer close(p.done)

	key, err := l.keys.Get(ctx)
	if err != nil {
		p.err = &KeyFetchError{Err: err}
		l.mu.Lock()
		l.state = Unloaded
		l.pending = nil
		l.mu.Unlock()
		l.logf("provider: key fetch failed, will retry on next acquire: %v", err)
		return
	}

	l.mu.Lock()
	l.injections++
	l.mu.Unlock()

	sdk, err := l.injector.Inject(ctx, key)
	if err == nil && sdk == nil {
		err = errors.New("injector returned no SDK")
	}
	if err != nil {
		p.err = &ScriptLoadError{Err: err}
		l.mu.Lock()
		l.state = Failed
		l.err = p.err
		l.pending = nil
		l.mu.Unlock()
		l.logf("provider: sdk load failed: %v", err)
		return
	}

	p.sdk = sdk
	l.mu.Lock()
	l.state = Ready
	l.sdk = sdk
	l.pending = nil
	l.mu.Unlock()
	l.logf("provider: ready")
}

func (l *Loader) logf(format string, args ...any) {
	if l.logger != nil {
		l.logger(format, args...)
	}
}
