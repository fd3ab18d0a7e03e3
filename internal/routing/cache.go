package routing

import (
	"context"
	"strconv"
	"time"

	"github.com/mmcloughlin/geohash"
	"golang.org/x/sync/singleflight"
)

const (
	// cacheTTL is how long a cached route stays valid.
	cacheTTL = 120 * time.Second

	cacheQueryTimeout = 5 * time.Second

	// geohashPrecision 7 is a cell of roughly 150m, close enough that a
	// route between two cells is still a good answer for any pair inside them.
	geohashPrecision = 7
)

// CacheKey identifies a route by the geohash cells of both endpoints.
type CacheKey struct {
	Origin      string
	Destination string
}

func (k CacheKey) String() string {
	return k.Origin + ">" + k.Destination
}

// KeyFor returns the cache key of req.
func KeyFor(req Request) CacheKey {
	return CacheKey{
		Origin:      geohash.EncodeWithPrecision(req.OriginLat, req.OriginLng, geohashPrecision),
		Destination: geohash.EncodeWithPrecision(req.DestinationLat, req.DestinationLng, geohashPrecision),
	}
}

// CacheStore persists cached routes.
type CacheStore interface {
	// GetCachedRoute returns the live entry for key, or (nil, nil) on a miss.
	GetCachedRoute(ctx context.Context, key CacheKey) (*Response, error)
	// SetCachedRoute upserts the entry for key, expiring at expiresAt.
	SetCachedRoute(ctx context.Context, key CacheKey, resp *Response, expiresAt time.Time) error
}

// CachedRouter wraps another Router with a cache-aside layer. Concurrent
// misses for the same key share one upstream call.
type CachedRouter struct {
	inner      Router
	store      CacheStore
	group      singleflight.Group
	logger     Logger
	now        func() time.Time
	afterStore func() // test hook, called after every async store attempt
}

// CachedRouterOption configures a CachedRouter.
type CachedRouterOption func(*CachedRouter)

// WithLogger sets the logger called when a cache read or write fails.
func WithLogger(l Logger) CachedRouterOption {
	return func(r *CachedRouter) { r.logger = l }
}

func withAfterStore(fn func()) CachedRouterOption {
	return func(r *CachedRouter) { r.afterStore = fn }
}

// NewCachedRouter wraps inner with a cache backed by store.
func NewCachedRouter(inner Router, store CacheStore, opts ...CachedRouterOption) *CachedRouter {
	r := &CachedRouter{inner: inner, store: store, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route implements Router. Cache read failures fall through to the inner
// router. Fallback estimates are returned but never stored.
func (r *CachedRouter) Route(ctx context.Context, req Request) (*Response, error) {
	key := KeyFor(req)

	cached, err := r.store.GetCachedRoute(ctx, key)
	if err != nil {
		r.logf("routing: cache: read failed (%s): %v", key, err)
	}
	if cached != nil {
		return cached, nil
	}

	v, err, _ := r.group.Do(key.String()+"|"+coords(req), func() (any, error) {
		return r.inner.Route(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	resp := v.(*Response)
	if resp.IsFallback {
		return resp, nil
	}

	// Written in the background so the caller does not wait on the cache.
	go func() {
		storeCtx, cancel := context.WithTimeout(context.Background(), cacheQueryTimeout)
		defer cancel()
		if err := r.store.SetCachedRoute(storeCtx, key, resp, r.now().Add(cacheTTL)); err != nil {
			r.logf("routing: cache: async write failed (%s): %v", key, err)
		}
		if r.afterStore != nil {
			r.afterStore()
		}
	}()

	out := *resp
	return &out, nil
}

func (r *CachedRouter) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger(format, args...)
	}
}

func coords(req Request) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return f(req.OriginLat) + "," + f(req.OriginLng) + ">" + f(req.DestinationLat) + "," + f(req.DestinationLng)
}
