package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/location"
	"github.com/FooledKiwi/ridemap-api/internal/storage"
)

// ErrInvalidPosition is returned for coordinates outside WGS-84 bounds.
var ErrInvalidPosition = errors.New("invalid position")

const (
	defaultIdleAfter     = 5 * time.Minute
	positionWriteTimeout = 5 * time.Second
)

// PositionStore persists resolved vehicle positions.
type PositionStore interface {
	UpsertPosition(ctx context.Context, p storage.VehiclePosition) error
	GetPosition(ctx context.Context, vehicleID int32) (*storage.VehiclePosition, error)
}

// PositionService ingests device fixes per vehicle. Each vehicle gets its own
// Feed and Tracker; resolved samples are persisted and fanned out to
// followers.
type PositionService struct {
	store     PositionStore
	logger    *zap.Logger
	idleAfter time.Duration
	watchOpts location.Options

	mu         sync.Mutex
	tracks     map[int32]*vehicleTrack
	nextFollow int
	closed     bool
	wg         sync.WaitGroup
}

type vehicleTrack struct {
	id        int32
	feed      *location.Feed
	sub       *location.Subscription
	followers map[int]func(location.Sample)
	last      *location.Sample
	lastSeen  time.Time
}

// PositionOption configures a PositionService.
type PositionOption func(*PositionService)

// WithIdleTimeout sets how long a vehicle may go without fixes before its
// watch is released. Vehicles with followers are never released.
func WithIdleTimeout(d time.Duration) PositionOption {
	return func(s *PositionService) { s.idleAfter = d }
}

// WithPositionWatchOptions overrides the per-vehicle watch options.
func WithPositionWatchOptions(o location.Options) PositionOption {
	return func(s *PositionService) { s.watchOpts = o }
}

// NewPositionService creates a PositionService.
func NewPositionService(store PositionStore, logger *zap.Logger, opts ...PositionOption) *PositionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PositionService{
		store:     store,
		logger:    logger,
		idleAfter: defaultIdleAfter,
		watchOpts: location.WatchDefaults,
		tracks:    make(map[int32]*vehicleTrack),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Report feeds one device fix for vehicleID.
func (s *PositionService) Report(vehicleID int32, fix location.Fix) error {
	if !validCoord(fix.Lat, -90, 90) || !validCoord(fix.Lng, -180, 180) {
		return ErrInvalidPosition
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.trackLocked(vehicleID)
	if err != nil {
		return err
	}
	tr.lastSeen = time.Now()
	tr.feed.Push(fix)
	return nil
}

// ReportError feeds a device-side error for vehicleID. It does not stop
// tracking. Errors for vehicles that are not tracked are dropped.
func (s *PositionService) ReportError(vehicleID int32, perr *location.PositionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.tracks[vehicleID]; ok {
		tr.feed.Fail(perr)
	}
}

// Follow registers fn for every resolved sample of vehicleID and returns the
// function that unregisters it.
func (s *PositionService) Follow(vehicleID int32, fn func(location.Sample)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.trackLocked(vehicleID)
	if err != nil {
		return nil, err
	}
	s.nextFollow++
	id := s.nextFollow
	tr.followers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(tr.followers, id)
			s.mu.Unlock()
		})
	}, nil
}

// Latest returns the most recent sample of vehicleID, falling back to the
// stored position. It returns (nil, nil) for a vehicle never seen.
func (s *PositionService) Latest(ctx context.Context, vehicleID int32) (*location.Sample, error) {
	s.mu.Lock()
	if tr, ok := s.tracks[vehicleID]; ok && tr.last != nil {
		smp := *tr.last
		s.mu.Unlock()
		return &smp, nil
	}
	s.mu.Unlock()

	p, err := s.store.GetPosition(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("service: latest position %d: %w", vehicleID, err)
	}
	if p == nil {
		return nil, nil
	}
	return &location.Sample{Lat: p.Lat, Lng: p.Lng, Heading: p.Heading, Accuracy: p.Accuracy, Timestamp: p.RecordedAt}, nil
}

// Close releases every watch and waits for in-flight writes.
func (s *PositionService) Close() {
	s.mu.Lock()
	s.closed = true
	subs := make([]*location.Subscription, 0, len(s.tracks))
	for id, tr := range s.tracks {
		subs = append(subs, tr.sub)
		delete(s.tracks, id)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	s.wg.Wait()
}

func (s *PositionService) trackLocked(vehicleID int32) (*vehicleTrack, error) {
	if s.closed {
		return nil, errors.New("service: position service closed")
	}
	if tr, ok := s.tracks[vehicleID]; ok {
		return tr, nil
	}

	feed := location.NewFeed()
	sub, err := location.NewTracker(feed, location.WithWatchOptions(s.watchOpts)).Start()
	if err != nil {
		return nil, fmt.Errorf("service: track vehicle %d: %w", vehicleID, err)
	}
	tr := &vehicleTrack{
		id:        vehicleID,
		feed:      feed,
		sub:       sub,
		followers: make(map[int]func(location.Sample)),
		lastSeen:  time.Now(),
	}
	s.tracks[vehicleID] = tr

	s.wg.Add(1)
	go s.drain(tr)
	return tr, nil
}

func (s *PositionService) drain(tr *vehicleTrack) {
	defer s.wg.Done()
	log := s.logger.With(zap.Int32("vehicle_id", tr.id))

	for {
		select {
		case smp, ok := <-tr.sub.Samples():
			if !ok {
				return
			}
			s.persist(log, tr.id, smp)

			s.mu.Lock()
			tr.last = &smp
			fns := make([]func(location.Sample), 0, len(tr.followers))
			for _, fn := range tr.followers {
				fns = append(fns, fn)
			}
			s.mu.Unlock()
			for _, fn := range fns {
				fn(smp)
			}

		case perr, ok := <-tr.sub.Errors():
			if !ok {
				return
			}
			if perr.Code == location.Timeout && s.evictIfIdle(tr) {
				log.Debug("released idle vehicle watch")
				return
			}
			if perr.Code != location.Timeout {
				log.Warn("device position error", zap.String("code", perr.Code.String()), zap.String("message", perr.Message))
			}
		}
	}
}

func (s *PositionService) persist(log *zap.Logger, vehicleID int32, smp location.Sample) {
	ctx, cancel := context.WithTimeout(context.Background(), positionWriteTimeout)
	defer cancel()
	err := s.store.UpsertPosition(ctx, storage.VehiclePosition{
		VehicleID:  vehicleID,
		Lat:        smp.Lat,
		Lng:        smp.Lng,
		Heading:    smp.Heading,
		Accuracy:   smp.Accuracy,
		RecordedAt: smp.Timestamp,
	})
	if err != nil {
		log.Warn("persist position failed", zap.Error(err))
	}
}

// evictIfIdle drops tr when it has gone idle with no followers.
func (s *PositionService) evictIfIdle(tr *vehicleTrack) bool {
	s.mu.Lock()
	if s.tracks[tr.id] != tr || len(tr.followers) > 0 || time.Since(tr.lastSeen) < s.idleAfter {
		s.mu.Unlock()
		return false
	}
	delete(s.tracks, tr.id)
	s.mu.Unlock()

	tr.sub.Close()
	return true
}

func validCoord(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
