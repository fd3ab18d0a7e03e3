package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/FooledKiwi/ridemap-api/internal/location"
	"github.com/FooledKiwi/ridemap-api/internal/storage"
)

// --- mock PositionStore ---

type memPositionStore struct {
	mu     sync.Mutex
	writes []storage.VehiclePosition
	stored map[int32]*storage.VehiclePosition
	putErr error
	getErr error
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{stored: make(map[int32]*storage.VehiclePosition)}
}

func (m *memPositionStore) UpsertPosition(_ context.Context, p storage.VehiclePosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, p)
	if m.putErr != nil {
		return m.putErr
	}
	m.stored[p.VehicleID] = &p
	return nil
}

func (m *memPositionStore) GetPosition(_ context.Context, vehicleID int32) (*storage.VehiclePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.stored[vehicleID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPositionStore) lastWrite() (storage.VehiclePosition, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return storage.VehiclePosition{}, 0
	}
	return m.writes[len(m.writes)-1], len(m.writes)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// slowWatch keeps the device timeout out of the way of tests that do not
// exercise it.
var slowWatch = location.Options{EnableHighAccuracy: true, Timeout: time.Minute}

// --- tests ---

func TestPositionService_Report_PersistsDerivedHeading(t *testing.T) {
	store := newMemPositionStore()
	svc := NewPositionService(store, nil, WithPositionWatchOptions(slowWatch))
	defer svc.Close()

	if err := svc.Report(7, location.Fix{Lat: -23.5505, Lng: -46.6333, Accuracy: 8}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	waitFor(t, "first write", func() bool { _, n := store.lastWrite(); return n >= 1 })

	// Move south-west without a device heading.
	if err := svc.Report(7, location.Fix{Lat: -23.5515, Lng: -46.6344, Accuracy: 8}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	waitFor(t, "second write", func() bool {
		p, _ := store.lastWrite()
		return p.Lat == -23.5515
	})

	p, _ := store.lastWrite()
	if p.VehicleID != 7 {
		t.Errorf("vehicle = %d, want 7", p.VehicleID)
	}
	if math.Abs(p.Heading-225) > 1 {
		t.Errorf("heading = %.2f, want ~225", p.Heading)
	}
	if p.Accuracy != 8 {
		t.Errorf("accuracy = %v, want 8", p.Accuracy)
	}
	if p.RecordedAt.IsZero() {
		t.Error("recorded_at is zero")
	}
}

func TestPositionService_Report_DeviceHeadingWins(t *testing.T) {
	store := newMemPositionStore()
	svc := NewPositionService(store, nil, WithPositionWatchOptions(slowWatch))
	defer svc.Close()

	h := 90.0
	_ = svc.Report(1, location.Fix{Lat: 1, Lng: 1, Heading: &h})
	waitFor(t, "write", func() bool { _, n := store.lastWrite(); return n >= 1 })

	p, _ := store.lastWrite()
	if p.Heading != 90 {
		t.Errorf("heading = %v, want 90", p.Heading)
	}
}

func TestPositionService_Report_InvalidPosition(t *testing.T) {
	svc := NewPositionService(newMemPositionStore(), nil)
	defer svc.Close()

	cases := []location.Fix{
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: -181},
		{Lat: math.NaN(), Lng: 0},
	}
	for _, fix := range cases {
		if err := svc.Report(1, fix); !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("Report(%v, %v) err = %v, want ErrInvalidPosition", fix.Lat, fix.Lng, err)
		}
	}
	if svc.trackedCount() != 0 {
		t.Errorf("tracked = %d, want 0", svc.trackedCount())
	}
}

func TestPositionService_Follow_ReceivesSamples(t *testing.T) {
	svc := NewPositionService(newMemPositionStore(), nil, WithPositionWatchOptions(slowWatch))
	defer svc.Close()

	got := make(chan location.Sample, 4)
	unfollow, err := svc.Follow(3, func(s location.Sample) { got <- s })
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}

	_ = svc.Report(3, location.Fix{Lat: 10, Lng: 20})
	select {
	case s := <-got:
		if s.Lat != 10 || s.Lng != 20 {
			t.Errorf("sample = %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("follower never called")
	}

	unfollow()
	unfollow()
	_ = svc.Report(3, location.Fix{Lat: 11, Lng: 20})
	select {
	case s := <-got:
		t.Errorf("follower called after unfollow: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPositionService_ReportError_KeepsTracking(t *testing.T) {
	store := newMemPositionStore()
	svc := NewPositionService(store, nil, WithPositionWatchOptions(slowWatch))
	defer svc.Close()

	// Unknown vehicle: dropped.
	svc.ReportError(9, &location.PositionError{Code: location.PositionUnavailable})
	if svc.trackedCount() != 0 {
		t.Fatalf("tracked = %d, want 0", svc.trackedCount())
	}

	_ = svc.Report(9, location.Fix{Lat: 1, Lng: 1})
	svc.ReportError(9, &location.PositionError{Code: location.PermissionDenied, Message: "revoked"})
	_ = svc.Report(9, location.Fix{Lat: 2, Lng: 2})

	waitFor(t, "write after error", func() bool {
		p, _ := store.lastWrite()
		return p.Lat == 2
	})
	if svc.trackedCount() != 1 {
		t.Errorf("tracked = %d, want 1", svc.trackedCount())
	}
}

func TestPositionService_PersistError_StillFansOut(t *testing.T) {
	store := newMemPositionStore()
	store.putErr = errors.New("db down")
	svc := NewPositionService(store, nil, WithPositionWatchOptions(slowWatch))
	defer svc.Close()

	got := make(chan location.Sample, 1)
	_, _ = svc.Follow(4, func(s location.Sample) { got <- s })
	_ = svc.Report(4, location.Fix{Lat: 5, Lng: 5})

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("follower not called when persistence fails")
	}
}

func TestPositionService_Latest(t *testing.T) {
	store := newMemPositionStore()
	store.stored[2] = &storage.VehiclePosition{VehicleID: 2, Lat: -12, Lng: -77, Heading: 45}
	svc := NewPositionService(store, nil, WithPositionWatchOptions(slowWatch))
	defer svc.Close()

	ctx := context.Background()

	got, err := svc.Latest(ctx, 99)
	if err != nil || got != nil {
		t.Fatalf("unknown vehicle = %+v, %v; want nil, nil", got, err)
	}

	got, err = svc.Latest(ctx, 2)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil || got.Heading != 45 {
		t.Fatalf("stored fallback = %+v", got)
	}

	_ = svc.Report(2, location.Fix{Lat: -12.5, Lng: -77})
	waitFor(t, "in-memory sample", func() bool {
		s, _ := svc.Latest(ctx, 2)
		return s != nil && s.Lat == -12.5
	})
}

func TestPositionService_Latest_StoreError(t *testing.T) {
	store := newMemPositionStore()
	store.getErr = errors.New("boom")
	svc := NewPositionService(store, nil)
	defer svc.Close()

	if _, err := svc.Latest(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestPositionService_IdleVehicleReleased(t *testing.T) {
	svc := NewPositionService(newMemPositionStore(), nil,
		WithPositionWatchOptions(location.Options{Timeout: 20 * time.Millisecond}),
		WithIdleTimeout(10*time.Millisecond),
	)
	defer svc.Close()

	_ = svc.Report(5, location.Fix{Lat: 1, Lng: 1})
	waitFor(t, "idle release", func() bool { return svc.trackedCount() == 0 })

	// A new fix starts a fresh watch.
	_ = svc.Report(5, location.Fix{Lat: 1, Lng: 1})
	if svc.trackedCount() != 1 {
		t.Errorf("tracked = %d, want 1", svc.trackedCount())
	}
}

func TestPositionService_FollowedVehicleNotReleased(t *testing.T) {
	svc := NewPositionService(newMemPositionStore(), nil,
		WithPositionWatchOptions(location.Options{Timeout: 10 * time.Millisecond}),
		WithIdleTimeout(time.Millisecond),
	)
	defer svc.Close()

	unfollow, _ := svc.Follow(6, func(location.Sample) {})
	time.Sleep(80 * time.Millisecond)
	if svc.trackedCount() != 1 {
		t.Fatalf("followed vehicle released: tracked = %d", svc.trackedCount())
	}

	unfollow()
	waitFor(t, "release after unfollow", func() bool { return svc.trackedCount() == 0 })
}

func TestPositionService_Close(t *testing.T) {
	svc := NewPositionService(newMemPositionStore(), nil, WithPositionWatchOptions(slowWatch))
	_ = svc.Report(1, location.Fix{Lat: 1, Lng: 1})
	_ = svc.Report(2, location.Fix{Lat: 2, Lng: 2})

	svc.Close()

	if svc.trackedCount() != 0 {
		t.Errorf("tracked = %d, want 0", svc.trackedCount())
	}
	if err := svc.Report(1, location.Fix{Lat: 1, Lng: 1}); err == nil {
		t.Error("Report after Close succeeded")
	}
	if _, err := svc.Follow(1, func(location.Sample) {}); err == nil {
		t.Error("Follow after Close succeeded")
	}
}

func storageVehicle(id int32, lat, lng, heading float64) storage.VehiclePosition {
	return storage.VehiclePosition{VehicleID: id, Lat: lat, Lng: lng, Heading: heading, RecordedAt: time.Now()}
}

// trackedCount returns the number of vehicles with an active watch.
func (s *PositionService) trackedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// followerCount returns the number of followers of vehicleID.
func (s *PositionService) followerCount(vehicleID int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.tracks[vehicleID]; ok {
		return len(tr.followers)
	}
	return 0
}
