package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/location"
	"github.com/FooledKiwi/ridemap-api/internal/mapsession"
	"github.com/FooledKiwi/ridemap-api/internal/places"
)

// Input fields of a map view.
const (
	FieldOrigin      = "origin"
	FieldDestination = "destination"
)

// Marker ids managed by the view itself.
const (
	MarkerOrigin      = "origin"
	MarkerDestination = "destination"
	MarkerSelf        = "self"
)

// Default map framing when the client gives no center.
var (
	DefaultCenter = mapsession.LatLng{Lat: -23.5505, Lng: -46.6333}
	DefaultZoom   = 15
)

// ErrUnknownField is returned for an input field other than origin or destination.
var ErrUnknownField = errors.New("unknown input field")

// ViewState is the externally visible state of a map view.
type ViewState struct {
	ID          string                `json:"id"`
	Scene       mapsession.Snapshot   `json:"scene"`
	Route       *mapsession.RouteInfo `json:"route"`
	Origin      *places.PlaceResult   `json:"origin"`
	Destination *places.PlaceResult   `json:"destination"`
	OriginText  string                `json:"origin_text"`
	DestText    string                `json:"destination_text"`
	Following   *int32                `json:"following"`
	Markers     []string              `json:"markers"`
}

// View is one live map: a session, its two place inputs and an optional
// vehicle follow.
type View struct {
	id      string
	session *mapsession.Session
	scene   *mapsession.Scene
	inputs  map[string]*places.Input

	mu        sync.Mutex
	closed    bool
	selected  map[string]*places.PlaceResult
	following *int32
	unfollow  func()
	// followSeq is bumped by every Follow, Unfollow and close. A Follow
	// whose sequence is no longer current drops its registration.
	followSeq uint64
}

// MapViewService owns every open map view.
type MapViewService struct {
	gate       mapsession.Gate
	directions mapsession.DirectionsService
	resolver   *places.Resolver
	positions  *PositionService
	pub        mapsession.Publisher
	logger     *zap.Logger
	views      *mapsession.Registry[*View]
}

// NewMapViewService creates a MapViewService. Scene events are published to
// pub under the view id.
func NewMapViewService(
	gate mapsession.Gate,
	directions mapsession.DirectionsService,
	resolver *places.Resolver,
	positions *PositionService,
	pub mapsession.Publisher,
	logger *zap.Logger,
) *MapViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapViewService{
		gate:       gate,
		directions: directions,
		resolver:   resolver,
		positions:  positions,
		pub:        pub,
		logger:     logger,
		views:      mapsession.NewRegistry[*View](),
	}
}

// Create opens a view, creates its map and binds both place inputs. A nil
// center or zero zoom uses the defaults.
func (s *MapViewService) Create(ctx context.Context, center *mapsession.LatLng, zoom int) (*ViewState, error) {
	c := DefaultCenter
	if center != nil {
		c = *center
	}
	if zoom <= 0 {
		zoom = DefaultZoom
	}

	id := uuid.NewString()
	scene := mapsession.NewScene(id, s.pub)
	v := &View{
		id:      id,
		session: mapsession.New(s.gate, scene, s.directions, s.logger.With(zap.String("view_id", id))),
		scene:   scene,
		inputs: map[string]*places.Input{
			FieldOrigin:      places.NewInput(),
			FieldDestination: places.NewInput(),
		},
		selected: make(map[string]*places.PlaceResult),
	}

	// Inputs are bound before the map exists so a failed bind publishes
	// nothing under an id that never gets registered.
	for field, in := range v.inputs {
		field := field
		if _, err := s.resolver.Bind(ctx, in, func(p places.PlaceResult) { v.placeSelected(field, p) }); err != nil {
			v.session.Close()
			return nil, fmt.Errorf("service: create view: bind %s: %w", field, err)
		}
	}
	if err := v.session.CreateMap(ctx, c, zoom, mapsession.DefaultMapOptions); err != nil {
		v.session.Close()
		return nil, fmt.Errorf("service: create view: %w", err)
	}

	s.views.Put(id, v)
	st := v.state()
	return &st, nil
}

// State returns the current state of view id.
func (s *MapViewService) State(id string) (*ViewState, error) {
	v, err := s.views.Get(id)
	if err != nil {
		return nil, err
	}
	st := v.state()
	return &st, nil
}

// Snapshot returns the scene of view id, for clients that join late.
func (s *MapViewService) Snapshot(id string) (mapsession.Snapshot, error) {
	v, err := s.views.Get(id)
	if err != nil {
		return mapsession.Snapshot{}, err
	}
	return v.scene.Snapshot(), nil
}

// Close tears the view down. Closing an unknown view returns
// mapsession.ErrNotFound.
func (s *MapViewService) Close(id string) error {
	v, err := s.views.Remove(id)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.stopFollowing()
	v.session.Close()
	return nil
}

// CloseAll tears down every view.
func (s *MapViewService) CloseAll() {
	for _, id := range s.views.IDs() {
		_ = s.Close(id)
	}
}

// Recenter pans view id to p.
func (s *MapViewService) Recenter(id string, p mapsession.LatLng) error {
	v, err := s.views.Get(id)
	if err != nil {
		return err
	}
	v.session.Recenter(&p)
	return nil
}

// UpsertMarker places or moves marker on view id.
func (s *MapViewService) UpsertMarker(id, marker string, p mapsession.LatLng, opts mapsession.MarkerOptions) error {
	v, err := s.views.Get(id)
	if err != nil {
		return err
	}
	v.session.UpsertMarker(marker, p, opts)
	return nil
}

// RemoveMarker removes marker from view id.
func (s *MapViewService) RemoveMarker(id, marker string) error {
	v, err := s.views.Get(id)
	if err != nil {
		return err
	}
	v.session.RemoveMarker(marker)
	return nil
}

// ClearMarkers removes every marker from view id.
func (s *MapViewService) ClearMarkers(id string) error {
	v, err := s.views.Get(id)
	if err != nil {
		return err
	}
	v.session.ClearAllMarkers()
	return nil
}

// RenderRoute draws the route between origin and destination on view id.
// ErrNoRoute means the provider had no route; the previous route stays.
func (s *MapViewService) RenderRoute(ctx context.Context, id string, origin, destination mapsession.LatLng) (*mapsession.RouteInfo, error) {
	v, err := s.views.Get(id)
	if err != nil {
		return nil, err
	}
	info := v.session.RenderRoute(ctx, origin, destination)
	if info == nil {
		return nil, ErrNoRoute
	}
	return info, nil
}

// ClearRoute removes the route from view id.
func (s *MapViewService) ClearRoute(id string) error {
	v, err := s.views.Get(id)
	if err != nil {
		return err
	}
	v.session.ClearRoute()
	return nil
}

// SetInputText replaces the text of an input. Clearing the text also clears
// that input's selection, its marker and the route.
func (s *MapViewService) SetInputText(id, field, text string) error {
	v, in, err := s.input(id, field)
	if err != nil {
		return err
	}
	in.SetText(text)
	if text == "" {
		v.mu.Lock()
		had := v.selected[field] != nil
		delete(v.selected, field)
		v.mu.Unlock()
		if had {
			v.session.RemoveMarker(markerFor(field))
			v.session.ClearRoute()
		}
	}
	return nil
}

// Suggest returns autocomplete predictions for the current text of an input.
func (s *MapViewService) Suggest(ctx context.Context, id, field string) ([]places.Prediction, error) {
	_, in, err := s.input(id, field)
	if err != nil {
		return nil, err
	}
	w := in.Widget()
	if w == nil {
		return nil, places.ErrNotBound
	}
	return w.Suggest(ctx)
}

// SelectResult is the outcome of picking a suggestion.
type SelectResult struct {
	// Place is nil when the selection had no geometry and was ignored.
	Place *places.PlaceResult   `json:"place"`
	Route *mapsession.RouteInfo `json:"route"`
}

// Select resolves placeID for an input. When both inputs hold a place the
// route between them is rendered.
func (s *MapViewService) Select(ctx context.Context, id, field, placeID string) (*SelectResult, error) {
	v, in, err := s.input(id, field)
	if err != nil {
		return nil, err
	}
	w := in.Widget()
	if w == nil {
		return nil, places.ErrNotBound
	}

	v.mu.Lock()
	before := v.selected[field]
	v.mu.Unlock()

	if err := w.Select(ctx, placeID); err != nil {
		return nil, err
	}

	v.mu.Lock()
	after := v.selected[field]
	origin, dest := v.selected[FieldOrigin], v.selected[FieldDestination]
	v.mu.Unlock()

	res := &SelectResult{}
	if after != nil && after != before {
		p := *after
		res.Place = &p
	}
	if res.Place != nil && origin != nil && dest != nil {
		res.Route = v.session.RenderRoute(ctx,
			mapsession.LatLng{Lat: origin.Lat, Lng: origin.Lng},
			mapsession.LatLng{Lat: dest.Lat, Lng: dest.Lng})
	}
	return res, nil
}

// Follow keeps the view's "self" marker on vehicleID and recenters on every
// sample. Following a new vehicle replaces the previous follow. When calls
// overlap, the last Follow or Unfollow to start wins.
func (s *MapViewService) Follow(ctx context.Context, id string, vehicleID int32) error {
	v, err := s.views.Get(id)
	if err != nil {
		return err
	}
	seq, ok := v.beginFollow()
	if !ok {
		return mapsession.ErrNotFound
	}

	if last, err := s.positions.Latest(ctx, vehicleID); err != nil {
		s.logger.Warn("seed follow position", zap.Int32("vehicle_id", vehicleID), zap.Error(err))
	} else if last != nil && v.followCurrent(seq) {
		v.showSelf(*last)
	}

	unfollow, err := s.positions.Follow(vehicleID, v.showSelf)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed || v.followSeq != seq {
		closed := v.closed
		v.mu.Unlock()
		unfollow()
		if closed {
			return mapsession.ErrNotFound
		}
		return nil
	}
	prev := v.unfollow
	v.following = &vehicleID
	v.unfollow = unfollow
	v.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

// Unfollow stops following and removes the "self" marker.
func (s *MapViewService) Unfollow(id string) error {
	v, err := s.views.Get(id)
	if err != nil {
		return err
	}
	v.stopFollowing()
	v.session.RemoveMarker(MarkerSelf)
	return nil
}

// Open returns the number of open views.
func (s *MapViewService) Open() int {
	return s.views.Len()
}

func (s *MapViewService) input(id, field string) (*View, *places.Input, error) {
	v, err := s.views.Get(id)
	if err != nil {
		return nil, nil, err
	}
	in, ok := v.inputs[field]
	if !ok {
		return nil, nil, ErrUnknownField
	}
	return v, in, nil
}

func (v *View) placeSelected(field string, p places.PlaceResult) {
	v.mu.Lock()
	v.selected[field] = &p
	v.mu.Unlock()

	label := "A"
	if field == FieldDestination {
		label = "B"
	}
	v.session.UpsertMarker(markerFor(field), mapsession.LatLng{Lat: p.Lat, Lng: p.Lng},
		mapsession.MarkerOptions{Title: p.Address, Label: label})
}

func (v *View) showSelf(smp location.Sample) {
	p := mapsession.LatLng{Lat: smp.Lat, Lng: smp.Lng}
	v.session.UpsertMarker(MarkerSelf, p, mapsession.MarkerOptions{Icon: "vehicle", Rotation: smp.Heading})
	v.session.Recenter(&p)
}

// beginFollow claims the next follow sequence. It fails on a closed view.
func (v *View) beginFollow() (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, false
	}
	v.followSeq++
	return v.followSeq, true
}

func (v *View) followCurrent(seq uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed && v.followSeq == seq
}

func (v *View) stopFollowing() {
	v.mu.Lock()
	v.followSeq++
	unfollow := v.unfollow
	v.unfollow = nil
	v.following = nil
	v.mu.Unlock()
	if unfollow != nil {
		unfollow()
	}
}

func (v *View) state() ViewState {
	v.mu.Lock()
	st := ViewState{
		ID:          v.id,
		Origin:      v.selected[FieldOrigin],
		Destination: v.selected[FieldDestination],
	}
	if v.following != nil {
		f := *v.following
		st.Following = &f
	}
	v.mu.Unlock()

	st.Scene = v.scene.Snapshot()
	st.Route = v.session.Route()
	st.Markers = v.session.MarkerIDs()
	st.OriginText = v.inputs[FieldOrigin].Text()
	st.DestText = v.inputs[FieldDestination].Text()
	return st
}

func markerFor(field string) string {
	if field == FieldDestination {
		return MarkerDestination
	}
	return MarkerOrigin
}
