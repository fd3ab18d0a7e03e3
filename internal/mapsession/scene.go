package mapsession

import (
	"fmt"
	"sort"
	"sync"
)

// Event types published by Scene.
const (
	EventMapCreated    = "map.created"
	EventMapPanned     = "map.panned"
	EventMapDestroyed  = "map.destroyed"
	EventMarkerAdded   = "marker.added"
	EventMarkerMoved   = "marker.moved"
	EventMarkerRemoved = "marker.removed"
	EventRouteRendered = "route.rendered"
	EventRouteRemoved  = "route.removed"
)

// Publisher delivers scene events to the clients drawing the map.
type Publisher interface {
	Publish(topic, eventType string, data any) error
}

// MapState is the published state of the scene's map.
type MapState struct {
	Center  LatLng     `json:"center"`
	Zoom    int        `json:"zoom"`
	Options MapOptions `json:"options"`
}

// MarkerState is the published state of one marker.
type MarkerState struct {
	Handle   string        `json:"handle"`
	Position LatLng        `json:"position"`
	Options  MarkerOptions `json:"options"`
}

// RouteState is the published state of the route overlay.
type RouteState struct {
	Polyline     string          `json:"polyline"`
	DistanceText string          `json:"distance_text"`
	DurationText string          `json:"duration_text"`
	Options      RendererOptions `json:"options"`
}

// Snapshot is the full scene, sent to clients that subscribe late.
type Snapshot struct {
	Map     *MapState     `json:"map"`
	Markers []MarkerState `json:"markers"`
	Route   *RouteState   `json:"route"`
}

// Scene is a Canvas that keeps the overlay model server-side and publishes
// every change under topic. Browsers replay the events against their own
// provider map.
type Scene struct {
	topic string
	pub   Publisher

	mu         sync.Mutex
	mapState   *MapState
	markers    map[string]*sceneMarker
	route      *sceneRenderer
	nextHandle int
}

// NewScene creates a Scene publishing under topic.
func NewScene(topic string, pub Publisher) *Scene {
	return &Scene{topic: topic, pub: pub, markers: make(map[string]*sceneMarker)}
}

// NewMap implements Canvas. A scene holds a single map.
func (sc *Scene) NewMap(center LatLng, zoom int, opts MapOptions) (Map, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.mapState != nil {
		return nil, fmt.Errorf("mapsession: scene %s already has a map", sc.topic)
	}
	sc.mapState = &MapState{Center: center, Zoom: zoom, Options: opts}
	sc.publishLocked(EventMapCreated, *sc.mapState)
	return &sceneMap{sc: sc}, nil
}

// Snapshot returns the current scene.
func (sc *Scene) Snapshot() Snapshot {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var snap Snapshot
	if sc.mapState != nil {
		ms := *sc.mapState
		snap.Map = &ms
	}
	snap.Markers = make([]MarkerState, 0, len(sc.markers))
	for _, mk := range sc.markers {
		snap.Markers = append(snap.Markers, mk.state)
	}
	sort.Slice(snap.Markers, func(i, j int) bool { return snap.Markers[i].Handle < snap.Markers[j].Handle })
	if sc.route != nil && sc.route.attached && sc.route.dirs != nil {
		rs := sc.route.state()
		snap.Route = &rs
	}
	return snap
}

func (sc *Scene) publishLocked(eventType string, data any) {
	if sc.pub == nil {
		return
	}
	_ = sc.pub.Publish(sc.topic, eventType, data) //nolint:errcheck // marshal of plain structs cannot fail
}

type sceneMap struct {
	sc *Scene
}

func (m *sceneMap) PanTo(p LatLng) {
	m.sc.mu.Lock()
	defer m.sc.mu.Unlock()
	if m.sc.mapState == nil {
		return
	}
	m.sc.mapState.Center = p
	m.sc.publishLocked(EventMapPanned, p)
}

func (m *sceneMap) AddMarker(p LatLng, opts MarkerOptions) Marker {
	m.sc.mu.Lock()
	defer m.sc.mu.Unlock()
	m.sc.nextHandle++
	mk := &sceneMarker{sc: m.sc, state: MarkerState{
		Handle:   fmt.Sprintf("mk%d", m.sc.nextHandle),
		Position: p,
		Options:  opts,
	}}
	m.sc.markers[mk.state.Handle] = mk
	m.sc.publishLocked(EventMarkerAdded, mk.state)
	return mk
}

func (m *sceneMap) NewRouteRenderer(opts RendererOptions) RouteRenderer {
	m.sc.mu.Lock()
	defer m.sc.mu.Unlock()
	r := &sceneRenderer{sc: m.sc, opts: opts}
	m.sc.route = r
	return r
}

func (m *sceneMap) Destroy() {
	m.sc.mu.Lock()
	defer m.sc.mu.Unlock()
	m.sc.mapState = nil
	m.sc.markers = make(map[string]*sceneMarker)
	m.sc.route = nil
	m.sc.publishLocked(EventMapDestroyed, struct{}{})
}

type sceneMarker struct {
	sc      *Scene
	state   MarkerState
	removed bool
}

func (mk *sceneMarker) SetPosition(p LatLng) {
	mk.sc.mu.Lock()
	defer mk.sc.mu.Unlock()
	if mk.removed || mk.state.Position == p {
		return
	}
	mk.state.Position = p
	mk.sc.publishLocked(EventMarkerMoved, mk.state)
}

func (mk *sceneMarker) SetOptions(opts MarkerOptions) {
	mk.sc.mu.Lock()
	defer mk.sc.mu.Unlock()
	if mk.removed || mk.state.Options == opts {
		return
	}
	mk.state.Options = opts
	mk.sc.publishLocked(EventMarkerMoved, mk.state)
}

func (mk *sceneMarker) Remove() {
	mk.sc.mu.Lock()
	defer mk.sc.mu.Unlock()
	if mk.removed {
		return
	}
	mk.removed = true
	delete(mk.sc.markers, mk.state.Handle)
	mk.sc.publishLocked(EventMarkerRemoved, map[string]string{"handle": mk.state.Handle})
}

type sceneRenderer struct {
	sc       *Scene
	opts     RendererOptions
	dirs     *Directions
	attached bool
}

func (r *sceneRenderer) state() RouteState {
	return RouteState{
		Polyline:     r.dirs.Polyline,
		DistanceText: r.dirs.DistanceText,
		DurationText: r.dirs.DurationText,
		Options:      r.opts,
	}
}

func (r *sceneRenderer) SetDirections(d *Directions) {
	r.sc.mu.Lock()
	defer r.sc.mu.Unlock()
	r.dirs = d
	if r.attached {
		r.sc.publishLocked(EventRouteRendered, r.state())
	}
}

func (r *sceneRenderer) Attach() {
	r.sc.mu.Lock()
	defer r.sc.mu.Unlock()
	if r.attached {
		return
	}
	r.attached = true
	if r.dirs != nil {
		r.sc.publishLocked(EventRouteRendered, r.state())
	}
}

func (r *sceneRenderer) Detach() {
	r.sc.mu.Lock()
	defer r.sc.mu.Unlock()
	if !r.attached {
		return
	}
	r.attached = false
	r.sc.publishLocked(EventRouteRemoved, struct{}{})
}
