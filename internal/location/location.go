// Package location turns raw device geolocation fixes into a stable stream
// of position + heading samples.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned by Tracker.Start when the host has no
// geolocation capability.
var ErrUnsupported = errors.New("location: geolocation is not supported")

// Fix is one raw reading reported by the device. Heading is nil when the
// device does not report one (most devices only do so while moving).
type Fix struct {
	Lat       float64
	Lng       float64
	Heading   *float64
	Accuracy  float64
	Timestamp time.Time
}

// Sample is a resolved position. Heading is always defined and lies in [0, 360).
type Sample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Heading   float64   `json:"heading"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionErrorCode follows the W3C Geolocation API numbering.
type PositionErrorCode int

const (
	PermissionDenied    PositionErrorCode = 1
	PositionUnavailable PositionErrorCode = 2
	Timeout             PositionErrorCode = 3
)

func (c PositionErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// PositionError is a per-fix device error. It never terminates a watch.
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e *PositionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("location: %s", e.Code)
	}
	return fmt.Sprintf("location: %s: %s", e.Code, e.Message)
}

// Options configures a position request.
type Options struct {
	EnableHighAccuracy bool
	// MaximumAge is the oldest cached fix that may be returned. Zero means a
	// fresh fix is always required.
	MaximumAge time.Duration
	// Timeout bounds the wait for each fix. Zero means wait indefinitely.
	Timeout time.Duration
}

var (
	// WatchDefaults is used for continuous tracking.
	WatchDefaults = Options{EnableHighAccuracy: true, MaximumAge: 0, Timeout: 10 * time.Second}

	// OneShotDefaults is used for a single current-position request.
	OneShotDefaults = Options{EnableHighAccuracy: true}
)

// WatchID identifies an active watch on a Geolocator.
type WatchID int64

// Geolocator is the device geolocation API.
//
// Callbacks passed to WatchPosition may be invoked from any goroutine, but
// never concurrently for the same watch.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts Options) (Fix, error)
	WatchPosition(opts Options, onFix func(Fix), onErr func(*PositionError)) WatchID
	ClearWatch(id WatchID)
}
