package location

import "math"

// minDisplacementDeg is the Manhattan distance in degrees below which two
// fixes are considered the same point for heading purposes.
const minDisplacementDeg = 1e-5

// Bearing returns the initial great-circle bearing (forward azimuth) from
// (lat1, lng1) to (lat2, lng2) in degrees clockwise from true north, in [0, 360).
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	const deg2rad = math.Pi / 180.0

	phi1 := lat1 * deg2rad
	phi2 := lat2 * deg2rad
	dLambda := (lng2 - lng1) * deg2rad

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)

	return normalizeDegrees(math.Atan2(y, x) / deg2rad)
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	// math.Mod(-0.0000001, 360) + 360 can round to exactly 360.
	if d >= 360 {
		d = 0
	}
	return d
}

// headingResolver keeps the previously emitted sample and fills in a heading
// for fixes that lack one.
type headingResolver struct {
	prev *Sample
}

// resolve converts fix into a Sample and retains it as the new previous sample.
//
// Resolution order:
//  1. device heading, when it is a finite number
//  2. bearing from the previous sample, when the displacement exceeds minDisplacementDeg
//  3. previous heading
//  4. zero
func (r *headingResolver) resolve(fix Fix) Sample {
	s := Sample{Lat: fix.Lat, Lng: fix.Lng, Accuracy: fix.Accuracy, Timestamp: fix.Timestamp}

	switch {
	case fix.Heading != nil && !math.IsNaN(*fix.Heading) && !math.IsInf(*fix.Heading, 0):
		s.Heading = normalizeDegrees(*fix.Heading)
	case r.prev != nil && displacement(*r.prev, fix) > minDisplacementDeg:
		s.Heading = Bearing(r.prev.Lat, r.prev.Lng, fix.Lat, fix.Lng)
	case r.prev != nil:
		s.Heading = r.prev.Heading
	default:
		s.Heading = 0
	}

	r.prev = &s
	return s
}

func displacement(prev Sample, fix Fix) float64 {
	return math.Abs(fix.Lat-prev.Lat) + math.Abs(fix.Lng-prev.Lng)
}
