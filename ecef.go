package main

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// WGS84 ellipsoid constants.
const (
	wgs84MajorAxis  = 6378137.0
	wgs84Flattening = 1.0 / 298.257223563
)

// ecefToGeodetic converts an earth-centered earth-fixed position in meters
// to WGS84 geodetic latitude/longitude (degrees) and ellipsoidal height
// (meters), iterating on the ellipsoidal height correction.
func ecefToGeodetic(x, y, z float64) (lat, lon, alt float64) {
	e2 := wgs84Flattening * (2.0 - wgs84Flattening)
	r2 := x*x + y*y

	zc := z
	zk := math.Inf(1)
	v := wgs84MajorAxis
	for math.Abs(zc-zk) >= 1e-4 {
		zk = zc
		sinp := zc / math.Sqrt(r2+zc*zc)
		v = wgs84MajorAxis / math.Sqrt(1.0-e2*sinp*sinp)
		zc = z + v*e2*sinp
	}

	switch {
	case r2 > 1e-12:
		lat = math.Atan(zc / math.Sqrt(r2))
	case z > 0:
		lat = math.Pi / 2
	default:
		lat = -math.Pi / 2
	}
	if r2 > 1e-12 {
		lon = math.Atan2(y, x)
	}
	alt = math.Sqrt(r2+zc*zc) - v
	return lat * 180.0 / math.Pi, lon * 180.0 / math.Pi, alt
}

// enuRotation returns the ECEF-to-local-tangent-plane rotation matrix for a
// geodetic position given in degrees.
func enuRotation(lat, lon float64) *mat.Dense {
	sinp := math.Sin(lat * math.Pi / 180.0)
	cosp := math.Cos(lat * math.Pi / 180.0)
	sinl := math.Sin(lon * math.Pi / 180.0)
	cosl := math.Cos(lon * math.Pi / 180.0)

	return mat.NewDense(3, 3, []float64{
		-sinl, cosl, 0,
		-sinp * cosl, -sinp * sinl, cosp,
		cosp * cosl, cosp * sinl, sinp,
	})
}

// ecefVelocityToTrack rotates an ECEF velocity vector into the local
// tangent plane at lat/lon (degrees) and returns ground speed (m/s), track
// heading (degrees clockwise from north) and climb rate (m/s).
func ecefVelocityToTrack(lat, lon, dx, dy, dz float64) (speed, heading, climb float64) {
	var enu mat.VecDense
	enu.MulVec(enuRotation(lat, lon), mat.NewVecDense(3, []float64{dx, dy, dz}))

	east, north, up := enu.AtVec(0), enu.AtVec(1), enu.AtVec(2)
	speed = math.Hypot(east, north)
	heading = math.Atan2(east, north) * 180.0 / math.Pi
	if heading < 0 {
		heading += 360.0
	}
	return speed, heading, up
}
