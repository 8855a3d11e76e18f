package main

import (
	"math"
)

// latLonToLocator converts a WGS84 position to a 6-character Maidenhead
// grid locator, the usual exchange format when reporting sonde receptions
// to amateur radio trackers.
func latLonToLocator(lat, lon float64) string {
	// Shift to the 0-based Maidenhead frame and clamp the poles and the
	// antimeridian into the last grid cell.
	lon = math.Min(math.Max(lon+180.0, 0), 360.0-1e-9)
	lat = math.Min(math.Max(lat+90.0, 0), 180.0-1e-9)

	var loc [6]byte

	// Field: 20 degrees longitude by 10 degrees latitude
	loc[0] = 'A' + byte(lon/20.0)
	loc[1] = 'A' + byte(lat/10.0)
	lon = math.Mod(lon, 20.0)
	lat = math.Mod(lat, 10.0)

	// Square: 2 degrees by 1 degree
	loc[2] = '0' + byte(lon/2.0)
	loc[3] = '0' + byte(lat/1.0)
	lon = math.Mod(lon, 2.0)
	lat = math.Mod(lat, 1.0)

	// Subsquare: 5 minutes by 2.5 minutes
	loc[4] = 'a' + byte(lon/(2.0/24.0))
	loc[5] = 'a' + byte(lat/(1.0/24.0))

	return string(loc[:])
}

// distanceAndBearing returns the great circle distance (km) and initial
// bearing (degrees from north) from point 1 to point 2, using the
// Haversine formula.
func distanceAndBearing(lat1, lon1, lat2, lon2 float64) (distanceKm, bearingDeg float64) {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	distanceKm = earthRadiusKm * c

	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)
	bearingDeg = math.Atan2(y, x) * 180.0 / math.Pi
	if bearingDeg < 0 {
		bearingDeg += 360.0
	}

	return distanceKm, bearingDeg
}
