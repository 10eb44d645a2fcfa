package main

import (
	"fmt"
	"math"
)

// Units selects the measurement system used for distances and altitudes
type Units int

const (
	UnitsMetric Units = iota
	UnitsImperial
)

// String returns the units name as used in config.yaml
func (u Units) String() string {
	if u == UnitsImperial {
		return "imperial"
	}
	return "metric"
}

// ParseUnits parses a units name from config.yaml
func ParseUnits(s string) (Units, error) {
	switch s {
	case "", "metric":
		return UnitsMetric, nil
	case "imperial":
		return UnitsImperial, nil
	}
	return UnitsMetric, fmt.Errorf("invalid units %q (must be metric or imperial)", s)
}

const (
	earthRadiusKm = 6371.0
	earthRadiusMi = 3958.8

	metersPerFoot = 0.3048
	metersPerMile = 1609.344
)

// InvalidCoordinateError is returned when a latitude or longitude is outside
// the valid range
type InvalidCoordinateError struct {
	Lat float64
	Lon float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate: lat=%.4f lon=%.4f (lat must be -90..90, lon -180..180)", e.Lat, e.Lon)
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DistanceAndBearing calculates the great circle distance and initial bearing
// (in degrees, 0-360 from true north) between two points using the Haversine
// formula. Distance is returned in km for metric units, miles for imperial.
func DistanceAndBearing(lat1, lon1, lat2, lon2 float64, units Units) (distance float64, bearingDeg float64, err error) {
	if !validCoordinate(lat1, lon1) {
		return 0, 0, &InvalidCoordinateError{Lat: lat1, Lon: lon1}
	}
	if !validCoordinate(lat2, lon2) {
		return 0, 0, &InvalidCoordinateError{Lat: lat2, Lon: lon2}
	}

	radius := earthRadiusKm
	if units == UnitsImperial {
		radius = earthRadiusMi
	}

	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	// Haversine formula for distance
	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	distance = radius * c

	// Forward azimuth for initial bearing
	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)
	bearingRad := math.Atan2(y, x)
	bearingDeg = bearingRad * 180.0 / math.Pi

	// Normalize bearing to 0-360
	if bearingDeg < 0 {
		bearingDeg += 360.0
	}

	return distance, bearingDeg, nil
}

// BearingToCardinal converts a bearing in degrees to one of the eight
// cardinal/intercardinal direction names
func BearingToCardinal(bearingDeg float64) string {
	dirs := [8]string{
		"North", "Northeast", "East", "Southeast",
		"South", "Southwest", "West", "Northwest",
	}
	idx := int(math.Mod(bearingDeg+22.5, 360.0)/45.0) % 8
	if idx < 0 {
		idx += 8
	}
	return dirs[idx]
}

// FormatRelativePosition formats a horizontal distance and bearing for
// display, e.g. "12.34 km Northeast (45°)"
func FormatRelativePosition(distance, bearingDeg float64, units Units) string {
	if distance == 0 {
		return "0 (here)"
	}
	unit := "km"
	if units == UnitsImperial {
		unit = "mi"
	}
	return fmt.Sprintf("%.2f %s %s (%.0f°)", distance, unit, BearingToCardinal(bearingDeg), bearingDeg)
}

// FormatVerticalOffset formats the station-minus-user altitude difference
// (given in meters) for display, e.g. "120.0 m above"
func FormatVerticalOffset(deltaMeters float64, units Units) string {
	if deltaMeters == 0 {
		return "0"
	}
	direction := "above"
	if deltaMeters < 0 {
		direction = "below"
	}
	value := math.Abs(deltaMeters)
	unit := "m"
	if units == UnitsImperial {
		value /= metersPerFoot
		unit = "ft"
	}
	return fmt.Sprintf("%.1f %s %s", value, unit, direction)
}
