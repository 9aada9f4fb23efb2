package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ZoneKind classifies a geofence zone.
type ZoneKind string

const (
	// ZoneAllowed zones must contain the vessel.
	ZoneAllowed ZoneKind = "allowed"
	// ZoneForbidden zones must not contain the vessel.
	ZoneForbidden ZoneKind = "forbidden"
)

// ParseZoneKind parses a zone kind, case-insensitively.
func ParseZoneKind(s string) (ZoneKind, error) {
	switch ZoneKind(strings.ToLower(strings.TrimSpace(s))) {
	case ZoneAllowed:
		return ZoneAllowed, nil
	case ZoneForbidden:
		return ZoneForbidden, nil
	}
	return "", fmt.Errorf("unknown zone kind %q", s)
}

// Zone is a circular geofence.
type Zone struct {
	Name         string
	Center       Point
	RadiusMeters float64
	Kind         ZoneKind
}

// DistanceFrom returns the distance between p and the zone center in meters.
func (z Zone) DistanceFrom(p Point) float64 {
	return Distance(p, z.Center)
}

// Compliant reports whether p satisfies the zone and the distance used to decide it.
// A point exactly on the boundary is compliant for both kinds.
func (z Zone) Compliant(p Point) (bool, float64) {
	d := z.DistanceFrom(p)
	switch z.Kind {
	case ZoneAllowed:
		return d <= z.RadiusMeters, d
	case ZoneForbidden:
		return d >= z.RadiusMeters, d
	}
	return true, d
}

// Validate checks the zone definition.
func (z Zone) Validate() error {
	if z.Name == "" {
		return fmt.Errorf("zone name is required")
	}
	if !z.Center.Valid() {
		return fmt.Errorf("zone %q: invalid center %.6f,%.6f", z.Name, z.Center.Lat, z.Center.Lon)
	}
	if z.RadiusMeters <= 0 {
		return fmt.Errorf("zone %q: radius must be > 0", z.Name)
	}
	if _, err := ParseZoneKind(string(z.Kind)); err != nil {
		return fmt.Errorf("zone %q: %w", z.Name, err)
	}
	return nil
}

// LoadZones reads geofence zones from a GeoJSON FeatureCollection file.
// Each zone is a Point feature with "name", "radius" (meters) and "kind" properties.
func LoadZones(path string) ([]Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}
	return ParseZones(data)
}

// ParseZones decodes geofence zones from GeoJSON.
func ParseZones(data []byte) ([]Zone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse zones geojson: %w", err)
	}

	zones := make([]Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: geometry %s is not a Point", i, f.Geometry.GeoJSONType())
		}

		kind, err := ParseZoneKind(getStringProp(f.Properties, "kind"))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		z := Zone{
			Name:         getStringProp(f.Properties, "name"),
			Center:       FromOrb(pt),
			RadiusMeters: getFloatProp(f.Properties, "radius"),
			Kind:         kind,
		}
		if z.Name == "" {
			z.Name = fmt.Sprintf("zone-%d", i+1)
		}
		if err := z.Validate(); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

// getStringProp safely extracts a string property from GeoJSON properties.
func getStringProp(props geojson.Properties, key string) string {
	if val, ok := props[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
		// Handle JSON numbers that might be parsed as float64
		if f, ok := val.(json.Number); ok {
			return string(f)
		}
	}
	return ""
}

func getFloatProp(props geojson.Properties, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "m"), 64)
		return f
	}
	return 0
}
