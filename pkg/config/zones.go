package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Zone is a circular high-risk area. Entering it raises a geofence anomaly.
type Zone struct {
	Name         string  `toml:"name" json:"name"`
	Latitude     float64 `toml:"latitude" json:"latitude"`
	Longitude    float64 `toml:"longitude" json:"longitude"`
	RadiusMeters float64 `toml:"radius_meters" json:"radiusMeters"`
}

type zonesFile struct {
	Zones []Zone `toml:"zone"`
}

// DefaultZones is the built-in high-risk zone list.
func DefaultZones() []Zone {
	return []Zone{
		{Name: "Restricted Area", Latitude: 12.95, Longitude: 77.60, RadiusMeters: 1000},
		{Name: "Danger Zone", Latitude: 13.00, Longitude: 77.55, RadiusMeters: 500},
	}
}

// LoadZones reads [[zone]] tables from a TOML file. An empty path yields
// DefaultZones. Zones without a radius get defaultRadius.
func LoadZones(path string, defaultRadius float64) ([]Zone, error) {
	if path == "" {
		return DefaultZones(), nil
	}

	var f zonesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to load zones file %s: %w", path, err)
	}

	for i := range f.Zones {
		z := &f.Zones[i]
		if z.Name == "" {
			return nil, fmt.Errorf("zone %d in %s has no name", i, path)
		}
		if z.Latitude < -90 || z.Latitude > 90 || z.Longitude < -180 || z.Longitude > 180 {
			return nil, fmt.Errorf("zone %q has out-of-range coordinates", z.Name)
		}
		if z.RadiusMeters <= 0 {
			z.RadiusMeters = defaultRadius
		}
	}

	return f.Zones, nil
}
