package domain

import "context"

// Building is a campus building with resolved coordinates.
type Building struct {
	Name   string
	NameEn string
	Lat    float64
	Lon    float64
}

// BuildingLocator resolves a building name to campus coordinates.
// Returns nil, nil when the building is unknown.
type BuildingLocator interface {
	Locate(ctx context.Context, buildingName string) (*Building, error)
}
