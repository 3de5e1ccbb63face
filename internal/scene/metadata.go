package scene

import (
	"encoding/json"
	"fmt"
	"io"
)

// DefaultUnit is used when the metadata carries no unit.
const DefaultUnit = "Meters"

// RootParentID marks a sector without parent.
const RootParentID = -1

// Point is the wire form of a bounding box corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BoundingBox is the wire form of a sector's bounds.
type BoundingBox struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// SectorMetadata is one record of the flat sector array.
type SectorMetadata struct {
	ID                     int         `json:"id"`
	ParentID               *int        `json:"parentId"`
	Path                   string      `json:"path"`
	Depth                  int         `json:"depth"`
	BoundingBox            BoundingBox `json:"boundingBox"`
	EstimatedDrawCallCount int         `json:"estimatedDrawCallCount"`
	EstimatedRenderCost    float64     `json:"estimatedRenderCost"`
	DownloadSize           int64       `json:"downloadSize"`
	MaxDiagonalLength      float64     `json:"maxDiagonalLength"`
	SectorFileName         *string     `json:"sectorFileName"`
}

// SceneMetadata is the deserialized scene description handed over by a provider.
type SceneMetadata struct {
	Version      int              `json:"version"`
	MaxTreeIndex int              `json:"maxTreeIndex"`
	Unit         *string          `json:"unit"`
	Sectors      []SectorMetadata `json:"sectors"`
}

// parentOf returns the declared parent, mapping an absent parent to the root sentinel.
func (m SectorMetadata) parentOf() int {
	if m.ParentID == nil {
		return RootParentID
	}
	return *m.ParentID
}

// Decode reads scene metadata JSON from r.
func Decode(r io.Reader) (*SceneMetadata, error) {
	var meta SceneMetadata
	if err := json.NewDecoder(r).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidMetadata, err)
	}
	return &meta, nil
}

// ParseJSON validates, decodes and parses raw scene metadata in one step.
func ParseJSON(data []byte) (*SectorScene, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	var meta SceneMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidMetadata, err)
	}
	return ParseSceneMetadata(&meta)
}
