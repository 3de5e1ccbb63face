package scene

import (
	"fmt"

	"github.com/FairForge/viewercore/internal/geom"
)

// ParseSceneMetadata turns the flat sector array into a linked sector tree.
//
// The first pass builds the id index and remembers every declared parent id,
// the second pass links children to parents in input order, so children may
// precede their parents in the array. Depth and bounds are taken verbatim.
func ParseSceneMetadata(meta *SceneMetadata) (*SectorScene, error) {
	if meta == nil {
		return nil, fmt.Errorf("%w: nil metadata", ErrInvalidMetadata)
	}

	sectors := make(map[int]*Sector, len(meta.Sectors))
	order := make([]*Sector, 0, len(meta.Sectors))
	parentIDs := make([]int, 0, len(meta.Sectors))

	for _, m := range meta.Sectors {
		if _, exists := sectors[m.ID]; exists {
			return nil, DuplicateSectorError{ID: m.ID}
		}
		s := newSector(m)
		sectors[m.ID] = s
		order = append(order, s)
		parentIDs = append(parentIDs, m.parentOf())
	}

	root, ok := sectors[0]
	if !ok {
		return nil, MissingRootSectorError{SectorCount: len(meta.Sectors)}
	}

	for i, s := range order {
		parentID := parentIDs[i]
		switch {
		case s.ID == 0 && parentID != RootParentID:
			return nil, RootParentError{ParentID: parentID}
		case s.ID != 0 && parentID == RootParentID:
			return nil, DetachedSectorError{ID: s.ID}
		case parentID != RootParentID:
			if _, exists := sectors[parentID]; !exists {
				return nil, UnknownParentError{ID: s.ID, ParentID: parentID}
			}
		}
	}

	if err := checkAcyclic(order, parentIDs); err != nil {
		return nil, err
	}

	for i, s := range order {
		parentID := parentIDs[i]
		if parentID == RootParentID {
			continue
		}
		parent := sectors[parentID]
		parent.Children = append(parent.Children, s)
	}

	unit := DefaultUnit
	if meta.Unit != nil && *meta.Unit != "" {
		unit = *meta.Unit
	}

	return &SectorScene{
		Version:      meta.Version,
		MaxTreeIndex: meta.MaxTreeIndex,
		Unit:         unit,
		root:         root,
		sectors:      sectors,
		order:        order,
	}, nil
}

func newSector(m SectorMetadata) *Sector {
	fileName := ""
	if m.SectorFileName != nil {
		fileName = *m.SectorFileName
	}
	bb := m.BoundingBox
	return &Sector{
		ID:                     m.ID,
		ParentID:               m.parentOf(),
		Path:                   m.Path,
		Depth:                  m.Depth,
		Bounds:                 geom.NewBox3(bb.Min.X, bb.Min.Y, bb.Min.Z, bb.Max.X, bb.Max.Y, bb.Max.Z),
		EstimatedDrawCallCount: m.EstimatedDrawCallCount,
		EstimatedRenderCost:    m.EstimatedRenderCost,
		DownloadSize:           m.DownloadSize,
		MaxDiagonalLength:      m.MaxDiagonalLength,
		SectorFileName:         fileName,
	}
}

// checkAcyclic follows every parent chain once. Parents are known to exist.
func checkAcyclic(order []*Sector, parentIDs []int) error {
	const (
		unvisited = iota
		visiting
		done
	)

	parentOf := make(map[int]int, len(order))
	for i, s := range order {
		parentOf[s.ID] = parentIDs[i]
	}

	state := make(map[int]int, len(order))
	state[0] = done

	for _, s := range order {
		var chain []int
		id := s.ID
		for state[id] == unvisited {
			state[id] = visiting
			chain = append(chain, id)
			id = parentOf[id]
		}
		if state[id] == visiting {
			return SectorCycleError{ID: id, Chain: append(chain, id)}
		}
		for _, c := range chain {
			state[c] = done
		}
	}
	return nil
}
