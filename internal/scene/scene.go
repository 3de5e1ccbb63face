// Package scene parses sector metadata into the read-only scene tree used for
// streaming and culling decisions.
package scene

import (
	"github.com/FairForge/viewercore/internal/geom"
)

// Sector is one node of the scene tree. Parents are referenced by id only;
// the scene owns every sector.
type Sector struct {
	ID                     int
	ParentID               int
	Path                   string
	Depth                  int
	Bounds                 geom.Box3
	EstimatedDrawCallCount int
	EstimatedRenderCost    float64
	DownloadSize           int64
	MaxDiagonalLength      float64
	SectorFileName         string
	Children               []*Sector
}

// IsRoot reports whether the sector has no parent.
func (s *Sector) IsRoot() bool {
	return s.ParentID == RootParentID
}

// IsLeaf reports whether the sector has no children.
func (s *Sector) IsLeaf() bool {
	return len(s.Children) == 0
}

// SectorScene is an immutable sector tree plus scene level attributes.
type SectorScene struct {
	Version      int
	MaxTreeIndex int
	Unit         string

	root    *Sector
	sectors map[int]*Sector
	order   []*Sector
}

// Root returns sector 0.
func (s *SectorScene) Root() *Sector {
	return s.root
}

// Len returns the number of sectors.
func (s *SectorScene) Len() int {
	return len(s.sectors)
}

// SectorByID looks up a sector.
func (s *SectorScene) SectorByID(id int) (*Sector, bool) {
	sector, ok := s.sectors[id]
	return sector, ok
}

// Sectors returns all sectors in the order they were supplied.
func (s *SectorScene) Sectors() []*Sector {
	out := make([]*Sector, len(s.order))
	copy(out, s.order)
	return out
}

// Walk visits the tree depth first, parents before children, children in
// input order. Returning false from fn skips that sector's subtree.
func (s *SectorScene) Walk(fn func(*Sector) bool) {
	stack := []*Sector{s.root}
	for len(stack) > 0 {
		n := len(stack) - 1
		sector := stack[n]
		stack = stack[:n]

		if !fn(sector) {
			continue
		}
		for i := len(sector.Children) - 1; i >= 0; i-- {
			stack = append(stack, sector.Children[i])
		}
	}
}

// Ancestors returns the parent chain of id, nearest first, ending at the root.
func (s *SectorScene) Ancestors(id int) []*Sector {
	sector, ok := s.sectors[id]
	if !ok {
		return nil
	}
	var out []*Sector
	for sector.ParentID != RootParentID {
		sector = s.sectors[sector.ParentID]
		out = append(out, sector)
	}
	return out
}

// SectorsIntersecting returns every sector whose bounds overlap box. A sector
// whose bounds miss the box prunes its subtree.
func (s *SectorScene) SectorsIntersecting(box geom.Box3) []*Sector {
	var out []*Sector
	s.Walk(func(sector *Sector) bool {
		if !sector.Bounds.IntersectsBox(box) {
			return false
		}
		out = append(out, sector)
		return true
	})
	return out
}

// SectorsAlongRay returns the sectors a ray passes through, in walk order.
func (s *SectorScene) SectorsAlongRay(r geom.Ray) []*Sector {
	var out []*Sector
	s.Walk(func(sector *Sector) bool {
		if _, hit := sector.Bounds.IntersectRay(r); !hit {
			return false
		}
		out = append(out, sector)
		return true
	})
	return out
}

// TotalDownloadSize sums the download size of all sectors.
func (s *SectorScene) TotalDownloadSize() int64 {
	var total int64
	for _, sector := range s.order {
		total += sector.DownloadSize
	}
	return total
}
