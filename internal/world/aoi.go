// Package world holds the cell server's spatial index: the external
// "spatial index / range-tree" collaborator the witness component is built
// against only through a narrow trigger interface (spec §1).
package world

import "github.com/go-gl/mathgl/mgl32"

// AOIGrid implements a cell-based Area of Interest spatial index over the
// XZ plane (vertical position is not a visibility axis for this kind of
// disc-based AOI). Cell size is chosen by the caller so that a 3x3
// neighbourhood of cells fully covers the largest radius+hysteresis any
// registered trigger will query with — grounded on the teacher's
// internal/world/aoi.go, generalized from 2D int32 tile coordinates and a
// single global map id to float32 world coordinates and a per-trigger
// space id (a cell server can host more than one space/map concurrently).
//
// Accessed only from the game loop goroutine — no locks.
type AOIGrid struct {
	cellSize float32
	cells    map[cellKey]map[uint32]struct{} // cellKey -> set of entity ids
}

type cellKey struct {
	spaceID int32
	cx, cz  int32
}

// NewAOIGrid creates a grid whose cells are cellSize world units square.
func NewAOIGrid(cellSize float32) *AOIGrid {
	if cellSize <= 0 {
		cellSize = 20
	}
	return &AOIGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[uint32]struct{}),
	}
}

func (g *AOIGrid) toCellCoord(v float32) int32 {
	c := v / g.cellSize
	if c < 0 {
		return int32(c) - 1
	}
	return int32(c)
}

func (g *AOIGrid) key(spaceID int32, x, z float32) cellKey {
	return cellKey{spaceID: spaceID, cx: g.toCellCoord(x), cz: g.toCellCoord(z)}
}

// Add places an entity into the grid.
func (g *AOIGrid) Add(id uint32, spaceID int32, x, z float32) {
	k := g.key(spaceID, x, z)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[uint32]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
}

// Remove takes an entity out of the grid.
func (g *AOIGrid) Remove(id uint32, spaceID int32, x, z float32) {
	k := g.key(spaceID, x, z)
	cell := g.cells[k]
	if cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Move updates an entity's cell when its position changes.
func (g *AOIGrid) Move(id uint32, spaceID int32, oldX, oldZ, newX, newZ float32) {
	oldK := g.key(spaceID, oldX, oldZ)
	newK := g.key(spaceID, newX, newZ)
	if oldK == newK {
		return
	}
	g.Remove(id, spaceID, oldX, oldZ)
	g.Add(id, spaceID, newX, newZ)
}

// Nearby returns all entity ids in a 3x3 neighbourhood of cells around the
// given position. Callers do their own fine-grained radius filtering — this
// is a coarse candidate set, not a radius query.
func (g *AOIGrid) Nearby(spaceID int32, pos mgl32.Vec3) []uint32 {
	cx := g.toCellCoord(pos.X())
	cz := g.toCellCoord(pos.Z())
	var result []uint32
	for dx := int32(-1); dx <= 1; dx++ {
		for dz := int32(-1); dz <= 1; dz++ {
			k := cellKey{spaceID: spaceID, cx: cx + dx, cz: cz + dz}
			for id := range g.cells[k] {
				result = append(result, id)
			}
		}
	}
	return result
}
