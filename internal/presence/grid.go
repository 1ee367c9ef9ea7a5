package presence

import "math"

// cellKey addresses one bucket of the uniform grid.
type cellKey struct {
	col int
	row int
}

// Item is an entry tracked by the grid.
type Item struct {
	ID   string
	X    float64
	Y    float64
	Data any
}

// Grid is a uniform spatial partition over 2-D cursor coordinates.
//
// Cell size should sit close to the typical query radius: large enough that
// a query touches a handful of cells, small enough that each cell holds a
// small fraction of the population. Operations are synchronous and sized for
// one call per animation frame.
//
// Grid is not safe for concurrent use; callers own synchronization. The
// index is derived state only and can always be rebuilt from the
// authoritative presence set.
type Grid struct {
	cellSize float64
	cells    map[cellKey]map[string]*Item
}

// NewGrid creates a grid with the given cell size. Sizes at or below zero
// fall back to 100, a practical default for cursor proximity thresholds.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 100
	}
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[string]*Item),
	}
}

func (g *Grid) keyFor(x, y float64) cellKey {
	return cellKey{
		col: int(math.Floor(x / g.cellSize)),
		row: int(math.Floor(y / g.cellSize)),
	}
}

// Insert adds an item at a position. Re-inserting an existing id moves it.
func (g *Grid) Insert(id string, x, y float64, data any) *Item {
	item := &Item{ID: id, X: x, Y: y, Data: data}
	key := g.keyFor(x, y)
	cell, ok := g.cells[key]
	if !ok {
		cell = make(map[string]*Item)
		g.cells[key] = cell
	}
	cell[id] = item
	return item
}

// Remove deletes the item with id at the cell covering (x, y).
func (g *Grid) Remove(id string, x, y float64) {
	key := g.keyFor(x, y)
	cell, ok := g.cells[key]
	if !ok {
		return
	}
	delete(cell, id)
	if len(cell) == 0 {
		delete(g.cells, key)
	}
}

// Update moves an item to its current coordinates, relocating between cells
// only when the cell key actually changes. Sub-cell jitter is free.
func (g *Grid) Update(item *Item, oldX, oldY float64) {
	oldKey := g.keyFor(oldX, oldY)
	newKey := g.keyFor(item.X, item.Y)
	if oldKey == newKey {
		if cell, ok := g.cells[oldKey]; ok {
			cell[item.ID] = item
		}
		return
	}
	g.Remove(item.ID, oldX, oldY)
	cell, ok := g.cells[newKey]
	if !ok {
		cell = make(map[string]*Item)
		g.cells[newKey] = cell
	}
	cell[item.ID] = item
}

// FindNearby returns all items within radius of (x, y), excluding excludeID.
//
// Search is two-phase: a coarse pass enumerates only the cells overlapping
// the bounding square (cost independent of total population), then an exact
// pass keeps members within true Euclidean distance. The boundary rule is
// inclusive: distance == radius counts as nearby.
func (g *Grid) FindNearby(x, y, radius float64, excludeID string) []*Item {
	if radius < 0 {
		return nil
	}

	minCol := int(math.Floor((x - radius) / g.cellSize))
	maxCol := int(math.Floor((x + radius) / g.cellSize))
	minRow := int(math.Floor((y - radius) / g.cellSize))
	maxRow := int(math.Floor((y + radius) / g.cellSize))

	radiusSq := radius * radius
	var nearby []*Item
	for col := minCol; col <= maxCol; col++ {
		for row := minRow; row <= maxRow; row++ {
			cell, ok := g.cells[cellKey{col: col, row: row}]
			if !ok {
				continue
			}
			for id, item := range cell {
				if id == excludeID {
					continue
				}
				dx := item.X - x
				dy := item.Y - y
				if dx*dx+dy*dy <= radiusSq {
					nearby = append(nearby, item)
				}
			}
		}
	}
	return nearby
}

// Len reports the total number of indexed items.
func (g *Grid) Len() int {
	total := 0
	for _, cell := range g.cells {
		total += len(cell)
	}
	return total
}
