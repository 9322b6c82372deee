package compute

// grid provides O(1) neighbor lookups over batch indices using a
// cell-based spatial hash. Rebuilt once per tick from the frozen
// snapshot, then read concurrently by the compute phase.
type grid struct {
	cellSize float32
	cols     int
	rows     int
	cells    [][]int32
}

func newGrid(width, height, cellSize float32) *grid {
	cols := int(width/cellSize) + 1
	rows := int(height/cellSize) + 1

	cells := make([][]int32, cols*rows)
	for i := range cells {
		cells[i] = make([]int32, 0, 8)
	}

	return &grid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    cells,
	}
}

// rebuild clears the grid and inserts every live staged entity.
func (g *grid) rebuild(b *Batch) {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	for i := 0; i < b.N; i++ {
		if !b.Alive[i] {
			continue
		}
		idx := g.cellIndex(b.X[i], b.Y[i])
		g.cells[idx] = append(g.cells[idx], int32(i))
	}
}

// neighbor holds a nearby batch index with precomputed spatial data.
type neighbor struct {
	Index  int32
	DX, DY float32
	DistSq float32
}

// maxQueryResults caps the number of neighbors returned by a query so
// density spikes cannot cause unbounded work.
const maxQueryResults = 128

// queryRadiusInto appends batch indices within radius of (x, y) to dst
// and returns it. Reuse dst across calls to avoid allocations.
func (g *grid) queryRadiusInto(dst []neighbor, b *Batch, x, y, radius float32, exclude int32) []neighbor {
	cellRadius := int(radius/g.cellSize) + 1
	centerCol := int(x / g.cellSize)
	centerRow := int(y / g.cellSize)
	radiusSq := radius * radius

	for dr := -cellRadius; dr <= cellRadius; dr++ {
		row := centerRow + dr
		if row < 0 || row >= g.rows {
			continue
		}
		for dc := -cellRadius; dc <= cellRadius; dc++ {
			col := centerCol + dc
			if col < 0 || col >= g.cols {
				continue
			}

			for _, i := range g.cells[row*g.cols+col] {
				if i == exclude {
					continue
				}
				dx := b.X[i] - x
				dy := b.Y[i] - y
				distSq := dx*dx + dy*dy
				if distSq <= radiusSq {
					dst = append(dst, neighbor{Index: i, DX: dx, DY: dy, DistSq: distSq})
					if len(dst) >= maxQueryResults {
						return dst
					}
				}
			}
		}
	}

	return dst
}

// cellIndex returns the flat cell index for a world position, clamped to
// the grid.
func (g *grid) cellIndex(x, y float32) int {
	col := int(x / g.cellSize)
	row := int(y / g.cellSize)

	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}

	return row*g.cols + col
}
