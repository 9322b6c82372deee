// Package tile partitions the world rectangle into a fixed grid of tiles.
package tile

// Bounds is an axis-aligned rectangle, min-inclusive and max-exclusive.
type Bounds struct {
	MinX, MinY float32
	MaxX, MaxY float32
}

// Contains reports whether (x, y) lies inside the rectangle.
func (b Bounds) Contains(x, y float32) bool {
	return x >= b.MinX && x < b.MaxX && y >= b.MinY && y < b.MaxY
}

// Intersects reports whether two rectangles overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX < o.MaxX && o.MinX < b.MaxX && b.MinY < o.MaxY && o.MinY < b.MaxY
}

// Width returns the horizontal extent.
func (b Bounds) Width() float32 { return b.MaxX - b.MinX }

// Height returns the vertical extent.
func (b Bounds) Height() float32 { return b.MaxY - b.MinY }

// Center returns the midpoint.
func (b Bounds) Center() (float32, float32) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

// Tile is one cell of the partition.
type Tile struct {
	ID        int
	Col, Row  int
	Bounds    Bounds
	Neighbors []int // ids of the up-to-8 adjacent tiles
}

// Grid is the immutable tile partition of a world rectangle. Tiles are a
// nominal size; the last column and row stretch to close the world edge.
type Grid struct {
	cols, rows     int
	size           float32
	worldW, worldH float32
	tiles          []Tile
}

// NewGrid partitions a worldW x worldH rectangle into tiles of the given
// nominal size. Every point of the world belongs to exactly one tile.
func NewGrid(worldW, worldH, size float32) *Grid {
	cols := int(worldW / size)
	if float32(cols)*size < worldW {
		cols++
	}
	rows := int(worldH / size)
	if float32(rows)*size < worldH {
		rows++
	}
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	g := &Grid{
		cols:   cols,
		rows:   rows,
		size:   size,
		worldW: worldW,
		worldH: worldH,
		tiles:  make([]Tile, cols*rows),
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			id := row*cols + col
			b := Bounds{
				MinX: float32(col) * size,
				MinY: float32(row) * size,
				MaxX: float32(col+1) * size,
				MaxY: float32(row+1) * size,
			}
			if col == cols-1 {
				b.MaxX = worldW
			}
			if row == rows-1 {
				b.MaxY = worldH
			}
			g.tiles[id] = Tile{ID: id, Col: col, Row: row, Bounds: b}
		}
	}

	for id := range g.tiles {
		t := &g.tiles[id]
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				if dr == 0 && dc == 0 {
					continue
				}
				nc, nr := t.Col+dc, t.Row+dr
				if nc < 0 || nc >= cols || nr < 0 || nr >= rows {
					continue
				}
				t.Neighbors = append(t.Neighbors, nr*cols+nc)
			}
		}
	}
	return g
}

// Len returns the number of tiles.
func (g *Grid) Len() int { return len(g.tiles) }

// Cols returns the number of tile columns.
func (g *Grid) Cols() int { return g.cols }

// Rows returns the number of tile rows.
func (g *Grid) Rows() int { return g.rows }

// Tile returns the tile with the given id.
func (g *Grid) Tile(id int) Tile { return g.tiles[id] }

// Tiles returns all tiles in id order. The slice is shared; do not mutate.
func (g *Grid) Tiles() []Tile { return g.tiles }

// TileFor returns the id of the tile containing (x, y). Points on or past
// the world edge are clamped into the nearest tile, so the max edge maps
// to the last column and row.
func (g *Grid) TileFor(x, y float32) int {
	col := int(x / g.size)
	row := int(y / g.size)
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

// Overlapping appends the ids of every tile intersecting b to dst and
// returns it.
func (g *Grid) Overlapping(b Bounds, dst []int) []int {
	for id := range g.tiles {
		if g.tiles[id].Bounds.Intersects(b) {
			dst = append(dst, id)
		}
	}
	return dst
}
