package tile

import "testing"

// TestGridCoversWorld verifies every point maps to exactly one tile and
// the tiles together cover the full world rectangle.
func TestGridCoversWorld(t *testing.T) {
	g := NewGrid(1000, 700, 200)

	if g.Cols() != 5 {
		t.Errorf("Cols() = %d, want 5", g.Cols())
	}
	if g.Rows() != 4 {
		t.Errorf("Rows() = %d, want 4", g.Rows())
	}
	if g.Len() != 20 {
		t.Errorf("Len() = %d, want 20", g.Len())
	}

	// Sample a lattice of points; each must land in a tile whose bounds
	// contain it, and no two tiles may claim the same point.
	for x := float32(0); x < 1000; x += 25 {
		for y := float32(0); y < 700; y += 25 {
			id := g.TileFor(x, y)
			if id < 0 || id >= g.Len() {
				t.Fatalf("TileFor(%v, %v) = %d, out of range", x, y, id)
			}
			if !g.Tile(id).Bounds.Contains(x, y) {
				t.Errorf("tile %d bounds %+v does not contain (%v, %v)", id, g.Tile(id).Bounds, x, y)
			}
			owners := 0
			for _, tl := range g.Tiles() {
				if tl.Bounds.Contains(x, y) {
					owners++
				}
			}
			if owners != 1 {
				t.Errorf("point (%v, %v) owned by %d tiles, want 1", x, y, owners)
			}
		}
	}
}

// TestGridStretchesLastRow verifies the final column and row absorb the
// remainder when the tile size does not divide the world evenly.
func TestGridStretchesLastRow(t *testing.T) {
	g := NewGrid(500, 500, 200)

	if g.Cols() != 3 || g.Rows() != 3 {
		t.Fatalf("grid = %dx%d, want 3x3", g.Cols(), g.Rows())
	}
	last := g.Tile(g.Len() - 1)
	if last.Bounds.MaxX != 500 || last.Bounds.MaxY != 500 {
		t.Errorf("last tile max = (%v, %v), want (500, 500)", last.Bounds.MaxX, last.Bounds.MaxY)
	}
	if last.Bounds.Width() != 100 {
		t.Errorf("last tile width = %v, want 100", last.Bounds.Width())
	}
}

// TestTileForClampsEdges verifies points on or past the world edge map to
// the nearest tile instead of panicking or escaping the grid.
func TestTileForClampsEdges(t *testing.T) {
	g := NewGrid(600, 400, 200)

	tests := []struct {
		name string
		x, y float32
		want int
	}{
		{"origin", 0, 0, 0},
		{"interior", 350, 250, 4},
		{"world max corner", 600, 400, g.Len() - 1},
		{"past max", 900, 900, g.Len() - 1},
		{"negative", -50, -50, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := g.TileFor(tc.x, tc.y)
			if got != tc.want {
				t.Errorf("TileFor(%v, %v) = %d, want %d", tc.x, tc.y, got, tc.want)
			}
		})
	}
}

// TestNeighbors verifies interior tiles have 8 neighbors, corners 3, and
// edges 5, with no tile listing itself.
func TestNeighbors(t *testing.T) {
	g := NewGrid(600, 600, 200)

	tests := []struct {
		name string
		id   int
		want int
	}{
		{"corner", 0, 3},
		{"edge", 1, 5},
		{"interior", 4, 8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tl := g.Tile(tc.id)
			if len(tl.Neighbors) != tc.want {
				t.Errorf("tile %d has %d neighbors, want %d", tc.id, len(tl.Neighbors), tc.want)
			}
			for _, n := range tl.Neighbors {
				if n == tc.id {
					t.Errorf("tile %d lists itself as a neighbor", tc.id)
				}
				if n < 0 || n >= g.Len() {
					t.Errorf("tile %d neighbor %d out of range", tc.id, n)
				}
			}
		})
	}
}

// TestOverlapping verifies viewport-style rectangle queries return the
// intersecting tiles.
func TestOverlapping(t *testing.T) {
	g := NewGrid(600, 600, 200)

	got := g.Overlapping(Bounds{MinX: 150, MinY: 150, MaxX: 250, MaxY: 250}, nil)
	if len(got) != 4 {
		t.Fatalf("Overlapping spanning four tiles returned %d ids: %v", len(got), got)
	}

	got = g.Overlapping(Bounds{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20}, got[:0])
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("Overlapping inside tile 0 = %v, want [0]", got)
	}
}
