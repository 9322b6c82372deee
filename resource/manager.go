// Package resource manages consumable food items: placement, atomic
// consumption, and noise-biased regeneration.
package resource

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/jessehattabaugh/world/tile"
)

// Resource is one consumable food item.
type Resource struct {
	ID     uint64
	X, Y   float32
	Energy float32
	Born   uint64 // tick of creation
}

// Params configures a Manager.
type Params struct {
	EnergyValue float32
	MinSpacing  float32
	RegenRate   float64 // expected items per second per region
	MaxPerTile  int
	NoiseScale  float64
}

// Manager tracks food items over a set of tile regions. It is not safe for
// concurrent callers: each worker owns one Manager and serializes access.
type Manager struct {
	params    Params
	fertility opensimplex.Noise

	regions map[int]tile.Bounds
	counts  map[int]int     // live items per region
	carry   map[int]float64 // fractional regeneration accumulator

	items map[uint64]Resource
	order []uint64 // insertion order, keeps snapshots deterministic
	cells map[cellKey][]uint64

	nextID uint64
}

type cellKey struct {
	col, row int32
}

// NewManager creates an empty manager. The seed fixes the fertility field
// so regeneration density is stable across resets.
func NewManager(params Params, seed int64) *Manager {
	if params.MinSpacing <= 0 {
		params.MinSpacing = 1
	}
	return &Manager{
		params:    params,
		fertility: opensimplex.NewNormalized(seed),
		regions:   make(map[int]tile.Bounds),
		counts:    make(map[int]int),
		carry:     make(map[int]float64),
		items:     make(map[uint64]Resource),
		cells:     make(map[cellKey][]uint64),
	}
}

// AddRegion starts managing food inside the given tile bounds.
func (m *Manager) AddRegion(id int, b tile.Bounds) {
	m.regions[id] = b
}

// RemoveRegion stops managing a tile and deletes the food items inside it.
func (m *Manager) RemoveRegion(id int) {
	b, ok := m.regions[id]
	if !ok {
		return
	}
	delete(m.regions, id)
	delete(m.counts, id)
	delete(m.carry, id)

	for i := 0; i < len(m.order); {
		r := m.items[m.order[i]]
		if b.Contains(r.X, r.Y) {
			m.removeAt(i)
			continue
		}
		i++
	}
}

// CanSpawnAt reports whether a new item at (x, y) would respect the
// minimum spacing rule against existing items.
func (m *Manager) CanSpawnAt(x, y float32) bool {
	spacing := m.params.MinSpacing
	spacingSq := spacing * spacing
	centerCol := int32(x / spacing)
	centerRow := int32(y / spacing)

	for dc := int32(-1); dc <= 1; dc++ {
		for dr := int32(-1); dr <= 1; dr++ {
			ids := m.cells[cellKey{centerCol + dc, centerRow + dr}]
			for _, id := range ids {
				r := m.items[id]
				dx := r.X - x
				dy := r.Y - y
				if dx*dx+dy*dy < spacingSq {
					return false
				}
			}
		}
	}
	return true
}

// Spawn places a food item at (x, y) if the position lies inside a managed
// region and the spacing rule holds. Returns the item and true on success.
func (m *Manager) Spawn(x, y float32, tick uint64) (Resource, bool) {
	regionID, ok := m.regionAt(x, y)
	if !ok {
		return Resource{}, false
	}
	if !m.CanSpawnAt(x, y) {
		return Resource{}, false
	}

	m.nextID++
	r := Resource{
		ID:     m.nextID,
		X:      x,
		Y:      y,
		Energy: m.params.EnergyValue,
		Born:   tick,
	}
	m.items[r.ID] = r
	m.order = append(m.order, r.ID)
	key := cellKey{int32(x / m.params.MinSpacing), int32(y / m.params.MinSpacing)}
	m.cells[key] = append(m.cells[key], r.ID)
	m.counts[regionID]++
	return r, true
}

// TryConsume atomically removes an item and returns its energy. A second
// call for the same id returns (0, false); double consumption is resolved
// by the zero return, never an error.
func (m *Manager) TryConsume(id uint64) (float32, bool) {
	r, ok := m.items[id]
	if !ok {
		return 0, false
	}
	for i, oid := range m.order {
		if oid == id {
			m.removeAt(i)
			break
		}
	}
	return r.Energy, true
}

// Update regenerates food probabilistically, scaled by dt. Candidate
// positions are drawn uniformly per region and accepted with probability
// equal to the fertility field there, subject to spacing and density caps.
// Returns the number of items spawned.
func (m *Manager) Update(rng *rand.Rand, dt float32, tick uint64) int {
	spawned := 0
	for id, b := range m.regions {
		m.carry[id] += m.params.RegenRate * float64(dt)
		attempts := int(m.carry[id])
		if attempts == 0 {
			continue
		}
		m.carry[id] -= float64(attempts)

		for i := 0; i < attempts; i++ {
			if m.params.MaxPerTile > 0 && m.counts[id] >= m.params.MaxPerTile {
				break
			}
			x := b.MinX + rng.Float32()*(b.MaxX-b.MinX)
			y := b.MinY + rng.Float32()*(b.MaxY-b.MinY)
			p := m.fertility.Eval2(float64(x)*m.params.NoiseScale, float64(y)*m.params.NoiseScale)
			if rng.Float64() > p {
				continue
			}
			if _, ok := m.Spawn(x, y, tick); ok {
				spawned++
			}
		}
	}
	return spawned
}

// Snapshot appends a copy of every live item to dst and returns it.
// Reuse dst across ticks to avoid allocations.
func (m *Manager) Snapshot(dst []Resource) []Resource {
	for _, id := range m.order {
		dst = append(dst, m.items[id])
	}
	return dst
}

// Count returns the number of live items.
func (m *Manager) Count() int {
	return len(m.items)
}

// Reset deletes every item but keeps regions and the fertility field.
func (m *Manager) Reset() {
	m.items = make(map[uint64]Resource)
	m.order = m.order[:0]
	m.cells = make(map[cellKey][]uint64)
	for id := range m.counts {
		m.counts[id] = 0
	}
	for id := range m.carry {
		m.carry[id] = 0
	}
}

// removeAt deletes the item at order index i.
func (m *Manager) removeAt(i int) {
	id := m.order[i]
	r := m.items[id]
	delete(m.items, id)
	m.order = append(m.order[:i], m.order[i+1:]...)

	key := cellKey{int32(r.X / m.params.MinSpacing), int32(r.Y / m.params.MinSpacing)}
	ids := m.cells[key]
	for j, cid := range ids {
		if cid == id {
			ids[j] = ids[len(ids)-1]
			m.cells[key] = ids[:len(ids)-1]
			break
		}
	}
	if len(m.cells[key]) == 0 {
		delete(m.cells, key)
	}

	if regionID, ok := m.regionAt(r.X, r.Y); ok {
		m.counts[regionID]--
	}
}

func (m *Manager) regionAt(x, y float32) (int, bool) {
	for id, b := range m.regions {
		if b.Contains(x, y) {
			return id, true
		}
	}
	return 0, false
}
