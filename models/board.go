package models

import "time"

// GridSize is the side length of every board.
const GridSize = 8

// ShipVariant is one of the five fixed fleet members.
type ShipVariant string

const (
	ShipCarrier    ShipVariant = "carrier"
	ShipBattleship ShipVariant = "battleship"
	ShipCruiser    ShipVariant = "cruiser"
	ShipSubmarine  ShipVariant = "submarine"
	ShipDestroyer  ShipVariant = "destroyer"
)

// FleetVariants lists the exact fleet a committed board must contain.
var FleetVariants = []ShipVariant{
	ShipCarrier,
	ShipBattleship,
	ShipCruiser,
	ShipSubmarine,
	ShipDestroyer,
}

var variantLengths = map[ShipVariant]int{
	ShipCarrier:    5,
	ShipBattleship: 4,
	ShipCruiser:    3,
	ShipSubmarine:  3,
	ShipDestroyer:  2,
}

// Length returns the fixed cell count for the variant, 0 if unknown.
func (v ShipVariant) Length() int { return variantLengths[v] }

// Orientation of a ship on the grid.
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// Cell is a single grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Ship is a placement request: variant, top-left cell and orientation.
type Ship struct {
	Variant     ShipVariant `json:"variant"`
	X           int         `json:"x"`
	Y           int         `json:"y"`
	Orientation Orientation `json:"orientation"`
}

// Cells expands the ship into the grid cells it occupies.
// Cells outside the grid are included so validators can reject them.
func (s Ship) Cells() []Cell {
	n := s.Variant.Length()
	cells := make([]Cell, 0, n)
	for i := 0; i < n; i++ {
		if s.Orientation == Vertical {
			cells = append(cells, Cell{X: s.X, Y: s.Y + i})
		} else {
			cells = append(cells, Cell{X: s.X + i, Y: s.Y})
		}
	}
	return cells
}

// PlacedShip is a ship on a committed board plus its per-cell hitmap.
type PlacedShip struct {
	Ship
	Hits []bool `json:"hits"`
}

// Sunk reports whether every cell of the ship has been struck.
func (p *PlacedShip) Sunk() bool {
	for _, h := range p.Hits {
		if !h {
			return false
		}
	}
	return len(p.Hits) > 0
}

// ShotOutcome is the result of resolving one shot.
type ShotOutcome string

const (
	ShotMiss ShotOutcome = "miss"
	ShotHit  ShotOutcome = "hit"
	ShotSunk ShotOutcome = "sunk"
)

// Board is one player's private grid. Owned exclusively by its session;
// never persisted, never shown to the opponent.
type Board struct {
	Owner     string
	Ships     []*PlacedShip
	Targeted  map[Cell]bool
	Committed bool
}

// NewBoard builds a board from an already-validated fleet.
func NewBoard(owner string, ships []Ship) *Board {
	b := &Board{Owner: owner, Targeted: make(map[Cell]bool)}
	for _, s := range ships {
		b.Ships = append(b.Ships, &PlacedShip{Ship: s, Hits: make([]bool, s.Variant.Length())})
	}
	return b
}

// Shot records one resolved shot for the session transcript.
type Shot struct {
	Seq    int         `json:"seq"`
	By     string      `json:"by"`
	X      int         `json:"x"`
	Y      int         `json:"y"`
	Result ShotOutcome `json:"result"`
	At     time.Time   `json:"at"`
}

// ApplyShot marks the cell and resolves hit/miss/sunk. The caller must
// have rejected out-of-bounds and repeat targets already.
func (b *Board) ApplyShot(x, y int) (ShotOutcome, ShipVariant) {
	b.Targeted[Cell{X: x, Y: y}] = true
	for _, ship := range b.Ships {
		for i, c := range ship.Cells() {
			if c.X == x && c.Y == y {
				ship.Hits[i] = true
				if ship.Sunk() {
					return ShotSunk, ship.Variant
				}
				return ShotHit, ship.Variant
			}
		}
	}
	return ShotMiss, ""
}

// AllSunk reports whether the entire fleet has been destroyed.
func (b *Board) AllSunk() bool {
	for _, ship := range b.Ships {
		if !ship.Sunk() {
			return false
		}
	}
	return len(b.Ships) > 0
}
