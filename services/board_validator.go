package services

import (
	"fmt"

	"naval-session-engine/models"
)

// Board placement rules. Pure functions, no side effects: the session
// state machine calls these before a board may commit.

// InBounds reports whether every cell of the ship fits the grid.
func InBounds(ship models.Ship) bool {
	for _, c := range ship.Cells() {
		if c.X < 0 || c.X >= models.GridSize || c.Y < 0 || c.Y >= models.GridSize {
			return false
		}
	}
	return true
}

// bufferZone expands the ship's occupied cells by one cell in every
// direction (including diagonals), clamped to the grid.
func bufferZone(ship models.Ship) map[models.Cell]bool {
	zone := make(map[models.Cell]bool)
	for _, c := range ship.Cells() {
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				x, y := c.X+dx, c.Y+dy
				if x < 0 || x >= models.GridSize || y < 0 || y >= models.GridSize {
					continue
				}
				zone[models.Cell{X: x, Y: y}] = true
			}
		}
	}
	return zone
}

// IsValidPlacement accepts the candidate iff it is in bounds and no
// cell of any other ship falls inside the candidate's buffer zone.
// Ships may therefore never overlap or touch, even diagonally.
func IsValidPlacement(candidate models.Ship, others []models.Ship) bool {
	if candidate.Variant.Length() == 0 || !InBounds(candidate) {
		return false
	}
	zone := bufferZone(candidate)
	for _, other := range others {
		for _, c := range other.Cells() {
			if zone[c] {
				return false
			}
		}
	}
	return true
}

// ValidateFleet checks a full board submission: exactly the five fleet
// variants, every ship valid against all the others. Returns an error
// naming the offending ship.
func ValidateFleet(ships []models.Ship) error {
	counts := make(map[models.ShipVariant]int)
	for _, s := range ships {
		counts[s.Variant]++
	}
	for _, v := range models.FleetVariants {
		if counts[v] != 1 {
			return fmt.Errorf("%w: fleet must contain exactly one %s", ErrInvalidPlacement, v)
		}
	}
	if len(ships) != len(models.FleetVariants) {
		return fmt.Errorf("%w: fleet must contain exactly %d ships", ErrInvalidPlacement, len(models.FleetVariants))
	}
	for i, s := range ships {
		others := make([]models.Ship, 0, len(ships)-1)
		others = append(others, ships[:i]...)
		others = append(others, ships[i+1:]...)
		if !IsValidPlacement(s, others) {
			return fmt.Errorf("%w: %s at (%d,%d) %s", ErrInvalidPlacement, s.Variant, s.X, s.Y, s.Orientation)
		}
	}
	return nil
}
