package services

import (
	"testing"

	"naval-session-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validFleet spreads the five ships with at least one empty row or
// column between any two of them.
func validFleet() []models.Ship {
	return []models.Ship{
		{Variant: models.ShipCarrier, X: 0, Y: 0, Orientation: models.Horizontal},
		{Variant: models.ShipBattleship, X: 0, Y: 2, Orientation: models.Horizontal},
		{Variant: models.ShipCruiser, X: 0, Y: 4, Orientation: models.Horizontal},
		{Variant: models.ShipSubmarine, X: 0, Y: 6, Orientation: models.Horizontal},
		{Variant: models.ShipDestroyer, X: 6, Y: 2, Orientation: models.Vertical},
	}
}

func TestInBounds(t *testing.T) {
	assert.True(t, InBounds(models.Ship{Variant: models.ShipCarrier, X: 3, Y: 0, Orientation: models.Horizontal}))
	assert.False(t, InBounds(models.Ship{Variant: models.ShipCarrier, X: 4, Y: 0, Orientation: models.Horizontal}))
	assert.True(t, InBounds(models.Ship{Variant: models.ShipDestroyer, X: 7, Y: 6, Orientation: models.Vertical}))
	assert.False(t, InBounds(models.Ship{Variant: models.ShipDestroyer, X: 7, Y: 7, Orientation: models.Vertical}))
	assert.False(t, InBounds(models.Ship{Variant: models.ShipCruiser, X: -1, Y: 0, Orientation: models.Horizontal}))
}

func TestIsValidPlacementBufferZone(t *testing.T) {
	carrier := models.Ship{Variant: models.ShipCarrier, X: 0, Y: 0, Orientation: models.Horizontal}

	// Directly below the carrier: inside the one-cell buffer.
	touching := models.Ship{Variant: models.ShipDestroyer, X: 0, Y: 1, Orientation: models.Horizontal}
	assert.False(t, IsValidPlacement(touching, []models.Ship{carrier}))

	// Diagonal contact counts as touching too.
	diagonal := models.Ship{Variant: models.ShipDestroyer, X: 5, Y: 1, Orientation: models.Horizontal}
	assert.False(t, IsValidPlacement(diagonal, []models.Ship{carrier}))

	// One full empty row between them is fine.
	clear := models.Ship{Variant: models.ShipDestroyer, X: 2, Y: 2, Orientation: models.Horizontal}
	assert.True(t, IsValidPlacement(clear, []models.Ship{carrier}))
}

func TestIsValidPlacementOverlap(t *testing.T) {
	cruiser := models.Ship{Variant: models.ShipCruiser, X: 2, Y: 2, Orientation: models.Horizontal}
	crossing := models.Ship{Variant: models.ShipSubmarine, X: 3, Y: 1, Orientation: models.Vertical}
	assert.False(t, IsValidPlacement(crossing, []models.Ship{cruiser}))
}

func TestValidateFleetAcceptsValidBoard(t *testing.T) {
	require.NoError(t, ValidateFleet(validFleet()))
}

func TestValidateFleetRejectsWrongComposition(t *testing.T) {
	// Missing destroyer
	fleet := validFleet()[:4]
	err := ValidateFleet(fleet)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlacement)

	// Duplicate destroyer instead of a submarine
	fleet = validFleet()
	fleet[3] = models.Ship{Variant: models.ShipDestroyer, X: 0, Y: 6, Orientation: models.Horizontal}
	err = ValidateFleet(fleet)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlacement)
}

func TestValidateFleetRejectsTouchingShips(t *testing.T) {
	fleet := validFleet()
	// Move the battleship right under the carrier.
	fleet[1].Y = 1
	err := ValidateFleet(fleet)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlacement)
}

func TestValidateFleetRejectsOutOfBounds(t *testing.T) {
	fleet := validFleet()
	fleet[0].X = 4 // carrier now runs off the right edge
	err := ValidateFleet(fleet)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPlacement)
}
