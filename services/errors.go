package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Engine errors, grouped by how callers should treat them. Handlers
// translate these to HTTP statuses; session-scoped rejections also
// surface as an "error" event on the session stream.

// Validation: rejected locally, no state change.
var (
	ErrInvalidPlacement = errors.New("invalid ship placement")
	ErrOutOfBounds      = errors.New("coordinates out of bounds")
	ErrMalformedInput   = errors.New("malformed input")
	ErrSelfJoin         = errors.New("cannot accept your own invite")
)

// Sequencing: the operation arrived out of order, no state change.
var (
	ErrNotYourTurn      = errors.New("not your turn")
	ErrAlreadyShot      = errors.New("cell already targeted")
	ErrAlreadyCommitted = errors.New("board already committed")
	ErrAlreadyAccepted  = errors.New("invite already accepted")
	ErrWrongState       = errors.New("operation not allowed in current session state")
	ErrNotParticipant   = errors.New("player is not part of this session")
)

// Lifecycle: the resource is gone, unknown, or no longer actionable.
var (
	ErrNotFound          = errors.New("not found")
	ErrExpired           = errors.New("invite expired")
	ErrRematchExpired    = errors.New("rematch window expired")
	ErrStakeNotConfirmed = errors.New("on-chain stake not confirmed yet")
	ErrContractMissing   = errors.New("game contract not registered")
)

// Fatal: settlement could not complete; the session is distressed and
// queued for administrative resolution.
var ErrSettlementFailed = errors.New("settlement failed")

// HTTPStatus maps an engine error to the response status the
// gateway-facing handlers should return.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrExpired), errors.Is(err, ErrRematchExpired):
		return fiber.StatusGone
	case errors.Is(err, ErrAlreadyShot),
		errors.Is(err, ErrAlreadyCommitted),
		errors.Is(err, ErrAlreadyAccepted),
		errors.Is(err, ErrNotYourTurn),
		errors.Is(err, ErrWrongState):
		return fiber.StatusConflict
	case errors.Is(err, ErrNotParticipant), errors.Is(err, ErrSelfJoin):
		return fiber.StatusForbidden
	case errors.Is(err, ErrStakeNotConfirmed), errors.Is(err, ErrContractMissing):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, ErrSettlementFailed):
		return fiber.StatusInternalServerError
	case errors.Is(err, ErrInvalidPlacement),
		errors.Is(err, ErrOutOfBounds),
		errors.Is(err, ErrMalformedInput):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
