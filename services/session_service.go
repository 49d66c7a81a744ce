package services

import (
	"log"

	"naval-session-engine/models"

	"github.com/gofiber/fiber/v2"
)

// SessionService exposes the live-session operations over HTTP. It is
// a thin layer: every rule lives in GameSession, the handlers just
// parse, dispatch, and report rejections on the event stream.
type SessionService struct {
	registry *SessionRegistry
	events   *EventHub
}

// NewSessionService wires the service.
func NewSessionService(registry *SessionRegistry, events *EventHub) *SessionService {
	return &SessionService{registry: registry, events: events}
}

// reject maps a rule violation onto HTTP and mirrors it on the event
// stream so a subscribed client sees its own rejected action.
func (s *SessionService) reject(c *fiber.Ctx, sessionID, op string, err error) error {
	s.events.Emit(sessionID, EventError, ErrorEventData{Op: op, Reason: err.Error()})
	return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func (s *SessionService) session(c *fiber.Ctx) (*GameSession, error) {
	return s.registry.Get(c.Params("id"))
}

// hasRole checks the gateway-provided roles for any of the wanted ones.
func hasRole(c *fiber.Ctx, want ...string) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		for _, w := range want {
			if r == w {
				return true
			}
		}
	}
	return false
}

// GetSession handles GET /sessions/:id.
func (s *SessionService) GetSession(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "session not found"})
	}
	return c.JSON(sess.Snapshot())
}

type registerContractRequest struct {
	ContractAddress string `json:"contract_address"`
	GameID          string `json:"game_id"`
}

// RegisterGameContract handles POST /sessions/:id/contract.
func (s *SessionService) RegisterGameContract(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "session not found"})
	}
	var req registerContractRequest
	if err := c.BodyParser(&req); err != nil || req.ContractAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "contract_address required"})
	}
	// Participants and the settlement collaborator only; a stranger must
	// not be able to point a session at an arbitrary contract.
	caller := c.Locals("user_id").(string)
	snap := sess.Snapshot()
	if caller != snap.Player1 && caller != snap.Player2 && !hasRole(c, "settlement", "admin") {
		return s.reject(c, sess.ID(), "register_contract", ErrNotParticipant)
	}
	if err := sess.RegisterGameContract(req.ContractAddress, req.GameID); err != nil {
		return s.reject(c, sess.ID(), "register_contract", err)
	}
	return c.JSON(fiber.Map{"success": true})
}

type submitBoardRequest struct {
	Ships []models.Ship `json:"ships"`
}

// SubmitBoard handles POST /sessions/:id/board.
func (s *SessionService) SubmitBoard(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "session not found"})
	}
	var req submitBoardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	player := c.Locals("user_id").(string)
	if err := sess.SubmitBoard(player, req.Ships); err != nil {
		return s.reject(c, sess.ID(), "submit_board", err)
	}
	return c.JSON(fiber.Map{"success": true, "status": sess.Snapshot().Status})
}

type fireShotRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// FireShot handles POST /sessions/:id/shots.
func (s *SessionService) FireShot(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "session not found"})
	}
	var req fireShotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	player := c.Locals("user_id").(string)
	shot, err := sess.FireShot(player, req.X, req.Y)
	if err != nil {
		return s.reject(c, sess.ID(), "fire_shot", err)
	}
	return c.JSON(shot)
}

type forfeitRequest struct {
	Reason models.ForfeitReason `json:"reason"`
	// Offender names the flagged player on anti-cheat forfeits; ignored
	// otherwise.
	Offender string `json:"offender,omitempty"`
}

// Forfeit handles POST /sessions/:id/forfeit. A player can only ever
// forfeit themselves; CHEATING_DETECTED is reserved for the anti-cheat
// collaborator, which names the offender explicitly.
func (s *SessionService) Forfeit(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "session not found"})
	}
	var req forfeitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	reason := req.Reason
	if reason == "" {
		reason = models.ForfeitPlayerQuit
	}
	player := c.Locals("user_id").(string)
	offender := player
	if reason == models.ForfeitCheating {
		if !hasRole(c, "anticheat", "admin") {
			log.Printf("🚫 [Session] %s attempted a cheating forfeit on %s without authority", player, sess.ID())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "cheating forfeits are reserved for the anti-cheat service"})
		}
		if req.Offender == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "offender required for cheating forfeits"})
		}
		offender = req.Offender
	}
	if err := sess.Forfeit(offender, reason); err != nil {
		return s.reject(c, sess.ID(), "forfeit", err)
	}
	log.Printf("[Session] %s forfeited session %s (%s)", offender, sess.ID(), reason)
	return c.JSON(fiber.Map{"success": true, "status": sess.Snapshot().Status})
}

// RequestRematch handles POST /sessions/:id/rematch/request.
func (s *SessionService) RequestRematch(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "session not found"})
	}
	player := c.Locals("user_id").(string)
	if err := sess.RequestRematch(player); err != nil {
		return s.reject(c, sess.ID(), "rematch_request", err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// AcceptRematch handles POST /sessions/:id/rematch/accept. When both
// players have voted the response carries the new session id.
func (s *SessionService) AcceptRematch(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "session not found"})
	}
	player := c.Locals("user_id").(string)
	newID, err := sess.AcceptRematch(player)
	if err != nil {
		return s.reject(c, sess.ID(), "rematch_accept", err)
	}
	resp := fiber.Map{"success": true}
	if newID != "" {
		resp["new_session_id"] = newID
	}
	return c.JSON(resp)
}
