package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"naval-session-engine/models"
	"naval-session-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	inviteCodeLength     = 8
	defaultInviteExpiry  = 24 * time.Hour
	maxInviteExpiryHours = 24 * 7
)

// InviteService issues shareable codes that open sessions outside the
// match pool. Free and staked invites share one lifecycle; staked ones
// additionally freeze the pool split at creation and gate the session
// start on on-chain confirmations.
type InviteService struct {
	store    Store
	registry *SessionRegistry

	// serializes accepts so first-accept-wins holds without relying on
	// a DB constraint
	mu sync.Mutex

	clock func() time.Time
}

// NewInviteService wires the service.
func NewInviteService(store Store, registry *SessionRegistry) *InviteService {
	return &InviteService{store: store, registry: registry, clock: time.Now}
}

// SetClock overrides the time source (tests).
func (s *InviteService) SetClock(clock func() time.Time) { s.clock = clock }

// Create issues an invite and its waiting session. A nil
// expirationHours takes the 24h default; an explicit 0 makes an invite
// that is already at its deadline and expires on the next accept.
// stakeUSDC == 0 makes a free invite.
func (s *InviteService) Create(creator string, stakeUSDC float64, expirationHours *int, onChainInviteID string) (*models.Invite, error) {
	if creator == "" {
		return nil, fmt.Errorf("%w: creator required", ErrMalformedInput)
	}
	if stakeUSDC < 0 {
		return nil, fmt.Errorf("%w: negative stake", ErrMalformedInput)
	}
	expiry := defaultInviteExpiry
	if expirationHours != nil {
		if *expirationHours < 0 || *expirationHours > maxInviteExpiryHours {
			return nil, fmt.Errorf("%w: expiration must be between 0 and %d hours", ErrMalformedInput, maxInviteExpiryHours)
		}
		expiry = time.Duration(*expirationHours) * time.Hour
	}

	code, err := utils.GenerateInviteCode(inviteCodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	stakeLevel := tierForStake(stakeUSDC)
	sess, err := s.registry.CreateWithCreator(creator, stakeLevel, stakeUSDC)
	if err != nil {
		return nil, err
	}

	inv := &models.Invite{
		ID:        uuid.NewString(),
		Code:      code,
		Creator:   creator,
		SessionID: sess.ID(),
		Status:    models.InviteWaiting,
		ExpiresAt: s.clock().Add(expiry),
	}
	if stakeUSDC > 0 {
		inv.StakeAmountUSDC = stakeUSDC
		inv.OnChainInviteID = onChainInviteID
		inv.PoolUSDC = StakePool(stakeUSDC)
		inv.FeeUSDC = StakeFee(inv.PoolUSDC)
		inv.PayoutUSDC = inv.PoolUSDC - inv.FeeUSDC
	}
	if err := s.store.SaveInvite(inv); err != nil {
		return nil, err
	}
	log.Printf("✅ [Invite] %s created invite %s (stake %.2f USDC, session %s)", creator, code, stakeUSDC, sess.ID())
	return inv, nil
}

// tierForStake maps an exact tier stake back to its name; anything else
// is a custom amount.
func tierForStake(stakeUSDC float64) string {
	for name, amount := range DefaultStakeTiers {
		if amount == stakeUSDC {
			return name
		}
	}
	return "custom"
}

// Accept joins the caller to the invite's session. Exactly one accept
// succeeds per invite; expiry is checked lazily here as well as by the
// sweep.
func (s *InviteService) Accept(code, acceptor string) (*models.Invite, *GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.store.GetInviteByCode(code)
	if err != nil {
		return nil, nil, err
	}
	switch inv.Status {
	case models.InviteExpired:
		return nil, nil, ErrExpired
	case models.InviteReady:
		return nil, nil, ErrAlreadyAccepted
	}
	now := s.clock()
	if now.After(inv.ExpiresAt) {
		inv.Status = models.InviteExpired
		if err := s.store.SaveInvite(inv); err != nil {
			log.Printf("⚠️ [Invite] Failed to mark %s expired: %v", inv.Code, err)
		}
		return nil, nil, ErrExpired
	}
	if acceptor == "" || acceptor == inv.Creator {
		return nil, nil, ErrSelfJoin
	}

	sess, err := s.registry.Get(inv.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Join(acceptor); err != nil {
		return nil, nil, err
	}

	inv.Status = models.InviteReady
	inv.AcceptedBy = acceptor
	inv.AcceptedAt = &now
	if err := s.store.SaveInvite(inv); err != nil {
		return nil, nil, err
	}
	log.Printf("✅ [Invite] %s accepted invite %s (session %s)", acceptor, inv.Code, inv.SessionID)
	return inv, sess, nil
}

// ConfirmStake clears a player's pending stake on the invite's session.
func (s *InviteService) ConfirmStake(code, player string) error {
	inv, err := s.store.GetInviteByCode(code)
	if err != nil {
		return err
	}
	if !inv.Staked() {
		return fmt.Errorf("%w: invite is not staked", ErrMalformedInput)
	}
	sess, err := s.registry.Get(inv.SessionID)
	if err != nil {
		return err
	}
	sess.MarkStakeConfirmed(player)
	return nil
}

// ExpireSweep flips every overdue invite to expired and voids sessions
// still waiting on a second player. Runs on the shared cron scheduler.
func (s *InviteService) ExpireSweep() {
	invites, err := s.store.ListExpiredInvites(s.clock())
	if err != nil {
		log.Printf("❌ [Invite] Expiry sweep query failed: %v", err)
		return
	}
	for _, inv := range invites {
		inv.Status = models.InviteExpired
		if err := s.store.SaveInvite(inv); err != nil {
			log.Printf("⚠️ [Invite] Failed to expire %s: %v", inv.Code, err)
			continue
		}
		if sess, err := s.registry.Get(inv.SessionID); err == nil {
			snap := sess.Snapshot()
			if snap.Status == models.SessionCreated {
				if err := sess.Forfeit("", models.ForfeitPlayerQuit); err != nil && !errors.Is(err, ErrWrongState) {
					log.Printf("⚠️ [Invite] Failed to void session %s: %v", inv.SessionID, err)
				}
			}
		}
	}
	if len(invites) > 0 {
		log.Printf("🧹 [Invite] Expired %d invite(s)", len(invites))
	}
}

// --- Fiber handlers ---

type createInviteRequest struct {
	// nil means "use the default expiry"; 0 is a valid, already-due
	// deadline and must not be conflated with absent.
	ExpirationHours *int    `json:"expiration_hours"`
	StakeUSDC       float64 `json:"stake_usdc"`
	OnChainInviteID string  `json:"on_chain_invite_id"`
}

// CreateInvite handles POST /invites (free invites).
func (s *InviteService) CreateInvite(c *fiber.Ctx) error {
	var req createInviteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	creator := c.Locals("user_id").(string)
	inv, err := s.Create(creator, 0, req.ExpirationHours, "")
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// CreateBettingInvite handles POST /betting/invites (staked invites).
func (s *InviteService) CreateBettingInvite(c *fiber.Ctx) error {
	var req createInviteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.StakeUSDC <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "stake_usdc must be positive"})
	}
	creator := c.Locals("user_id").(string)
	inv, err := s.Create(creator, req.StakeUSDC, req.ExpirationHours, req.OnChainInviteID)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

type acceptInviteRequest struct {
	Code string `json:"code"`
}

// AcceptInvite handles POST /invites/accept.
func (s *InviteService) AcceptInvite(c *fiber.Ctx) error {
	var req acceptInviteRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code required"})
	}
	acceptor := c.Locals("user_id").(string)
	inv, sess, err := s.Accept(req.Code, acceptor)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"invite": inv, "session": sess.Snapshot()})
}

// AcceptBettingInvite handles POST /betting/invites/accept. Same accept
// path; the response carries the frozen pool split so the acceptor can
// verify the terms they just took.
func (s *InviteService) AcceptBettingInvite(c *fiber.Ctx) error {
	var req acceptInviteRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code required"})
	}
	acceptor := c.Locals("user_id").(string)
	inv, sess, err := s.Accept(req.Code, acceptor)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	if !inv.Staked() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invite is not staked"})
	}
	return c.JSON(fiber.Map{
		"invite":      inv,
		"session":     sess.Snapshot(),
		"pool_usdc":   inv.PoolUSDC,
		"fee_usdc":    inv.FeeUSDC,
		"payout_usdc": inv.PayoutUSDC,
	})
}

// GetInvite handles GET /invites/:code.
func (s *InviteService) GetInvite(c *fiber.Ctx) error {
	inv, err := s.store.GetInviteByCode(c.Params("code"))
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(inv)
}
