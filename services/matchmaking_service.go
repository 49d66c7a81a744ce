package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"naval-session-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
)

// Match statuses returned to pool callers.
const (
	MatchStatusMatched      = "matched"
	MatchStatusWaiting      = "waiting"
	MatchStatusPendingMatch = "pending_match"
)

// DefaultStakeTiers maps tier names to the per-player USDC stake.
var DefaultStakeTiers = map[string]float64{
	"free":   0,
	"bronze": 5,
	"silver": 25,
	"gold":   100,
}

// JoinResult is what a pool caller learns about their ticket.
type JoinResult struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Opponent  string `json:"opponent,omitempty"`
}

// parkedMatch is a match result waiting for its player's next poll,
// stamped so abandoned ones can be pruned.
type parkedMatch struct {
	res *JoinResult
	at  time.Time
}

// MatchPoolService keeps one FIFO queue of waiting tickets per stake
// tier and pairs them into sessions. All queue state lives behind one
// mutex; queues are in-memory and empty on restart.
type MatchPoolService struct {
	mu      sync.Mutex
	queues  map[string][]*models.MatchTicket
	matched map[string]parkedMatch // results for players paired while waiting

	registry *SessionRegistry
	tiers    map[string]float64
	clock    func() time.Time
}

// NewMatchPoolService wires the pool against the session registry.
func NewMatchPoolService(registry *SessionRegistry) *MatchPoolService {
	return &MatchPoolService{
		queues:   make(map[string][]*models.MatchTicket),
		matched:  make(map[string]parkedMatch),
		registry: registry,
		tiers:    DefaultStakeTiers,
		clock:    time.Now,
	}
}

// SetClock overrides the time source (tests).
func (p *MatchPoolService) SetClock(clock func() time.Time) { p.clock = clock }

// Join enqueues or pairs the caller. Pairing is strictly FIFO within a
// tier; unconfirmed staked tickets wait without blocking confirmed
// ones.
func (p *MatchPoolService) Join(address, stakeLevel, channel string) (*JoinResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if address == "" {
		return nil, fmt.Errorf("%w: address required", ErrMalformedInput)
	}
	stake, ok := p.tiers[stakeLevel]
	if !ok {
		return nil, fmt.Errorf("%w: unknown stake tier %q", ErrMalformedInput, stakeLevel)
	}

	// A matched result not yet collected takes precedence over a
	// fresh ticket: the player was already paired.
	if pm, ok := p.matched[address]; ok {
		delete(p.matched, address)
		return pm.res, nil
	}

	p.removeTicketLocked(address)

	ticket := &models.MatchTicket{
		Address:    address,
		StakeLevel: stakeLevel,
		JoinedAt:   p.clock(),
		Confirmed:  stake == 0,
	}
	if channel != "" {
		ticket.Channel = slug.Make(channel)
	}

	if ticket.Confirmed {
		if res := p.tryPairLocked(ticket, stake); res != nil {
			return res, nil
		}
	}

	p.queues[stakeLevel] = append(p.queues[stakeLevel], ticket)
	if !ticket.Confirmed {
		return &JoinResult{Status: MatchStatusPendingMatch}, nil
	}
	return &JoinResult{Status: MatchStatusWaiting}, nil
}

// tryPairLocked pairs the incoming confirmed ticket with the oldest
// confirmed ticket of the same tier. The waiting side's result is
// parked in matched until they ask for it.
func (p *MatchPoolService) tryPairLocked(incoming *models.MatchTicket, stake float64) *JoinResult {
	queue := p.queues[incoming.StakeLevel]
	for i, waiting := range queue {
		if !waiting.Confirmed || waiting.Address == incoming.Address {
			continue
		}
		p.queues[incoming.StakeLevel] = append(queue[:i], queue[i+1:]...)

		sess, err := p.registry.CreatePaired(waiting.Address, incoming.Address, incoming.StakeLevel, stake, nil)
		if err != nil {
			log.Printf("❌ [MatchPool] Failed to create session for %s vs %s: %v", waiting.Address, incoming.Address, err)
			// put the waiting ticket back at the head, order preserved
			p.queues[incoming.StakeLevel] = append([]*models.MatchTicket{waiting}, p.queues[incoming.StakeLevel]...)
			return nil
		}
		if stake > 0 {
			// confirmations were checked at ticket level already
			sess.MarkStakeConfirmed(waiting.Address)
			sess.MarkStakeConfirmed(incoming.Address)
		}
		log.Printf("✅ [MatchPool] Paired %s vs %s on tier %s (session %s)", waiting.Address, incoming.Address, incoming.StakeLevel, sess.ID())
		p.matched[waiting.Address] = parkedMatch{
			res: &JoinResult{
				Status:    MatchStatusMatched,
				SessionID: sess.ID(),
				Opponent:  incoming.Address,
			},
			at: p.clock(),
		}
		return &JoinResult{
			Status:    MatchStatusMatched,
			SessionID: sess.ID(),
			Opponent:  waiting.Address,
		}
	}
	return nil
}

func (p *MatchPoolService) removeTicketLocked(address string) bool {
	for tier, queue := range p.queues {
		for i, t := range queue {
			if t.Address == address {
				p.queues[tier] = append(queue[:i], queue[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Leave withdraws the caller's ticket. Always succeeds: a player who
// was already matched or never queued has nothing to fail about.
func (p *MatchPoolService) Leave(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeTicketLocked(address)
}

// Status reports the caller's pool state without mutating their
// ticket; a parked match result is handed over and consumed.
func (p *MatchPoolService) Status(address string) *JoinResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pm, ok := p.matched[address]; ok {
		delete(p.matched, address)
		return pm.res
	}
	for _, queue := range p.queues {
		for _, t := range queue {
			if t.Address == address {
				if !t.Confirmed {
					return &JoinResult{Status: MatchStatusPendingMatch}
				}
				return &JoinResult{Status: MatchStatusWaiting}
			}
		}
	}
	return nil
}

// ConfirmStake flips a pending staked ticket to confirmed and
// immediately retries pairing for it.
func (p *MatchPoolService) ConfirmStake(address string) *JoinResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	for tier, queue := range p.queues {
		for i, t := range queue {
			if t.Address != address || t.Confirmed {
				continue
			}
			t.Confirmed = true
			stake := p.tiers[tier]
			p.queues[tier] = append(queue[:i], queue[i+1:]...)
			if res := p.tryPairLocked(t, stake); res != nil {
				p.matched[address] = parkedMatch{res: res, at: p.clock()}
				return res
			}
			// no partner yet: requeue at original position
			rest := p.queues[tier]
			p.queues[tier] = append(rest[:i], append([]*models.MatchTicket{t}, rest[i:]...)...)
			return &JoinResult{Status: MatchStatusWaiting}
		}
	}
	return nil
}

// PruneParked drops match results nobody collected within maxAge and
// reports how many were dropped. Runs on the shared cron scheduler.
func (p *MatchPoolService) PruneParked(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	pruned := 0
	for addr, pm := range p.matched {
		if now.Sub(pm.at) > maxAge {
			delete(p.matched, addr)
			pruned++
		}
	}
	if pruned > 0 {
		log.Printf("🧹 [MatchPool] Pruned %d uncollected match result(s)", pruned)
	}
	return pruned
}

// QueueDepth reports waiting tickets for a tier (monitoring).
func (p *MatchPoolService) QueueDepth(stakeLevel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[stakeLevel])
}

// --- Fiber handlers ---

// JoinMatchPool handles POST /matchpool/join
func (p *MatchPoolService) JoinMatchPool(c *fiber.Ctx) error {
	var req struct {
		StakeLevel string `json:"stake_level"`
		Channel    string `json:"channel"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	address := c.Locals("user_id").(string)
	if req.StakeLevel == "" {
		req.StakeLevel = "free"
	}
	res, err := p.Join(address, req.StakeLevel, req.Channel)
	if err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// LeaveMatchPool handles POST /matchpool/leave
func (p *MatchPoolService) LeaveMatchPool(c *fiber.Ctx) error {
	address := c.Locals("user_id").(string)
	removed := p.Leave(address)
	msg := "left match pool"
	if !removed {
		msg = "no ticket in pool"
	}
	return c.JSON(fiber.Map{"success": true, "message": msg})
}

// MatchPoolStatus handles GET /matchpool/status
func (p *MatchPoolService) MatchPoolStatus(c *fiber.Ctx) error {
	address := c.Locals("user_id").(string)
	res := p.Status(address)
	if res == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no ticket in pool"})
	}
	return c.JSON(res)
}
