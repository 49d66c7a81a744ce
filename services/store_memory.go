package services

import (
	"sort"
	"sync"
	"time"

	"naval-session-engine/models"
)

// memoryStore is a map-backed Store. Used by tests and available when
// durability is not required; state is lost on restart.
type memoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]models.Session
	invites   map[string]models.Invite // keyed by code
	records   map[string]models.ScoreRecord
	standings map[string]models.PlayerStanding
	stakes    map[string]models.StakeConfirmation // keyed by on-chain ref
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions:  make(map[string]models.Session),
		invites:   make(map[string]models.Invite),
		records:   make(map[string]models.ScoreRecord),
		standings: make(map[string]models.PlayerStanding),
		stakes:    make(map[string]models.StakeConfirmation),
	}
}

func (m *memoryStore) SaveSession(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memoryStore) GetSession(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		cp := s
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) SaveInvite(inv *models.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[inv.Code] = *inv
	return nil
}

func (m *memoryStore) GetInviteByCode(code string) (*models.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inv, ok := m.invites[code]; ok {
		cp := inv
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) ListExpiredInvites(now time.Time) ([]*models.Invite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Invite
	for _, inv := range m.invites {
		if inv.Status == models.InviteWaiting && now.After(inv.ExpiresAt) {
			cp := inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateScoreRecord(rec *models.ScoreRecord) (*models.ScoreRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[rec.SessionID]; ok {
		cp := existing
		return &cp, false, nil
	}
	m.records[rec.SessionID] = *rec
	cp := *rec
	return &cp, true, nil
}

func (m *memoryStore) GetScoreRecordBySession(sessionID string) (*models.ScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.records[sessionID]; ok {
		cp := rec
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) SaveScoreRecord(rec *models.ScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = *rec
	return nil
}

func (m *memoryStore) ListUnarchivedScoreRecords(limit int) ([]*models.ScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ScoreRecord
	for _, rec := range m.records {
		if rec.ArchivedAt == nil {
			cp := rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) GetStanding(address string) (*models.PlayerStanding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.standings[address]; ok {
		cp := st
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) SaveStanding(st *models.PlayerStanding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.standings[st.Address] = *st
	return nil
}

func (m *memoryStore) UpsertStakeConfirmations(confs []models.StakeConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conf := range confs {
		if existing, ok := m.stakes[conf.OnChainRef]; ok && existing.Consumed {
			continue
		}
		m.stakes[conf.OnChainRef] = conf
	}
	return nil
}

func (m *memoryStore) ListUnconsumedStakeConfirmations() ([]*models.StakeConfirmation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.StakeConfirmation
	for _, conf := range m.stakes {
		if !conf.Consumed {
			cp := conf
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfirmedAt.Before(out[j].ConfirmedAt) })
	return out, nil
}

func (m *memoryStore) SaveStakeConfirmation(conf *models.StakeConfirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stakes[conf.OnChainRef] = *conf
	return nil
}
