package services

import (
	"testing"
	"time"

	"naval-session-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) (*MatchPoolService, *testEngine) {
	t.Helper()
	eng := newTestEngine(t)
	return NewMatchPoolService(eng.registry), eng
}

func TestPoolPairsFIFO(t *testing.T) {
	pool, eng := newTestPool(t)

	res, err := pool.Join("alice", "free", "")
	require.NoError(t, err)
	assert.Equal(t, MatchStatusWaiting, res.Status)

	res, err = pool.Join("carol", "free", "")
	require.NoError(t, err)
	assert.Equal(t, MatchStatusWaiting, res.Status)

	// Bob pairs with the oldest waiting ticket: alice, not carol.
	res, err = pool.Join("bob", "free", "")
	require.NoError(t, err)
	require.Equal(t, MatchStatusMatched, res.Status)
	assert.Equal(t, "alice", res.Opponent)
	require.NotEmpty(t, res.SessionID)

	sess, err := eng.registry.Get(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionPlayersJoined, sess.Snapshot().Status)

	// The waiting side learns about the match on its next poll, with
	// the same session.
	aliceRes := pool.Status("alice")
	require.NotNil(t, aliceRes)
	assert.Equal(t, MatchStatusMatched, aliceRes.Status)
	assert.Equal(t, res.SessionID, aliceRes.SessionID)
	assert.Equal(t, "bob", aliceRes.Opponent)

	// Carol is still alone in the queue.
	carolRes := pool.Status("carol")
	require.NotNil(t, carolRes)
	assert.Equal(t, MatchStatusWaiting, carolRes.Status)
}

func TestPoolTiersDoNotMix(t *testing.T) {
	pool, _ := newTestPool(t)

	_, err := pool.Join("alice", "free", "")
	require.NoError(t, err)
	res, err := pool.Join("bob", "gold", "")
	require.NoError(t, err)
	assert.Equal(t, MatchStatusPendingMatch, res.Status)
	assert.Equal(t, 1, pool.QueueDepth("free"))
	assert.Equal(t, 1, pool.QueueDepth("gold"))
}

func TestPoolUnknownTierRejected(t *testing.T) {
	pool, _ := newTestPool(t)
	_, err := pool.Join("alice", "platinum", "")
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestPoolLeave(t *testing.T) {
	pool, _ := newTestPool(t)

	_, err := pool.Join("alice", "free", "")
	require.NoError(t, err)
	assert.True(t, pool.Leave("alice"))
	assert.Nil(t, pool.Status("alice"))

	// Leaving without a ticket still succeeds.
	assert.False(t, pool.Leave("alice"))
}

func TestPoolStakedJoinWaitsForConfirmation(t *testing.T) {
	pool, eng := newTestPool(t)

	res, err := pool.Join("alice", "bronze", "")
	require.NoError(t, err)
	assert.Equal(t, MatchStatusPendingMatch, res.Status)

	res = pool.ConfirmStake("alice")
	require.NotNil(t, res)
	assert.Equal(t, MatchStatusWaiting, res.Status)

	// Bob confirms second and pairs immediately.
	_, err = pool.Join("bob", "bronze", "")
	require.NoError(t, err)
	res = pool.ConfirmStake("bob")
	require.NotNil(t, res)
	require.Equal(t, MatchStatusMatched, res.Status)

	sess, err := eng.registry.Get(res.SessionID)
	require.NoError(t, err)
	snap := sess.Snapshot()
	assert.Equal(t, 5.0, snap.StakeAmountUSDC)

	// Stakes were confirmed at ticket level, so boards are accepted.
	require.NoError(t, sess.SubmitBoard("alice", validFleet()))
}

func TestPoolPrunesUncollectedResults(t *testing.T) {
	pool, _ := newTestPool(t)

	cur := time.Now()
	pool.SetClock(func() time.Time { return cur })

	_, err := pool.Join("alice", "free", "")
	require.NoError(t, err)
	_, err = pool.Join("bob", "free", "")
	require.NoError(t, err)

	// Alice never polls; her parked result goes stale and is dropped.
	cur = cur.Add(2 * time.Hour)
	assert.Equal(t, 1, pool.PruneParked(time.Hour))
	assert.Nil(t, pool.Status("alice"))

	// A fresh result survives the sweep.
	_, err = pool.Join("carol", "free", "")
	require.NoError(t, err)
	_, err = pool.Join("dave", "free", "")
	require.NoError(t, err)
	assert.Equal(t, 0, pool.PruneParked(time.Hour))
	res := pool.Status("carol")
	require.NotNil(t, res)
	assert.Equal(t, MatchStatusMatched, res.Status)
}

func TestPoolRejoinReplacesTicket(t *testing.T) {
	pool, _ := newTestPool(t)

	_, err := pool.Join("alice", "free", "")
	require.NoError(t, err)
	_, err = pool.Join("alice", "gold", "")
	require.NoError(t, err)

	assert.Equal(t, 0, pool.QueueDepth("free"))
	assert.Equal(t, 1, pool.QueueDepth("gold"))
}
