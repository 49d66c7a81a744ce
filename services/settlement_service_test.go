package services

import (
	"testing"

	"naval-session-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettlement(t *testing.T) (*SettlementService, Store) {
	t.Helper()
	store := NewMemoryStore()
	return NewSettlementService(store, NewEventHub()), store
}

func stakedSession() models.Session {
	return models.Session{
		ID:              "sess-1",
		Player1:         "alice",
		Player2:         "bob",
		StakeLevel:      "gold",
		StakeAmountUSDC: 100,
	}
}

func TestSettleWinSplitsPool(t *testing.T) {
	settlement, _ := testSettlement(t)

	rec, err := settlement.Settle(stakedSession(), nil, models.OutcomeWin, "alice")
	require.NoError(t, err)

	assert.Equal(t, PointsWin, rec.Player1Points)
	assert.Equal(t, PointsLoss, rec.Player2Points)
	assert.Equal(t, 200.0, rec.PoolUSDC)
	assert.Equal(t, 10.0, rec.PlatformFeeUSDC)
	assert.Equal(t, 190.0, rec.WinnerPayoutUSDC)
	assert.Zero(t, rec.RefundEachUSDC)
}

func TestSettleDrawRefundsStakes(t *testing.T) {
	settlement, _ := testSettlement(t)

	rec, err := settlement.Settle(stakedSession(), nil, models.OutcomeDraw, "")
	require.NoError(t, err)

	assert.Equal(t, PointsDraw, rec.Player1Points)
	assert.Equal(t, PointsDraw, rec.Player2Points)
	assert.Equal(t, 100.0, rec.RefundEachUSDC)
	assert.Zero(t, rec.PlatformFeeUSDC)
	assert.Zero(t, rec.WinnerPayoutUSDC)
}

func TestSettleVoidAwardsNothing(t *testing.T) {
	settlement, store := testSettlement(t)

	rec, err := settlement.Settle(stakedSession(), nil, models.OutcomeVoid, "")
	require.NoError(t, err)

	assert.Zero(t, rec.Player1Points)
	assert.Zero(t, rec.Player2Points)
	assert.Equal(t, 100.0, rec.RefundEachUSDC)

	st, err := store.GetStanding("alice")
	require.NoError(t, err)
	assert.Zero(t, st.TotalPoints)
	assert.Equal(t, int64(1), st.TotalGames)
}

func TestSettleIsIdempotent(t *testing.T) {
	settlement, store := testSettlement(t)

	first, err := settlement.Settle(stakedSession(), nil, models.OutcomeWin, "alice")
	require.NoError(t, err)

	// Re-observing the terminal transition must not re-settle.
	second, err := settlement.Settle(stakedSession(), nil, models.OutcomeWin, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	st, err := store.GetStanding("alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.TotalGames, "standings applied exactly once")
	assert.Equal(t, PointsWin, st.TotalPoints)
}

func TestSettleRecordsTranscript(t *testing.T) {
	settlement, _ := testSettlement(t)

	shots := []models.Shot{
		{Seq: 1, By: "alice", X: 0, Y: 0, Result: models.ShotHit},
		{Seq: 2, By: "bob", X: 7, Y: 7, Result: models.ShotMiss},
	}
	rec, err := settlement.Settle(stakedSession(), shots, models.OutcomeWin, "alice")
	require.NoError(t, err)
	assert.Contains(t, rec.TranscriptJSON, `"seq":1`)
	assert.Contains(t, rec.TranscriptJSON, `"by":"bob"`)
	assert.Empty(t, rec.ArchiveURL, "archive worker fills this in later")
}

func TestStandingsAccumulateAcrossGames(t *testing.T) {
	settlement, store := testSettlement(t)

	_, err := settlement.Settle(stakedSession(), nil, models.OutcomeWin, "alice")
	require.NoError(t, err)

	next := stakedSession()
	next.ID = "sess-2"
	_, err = settlement.Settle(next, nil, models.OutcomeWin, "bob")
	require.NoError(t, err)

	st, err := store.GetStanding("alice")
	require.NoError(t, err)
	assert.Equal(t, PointsWin+PointsLoss, st.TotalPoints)
	assert.Equal(t, int64(2), st.TotalGames)
	assert.Equal(t, int64(1), st.Wins)
	assert.Equal(t, int64(1), st.Losses)
	assert.Equal(t, 200.0, st.TotalStakedUSDC)
	assert.Equal(t, 190.0, st.TotalWonUSDC)
}
