package services

import (
	"net/http/httptest"
	"strings"
	"testing"

	"naval-session-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionApp mounts the session handlers behind a stub user context,
// standing in for the gateway middleware.
func sessionApp(eng *testEngine, userID string, roles []string) *fiber.App {
	svc := NewSessionService(eng.registry, eng.events)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		return c.Next()
	})
	app.Post("/sessions/:id/forfeit", svc.Forfeit)
	app.Post("/sessions/:id/contract", svc.RegisterGameContract)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestForfeitHandlerDefaultsToPlayerQuit(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	app := sessionApp(eng, "alice", nil)
	status := postJSON(t, app, "/sessions/"+sess.ID()+"/forfeit", `{}`)
	assert.Equal(t, fiber.StatusOK, status)

	rec, err := eng.store.GetScoreRecordBySession(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Winner)
	assert.Equal(t, models.ForfeitPlayerQuit, sess.Snapshot().ForfeitReason)
}

func TestForfeitHandlerRejectsPlayerCheatingClaim(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	// A plain player must not be able to win the pot by accusing the
	// opponent.
	app := sessionApp(eng, "alice", nil)
	status := postJSON(t, app, "/sessions/"+sess.ID()+"/forfeit", `{"reason":"CHEATING_DETECTED"}`)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, models.SessionActive, sess.Snapshot().Status)

	_, err := eng.store.GetScoreRecordBySession(sess.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestForfeitHandlerAllowsAntiCheatRole(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	app := sessionApp(eng, "anticheat-svc", []string{"anticheat"})

	// The flagged player must be named explicitly.
	status := postJSON(t, app, "/sessions/"+sess.ID()+"/forfeit", `{"reason":"CHEATING_DETECTED"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status = postJSON(t, app, "/sessions/"+sess.ID()+"/forfeit", `{"reason":"CHEATING_DETECTED","offender":"bob"}`)
	assert.Equal(t, fiber.StatusOK, status)

	rec, err := eng.store.GetScoreRecordBySession(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Winner)
	assert.Equal(t, models.ForfeitCheating, sess.Snapshot().ForfeitReason)
}

func TestRegisterContractHandlerScopedToParticipants(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := eng.registry.CreatePaired("alice", "bob", "bronze", 5, nil)
	require.NoError(t, err)

	body := `{"contract_address":"0xabc","game_id":"game-1"}`

	stranger := sessionApp(eng, "mallory", nil)
	status := postJSON(t, stranger, "/sessions/"+sess.ID()+"/contract", body)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Empty(t, sess.Snapshot().GameContractAddress)

	player := sessionApp(eng, "alice", nil)
	status = postJSON(t, player, "/sessions/"+sess.ID()+"/contract", body)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "0xabc", sess.Snapshot().GameContractAddress)

	// The settlement collaborator may register on any session.
	other, err := eng.registry.CreatePaired("carol", "dave", "bronze", 5, nil)
	require.NoError(t, err)
	settlement := sessionApp(eng, "settlement-svc", []string{"settlement"})
	status = postJSON(t, settlement, "/sessions/"+other.ID()+"/contract", body)
	assert.Equal(t, fiber.StatusOK, status)
}
