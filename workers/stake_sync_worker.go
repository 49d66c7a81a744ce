package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"naval-session-engine/models"
	"naval-session-engine/services"

	"github.com/google/uuid"
)

// StakeSyncClient polls the chain gateway for confirmed USDC stake
// deposits and mirrors them into stake_confirmations.
type StakeSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Store      services.Store
}

func NewStakeSyncClient(store services.Store) *StakeSyncClient {
	baseURL := os.Getenv("CHAIN_GATEWAY_URL")
	if baseURL == "" {
		log.Fatal("CHAIN_GATEWAY_URL environment variable is required")
	}
	token := os.Getenv("SESSION_SERVICE_TOKEN")
	if token == "" {
		log.Fatal("SESSION_SERVICE_TOKEN environment variable is required for stake sync")
	}

	return &StakeSyncClient{
		BaseURL: baseURL,
		Token:   token,
		Store:   store,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *StakeSyncClient) GetConfirmedStakes(ctx context.Context, since time.Time) ([]models.StakeConfirmation, error) {
	since = since.UTC()

	u, err := url.Parse(fmt.Sprintf("%s/api/v1/stakes/confirmed", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	q := u.Query()
	q.Set("since", since.Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chain gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("chain gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Confirmations []models.StakeConfirmation `json:"confirmations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode chain gateway response: %w", err)
	}

	return response.Confirmations, nil
}

// applyConfirmation routes a mirrored deposit to whatever is waiting on
// it. OnChainRef is the target set when the stake was initiated: a
// session id, an invite code, or empty for match-pool deposits.
func applyConfirmation(sc *models.StakeConfirmation, registry *services.SessionRegistry, pool *services.MatchPoolService, invites *services.InviteService) {
	if sc.OnChainRef != "" {
		if sess, err := registry.Get(sc.OnChainRef); err == nil {
			sess.MarkStakeConfirmed(sc.Address)
			return
		}
		if err := invites.ConfirmStake(sc.OnChainRef, sc.Address); err == nil {
			return
		} else if !errors.Is(err, services.ErrNotFound) {
			log.Printf("⚠️ Stake confirmation %s for invite failed: %v", sc.OnChainRef, err)
			return
		}
	}
	pool.ConfirmStake(sc.Address)
}

// PollStakes mirrors confirmed deposits and applies the unconsumed ones
// to whatever is gated on them.
func PollStakes(ctx context.Context, client *StakeSyncClient, registry *services.SessionRegistry, pool *services.MatchPoolService, invites *services.InviteService, pollInterval time.Duration) {
	log.Println("Starting stake confirmation polling...")
	lastSyncTime := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Stake polling stopped.")
			return
		case <-ticker.C:
			logTime := time.Now().UTC()

			confirmations, err := client.GetConfirmedStakes(ctx, lastSyncTime)
			if err != nil {
				log.Printf("❌ Error polling stakes: %v", err)
				continue
			}

			if len(confirmations) > 0 {
				for i := range confirmations {
					if confirmations[i].ID == "" {
						confirmations[i].ID = uuid.NewString()
					}
				}
				if err := client.Store.UpsertStakeConfirmations(confirmations); err != nil {
					log.Printf("❌ Failed to upsert %d stake confirmation(s): %v", len(confirmations), err)
					// Do NOT advance lastSyncTime on failure — retry same window next tick
					continue
				}
				log.Printf("📥 Mirrored %d stake confirmation(s) from chain gateway.", len(confirmations))
			}

			// Apply anything mirrored but not yet consumed, including
			// leftovers from a previous crash.
			pending, err := client.Store.ListUnconsumedStakeConfirmations()
			if err != nil {
				log.Printf("❌ Failed to list pending stake confirmations: %v", err)
				continue
			}
			for _, sc := range pending {
				applyConfirmation(sc, registry, pool, invites)
				sc.Consumed = true
				if err := client.Store.SaveStakeConfirmation(sc); err != nil {
					log.Printf("⚠️ Failed to mark stake confirmation %s consumed: %v", sc.ID, err)
				}
			}

			lastSyncTime = logTime
		}
	}
}
