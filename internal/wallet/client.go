// Package wallet is the HTTP client for the external wallet/stat service.
// Only the grant contract lives here; balances and transaction bookkeeping
// belong to the collaborator.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/suji-games/leaderboard-service/internal/config"
)

// Client talks to the wallet/stat service
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a wallet client from configuration
func NewClient(cfg *config.WalletConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// GrantReward grants a reward package to a player
func (c *Client) GrantReward(ctx context.Context, playerID, rewardID string) error {
	return c.post(ctx, fmt.Sprintf("/players/%s/rewards", playerID), map[string]string{
		"reward_id": rewardID,
	})
}

// AddXP adds experience points to a player's stats
func (c *Client) AddXP(ctx context.Context, playerID string, amount int64) error {
	return c.post(ctx, fmt.Sprintf("/players/%s/xp", playerID), map[string]int64{
		"amount": amount,
	})
}

// AddCups adds cups to a player's stats
func (c *Client) AddCups(ctx context.Context, playerID string, amount int64) error {
	return c.post(ctx, fmt.Sprintf("/players/%s/cups", playerID), map[string]int64{
		"amount": amount,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling wallet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("wallet service: player not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("wallet service returned status %d", resp.StatusCode)
	}
	return nil
}
