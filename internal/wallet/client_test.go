package wallet

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suji-games/leaderboard-service/internal/config"
)

type recordedCall struct {
	path string
	body map[string]any
}

func newTestClient(t *testing.T, status int) (*Client, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, recordedCall{path: r.URL.Path, body: body})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	client := NewClient(&config.WalletConfig{
		BaseURL: server.URL,
		Timeout: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return client, &calls
}

func TestGrantReward(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK)

	require.NoError(t, client.GrantReward(context.Background(), "p1", "gold-chest"))

	require.Len(t, *calls, 1)
	assert.Equal(t, "/players/p1/rewards", (*calls)[0].path)
	assert.Equal(t, "gold-chest", (*calls)[0].body["reward_id"])
}

func TestAddXPAndCups(t *testing.T) {
	client, calls := newTestClient(t, http.StatusOK)
	ctx := context.Background()

	require.NoError(t, client.AddXP(ctx, "p1", 50))
	require.NoError(t, client.AddCups(ctx, "p1", -3))

	require.Len(t, *calls, 2)
	assert.Equal(t, "/players/p1/xp", (*calls)[0].path)
	assert.Equal(t, float64(50), (*calls)[0].body["amount"])
	assert.Equal(t, "/players/p1/cups", (*calls)[1].path)
	assert.Equal(t, float64(-3), (*calls)[1].body["amount"])
}

func TestErrorStatuses(t *testing.T) {
	ctx := context.Background()

	notFound, _ := newTestClient(t, http.StatusNotFound)
	err := notFound.GrantReward(ctx, "ghost", "gold")
	assert.ErrorContains(t, err, "player not found")

	failing, _ := newTestClient(t, http.StatusInternalServerError)
	err = failing.AddXP(ctx, "p1", 10)
	assert.ErrorContains(t, err, "status 500")
}
