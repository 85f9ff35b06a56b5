package handler

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakebase/snakebase/internal/auth"
	"github.com/snakebase/snakebase/internal/config"
	"github.com/snakebase/snakebase/internal/domain"
	"github.com/snakebase/snakebase/internal/kvstore"
	"github.com/snakebase/snakebase/internal/service"
	"github.com/snakebase/snakebase/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := kvstore.NewMemory()

	users := store.NewUsers(kv, logger)
	scores := store.NewScores(kv, users, 30*time.Second, logger)
	nonces := store.NewNonces(kv, logger)
	sessions := store.NewSessions(kv, time.Hour)

	cfg := &config.LeaderboardConfig{DefaultLimit: 25, MaxLimit: 100, CacheTTL: 30 * time.Second}
	svc := service.NewGameService(
		auth.NewValidator(false),
		users, scores, nonces, sessions,
		nil, nil, nil,
		cfg, logger,
	)

	srv := httptest.NewServer(NewHandler(svc, nil, logger).Router())
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func personalSign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	sig, err := crypto.Sign(crypto.Keccak256([]byte(prefixed)), key)
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

// loginFlow runs the nonce handshake and returns a session token.
func loginFlow(t *testing.T, srv *httptest.Server) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/nonce", "", map[string]string{
		"wallet_address": addr,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var nonceData struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &nonceData))
	require.NotEmpty(t, nonceData.Message)

	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/verify", "", map[string]string{
		"wallet_address": addr,
		"signature":      personalSign(t, key, nonceData.Message),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var verifyData struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verifyData))
	require.NotEmpty(t, verifyData.Token)
	return verifyData.Token, addr
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, env := doJSON(t, http.MethodGet, srv.URL+path, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, env.Success)
	}
}

func TestNonceMalformedWallet(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/nonce", "", map[string]string{
		"wallet_address": "garbage",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestVerifyWithoutNonce(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/verify", "", map[string]string{
		"wallet_address": "0xAAAA000000000000000000000000000000000001",
		"signature":      "0xdead",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitScoreRequiresSession(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/scores", "", map[string]float64{"score": 10})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/scores", "bogus-token", map[string]float64{"score": 10})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitScoreAndStats(t *testing.T) {
	srv := newTestServer(t)
	token, _ := loginFlow(t, srv)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/scores", token, map[string]float64{"score": 150})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats domain.PlayerStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, domain.PlayerStats{TotalGames: 1, HighScore: 150, TotalScore: 150}, stats)

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/players/me/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(150), stats.HighScore)
}

func TestSubmitScoreRejectsNegative(t *testing.T) {
	srv := newTestServer(t)
	token, _ := loginFlow(t, srv)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/scores", token, map[string]float64{"score": -5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestSubmitScoreIdentityMismatch(t *testing.T) {
	srv := newTestServer(t)
	token, _ := loginFlow(t, srv)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/scores", token, map[string]interface{}{
		"score":   10,
		"user_id": "someone-else",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLeaderboardTop(t *testing.T) {
	srv := newTestServer(t)

	tokenA, _ := loginFlow(t, srv)
	tokenB, _ := loginFlow(t, srv)

	_, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/scores", tokenA, map[string]float64{"score": 50})
	_, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/scores", tokenB, map[string]float64{"score": 200})

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/leaderboard/top", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data struct {
		Entries []domain.LeaderboardEntry `json:"entries"`
		Count   int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, 2, data.Count)
	assert.Equal(t, int64(200), data.Entries[0].Score)
	assert.Equal(t, int64(1), data.Entries[0].Rank)

	// limit=1 trims the response
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/leaderboard/top?limit=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Count)

	// Non-numeric limit is a bad request
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/leaderboard/top?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateUsername(t *testing.T) {
	srv := newTestServer(t)
	tokenA, _ := loginFlow(t, srv)
	tokenB, _ := loginFlow(t, srv)

	resp, env := doJSON(t, http.MethodPut, srv.URL+"/api/v1/players/me/username", tokenA, map[string]string{
		"username": "champion",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user domain.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "champion", user.Username)

	// Another player taking the same name conflicts
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/players/me/username", tokenB, map[string]string{
		"username": "champion",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetMe(t *testing.T) {
	srv := newTestServer(t)
	token, addr := loginFlow(t, srv)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/players/me/", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user domain.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, store.DeriveUsername(addr), user.Username)
}
