package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fresh-hub/internal/config"
	"fresh-hub/internal/models"
	"fresh-hub/internal/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:         config.DefaultConfig(),
		Database:       config.DefaultDatabaseConfig(),
		AllowedOrigins: []string{"*"},
		SeedSampleData: true,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, utils.DiscardLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(app.handler)
	t.Cleanup(func() {
		srv.Close()
		app.Close(context.Background())
	})
	return srv
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) int {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// runFlow registers a user, has a seeded user like their post and checks
// the resulting scores and leaderboard position.
func runFlow(t *testing.T, base string) {
	var board []models.User
	require.Equal(t, http.StatusOK, getJSON(t, base+"/api/leaderboard", &board))
	require.Len(t, board, 5)
	assert.Equal(t, "Mike Chen", board[0].Username)

	var newcomer models.User
	require.Equal(t, http.StatusOK, postJSON(t, base+"/api/users", map[string]string{"username": "newcomer"}, &newcomer))
	assert.Equal(t, int64(6), newcomer.ID)

	var post models.Post
	require.Equal(t, http.StatusOK, postJSON(t, base+"/api/posts",
		map[string]interface{}{"userId": newcomer.ID, "content": "first post"}, &post))
	assert.Equal(t, 5, post.Score)

	var liked models.Post
	require.Equal(t, http.StatusOK, postJSON(t, fmt.Sprintf("%s/api/posts/%d/like", base, post.ID),
		map[string]int64{"userId": 1}, &liked))
	assert.Equal(t, 1, liked.Likes)
	assert.Equal(t, 6, liked.Score)

	var author models.User
	require.Equal(t, http.StatusOK, getJSON(t, fmt.Sprintf("%s/api/users/%d", base, newcomer.ID), &author))
	assert.Equal(t, 6, author.Score)
	assert.Equal(t, 1, author.PostsCount)

	require.Equal(t, http.StatusOK, getJSON(t, base+"/api/leaderboard", &board))
	require.Len(t, board, 6)
	assert.Equal(t, newcomer.ID, board[5].ID)
}

func TestIntegrationFlowMemory(t *testing.T) {
	srv := newTestApp(t, testConfig())
	runFlow(t, srv.URL)
}

func TestIntegrationFlowRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Database.Type = config.StoreRedis
	cfg.Database.URI = mr.Addr()

	srv := newTestApp(t, cfg)
	runFlow(t, srv.URL)
}

func TestSeedingCanBeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.SeedSampleData = false
	srv := newTestApp(t, cfg)

	var board []models.User
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/leaderboard", &board))
	assert.Empty(t, board)
}

func TestOpenStoreRejectsUnknownType(t *testing.T) {
	_, err := openStore(context.Background(), &config.DatabaseConfig{Type: "cassandra"}, utils.DiscardLogger())
	assert.Error(t, err)
}
