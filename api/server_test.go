package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldjoshua/UltrAI-JFF/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF/internal/config"
	"github.com/fieldjoshua/UltrAI-JFF/internal/gateway"
	"github.com/fieldjoshua/UltrAI-JFF/internal/logging"
	"github.com/fieldjoshua/UltrAI-JFF/internal/runner"
	"github.com/fieldjoshua/UltrAI-JFF/internal/store"
)

// allModelsGateway answers ListModels with every model any cocktail roster
// references and ChatCompletion with a canned, deterministic response —
// enough to drive a run end to end without a real OpenRouter account.
type allModelsGateway struct{}

func (allModelsGateway) ListModels(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var all []string
	for _, name := range cocktail.Names {
		roster, _ := cocktail.Default().Lookup(name)
		for _, m := range append(append([]string{}, roster.Primary[:]...), roster.Fallback[:]...) {
			if !seen[m] {
				seen[m] = true
				all = append(all, m)
			}
		}
	}
	return all, nil
}

func (allModelsGateway) ChatCompletion(ctx context.Context, model, system, user string) (string, error) {
	return "answer from " + model, nil
}

func newTestServer(t *testing.T, withCredential bool) *Server {
	t.Helper()
	base := t.TempDir()

	var cfg *config.Config
	if withCredential {
		c, err := config.New(config.WithRunsBase(base), config.WithOpenRouterKey("test-key"))
		require.NoError(t, err)
		cfg = c
	} else {
		// New() refuses to build a Config without a credential at all, but
		// the server only needs to see an empty OpenRouterKey to exercise
		// the missing-credential path, so it's built by hand here.
		cfg = &config.Config{RunsBase: base, CORSOrigin: "*", LogLevel: "info"}
	}

	st, err := store.New(cfg.RunsBase)
	require.NoError(t, err)

	controller := &runner.Controller{
		Store:            st,
		Cocktails:        cocktail.Default(),
		Tracker:          runner.NewTracker(),
		Logger:           logging.NoOp{},
		EventLogMaxBytes: 1 << 20,
		NewGateway:       func() gateway.Gateway { return allModelsGateway{} },
	}

	s := &Server{cfg: cfg, controller: controller, logger: logging.NoOp{}, mux: http.NewServeMux()}
	s.routes()
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleStartRunRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"query": "  ", "cocktail": cocktail.SPEEDY})
	resp, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStartRunRejectsInvalidCocktail(t *testing.T) {
	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"query": "hello", "cocktail": "NOT_A_COCKTAIL"})
	resp, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestS4CredentialMissing exercises spec.md's S4 scenario: no OpenRouter
// credential configured means POST /runs refuses synchronously and no run
// directory is ever created.
func TestS4CredentialMissing(t *testing.T) {
	s := newTestServer(t, false)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"query": "hello", "cocktail": cocktail.SPEEDY})
	resp, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	entries, err := os.ReadDir(s.cfg.RunsBase)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStartRunAndPollStatusToCompletion(t *testing.T) {
	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"query": "hello", "cocktail": cocktail.SPEEDY})
	resp, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	runID := started["run_id"]
	require.NotEmpty(t, runID)

	deadline := time.Now().Add(2 * time.Second)
	var status map[string]interface{}
	for time.Now().Before(deadline) {
		statusResp, err := http.Get(srv.URL + "/runs/" + runID + "/status")
		require.NoError(t, err)
		require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
		statusResp.Body.Close()
		if completed, _ := status["completed"].(bool); completed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, true, status["completed"])

	artifactResp, err := http.Get(srv.URL + "/runs/" + runID + "/artifacts/05_ultrai.json")
	require.NoError(t, err)
	defer artifactResp.Body.Close()
	assert.Equal(t, http.StatusOK, artifactResp.StatusCode)
}

func TestGetArtifactRejectsNonJSONName(t *testing.T) {
	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"query": "hello", "cocktail": cocktail.SPEEDY})
	resp, _ := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	var started map[string]string
	json.NewDecoder(resp.Body).Decode(&started)
	resp.Body.Close()

	artifactResp, err := http.Get(srv.URL + "/runs/" + started["run_id"] + "/artifacts/../secrets.txt")
	require.NoError(t, err)
	defer artifactResp.Body.Close()
	assert.NotEqual(t, http.StatusOK, artifactResp.StatusCode)
}

func TestUnknownRunReturnsNotFound(t *testing.T) {
	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/api_speedy_20260101_000000_aaaaaaaa/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflightRespondsNoContent(t *testing.T) {
	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
