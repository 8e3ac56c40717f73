package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldjoshua/UltrAI-JFF/internal/apperrors"
)

func TestChatCompletionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello there"}, "finish_reason": "stop"},
			},
		})
	}))
	defer srv.Close()

	c := New("test-key", "http://localhost", "test", WithBaseURL(srv.URL))
	text, err := c.ChatCompletion(context.Background(), "some/model", "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestChatCompletionInvalidCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("bad-key", "", "", WithBaseURL(srv.URL))
	_, err := c.ChatCompletion(context.Background(), "some/model", "", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}

func TestChatCompletionMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": ""}, "finish_reason": "error"},
			},
		})
	}))
	defer srv.Close()

	c := New("key", "", "", WithBaseURL(srv.URL))
	_, err := c.ChatCompletion(context.Background(), "some/model", "", "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMidStreamError)
}

func TestChatCompletionRetriesOnServerErrorThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "recovered"}, "finish_reason": "stop"},
			},
		})
	}))
	defer srv.Close()

	c := New("key", "", "", WithBaseURL(srv.URL))
	text, err := c.ChatCompletion(context.Background(), "some/model", "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, attempts)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{"id": "a/1"}, {"id": "b/2"}},
		})
	}))
	defer srv.Close()

	c := New("key", "", "", WithBaseURL(srv.URL))
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "b/2"}, models)
}
