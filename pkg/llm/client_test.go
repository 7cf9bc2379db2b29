package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hbai-chat-go/internal/config"
)

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:  "sk-test",
		BaseURL: baseURL + "/",
		Model:   "qwen/qwen-2-7b-instruct",
		Title:   "HB AI",
		Generation: config.LLMGenerationConfig{
			MaxRetries: 2,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestComplete_Success(t *testing.T) {
	var got completionBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "HB AI", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"choices": []map[string]string{{"text": "안녕하세요!", "finish_reason": "stop"}},
		})
	}))
	defer srv.Close()

	c := newClient(testConfig(srv.URL), time.Millisecond)
	temp := 0.7
	text, err := c.Complete(context.Background(), CompletionRequest{
		Prompt:      "<|im_start|>user\n안녕<|im_end|>\n<|im_start|>assistant\n",
		MaxTokens:   64,
		Temperature: &temp,
		Stop:        []string{"<|im_end|>"},
	})

	require.NoError(t, err)
	assert.Equal(t, "안녕하세요!", text)
	assert.Equal(t, "qwen/qwen-2-7b-instruct", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Equal(t, []string{"<|im_end|>"}, got.Stop)
	assert.False(t, got.Stream)
}

func TestComplete_RetriesWhileModelLoading(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "loading"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"choices": []map[string]string{{"text": "ok"}},
		})
	}))
	defer srv.Close()

	c := newClient(testConfig(srv.URL), time.Millisecond)
	text, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInsufficientStorage, map[string]string{"error": "CUDA out of memory"})
	}))
	defer srv.Close()

	c := newClient(testConfig(srv.URL), time.Millisecond)
	_, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hi"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInsufficientStorage, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "out of memory")
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	c := newClient(testConfig(srv.URL), time.Millisecond)
	_, err := c.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	assert.Error(t, err)
}

func TestComplete_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]interface{}{"choices": []map[string]string{{"text": "late"}}})
	}))
	defer srv.Close()

	c := newClient(testConfig(srv.URL), time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": []map[string]string{{"id": "qwen/qwen-2-7b-instruct"}, {"id": "other"}},
		})
	}))
	defer srv.Close()

	c := newClient(testConfig(srv.URL), time.Millisecond)
	ids, err := c.ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"qwen/qwen-2-7b-instruct", "other"}, ids)
	c.Close()
}
