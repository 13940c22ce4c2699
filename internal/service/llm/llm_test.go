package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopGenerator(t *testing.T) {
	_, err := NoopGenerator{}.Generate(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenAIGenerator(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  起床啦～ \n"}}]}`))
	}))
	defer server.Close()

	g := NewOpenAIGenerator("sk-test", server.URL+"/v1/", "gpt-4o-mini", 0.8)
	text, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "起床啦～", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.8, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "prompt", got.Messages[0].Content)
}

func TestOpenAIGeneratorErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, nil},
		{"non-json failure", http.StatusBadGateway, `upstream down`, nil},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrEmptyResponse},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewOpenAIGenerator("k", server.URL, "m", 0).Generate(context.Background(), "p")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIGeneratorHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewOpenAIGenerator("k", server.URL, "m", 0).Generate(ctx, "p")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOllamaGenerator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.False(t, req.Stream)
		assert.Equal(t, "qwen2.5", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "学了好久啦，歇会儿吧", Done: true})
	}))
	defer server.Close()

	text, err := NewOllamaGenerator(server.URL, "qwen2.5", 0.8).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "学了好久啦，歇会儿吧", text)
}

func TestOllamaGeneratorErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer server.Close()
		_, err := NewOllamaGenerator(server.URL, "x", 0).Generate(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("empty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"response":"","done":true}`))
		}))
		defer server.Close()
		_, err := NewOllamaGenerator(server.URL, "x", 0).Generate(context.Background(), "p")
		require.ErrorIs(t, err, ErrEmptyResponse)
	})
}
