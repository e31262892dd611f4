package composer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/podcast-service/internal/composer"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/v1/chat/completions", request.URL.Path)
		assert.Equal(t, "Bearer test-key", request.Header.Get("Authorization"))

		var decoded chatRequest
		assert.NoError(t, json.NewDecoder(request.Body).Decode(&decoded))
		assert.Equal(t, "test-model", decoded.Model)

		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)

		if status != http.StatusOK {
			_, _ = writer.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))

			return
		}

		_ = json.NewEncoder(writer).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(server.Close)

	return server
}

func newTestGenerator(server *httptest.Server) *composer.OpenAIGenerator {
	return composer.NewOpenAIGenerator(composer.OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     server.URL + "/v1/",
		Model:       "test-model",
		Temperature: 0,
		MaxTokens:   0,
	})
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	t.Parallel()

	server := newChatServer(t, http.StatusOK, "ALEX: Hello.")

	reply, err := newTestGenerator(server).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ALEX: Hello.", reply)
}

func TestOpenAIGenerator_EmptyCompletion(t *testing.T) {
	t.Parallel()

	server := newChatServer(t, http.StatusOK, "   ")

	_, err := newTestGenerator(server).Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, composer.ErrEmptyCompletion)
}

func TestOpenAIGenerator_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target error
		name   string
		status int
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, target: core.ErrRateLimited},
		{name: "server error", status: http.StatusInternalServerError, target: core.ErrTransient},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := newChatServer(t, testCase.status, "")

			_, err := newTestGenerator(server).Generate(context.Background(), "prompt")
			assert.ErrorIs(t, err, testCase.target)
		})
	}

	server := newChatServer(t, http.StatusBadRequest, "")

	_, err := newTestGenerator(server).Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err))
}
