package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVoice() core.VoiceProfile {
	return core.VoiceProfile{
		Name:           "en-US-Neural2-D",
		Language:       "en-US",
		Gender:         core.GenderMale,
		SpeakingRate:   1.05,
		PitchSemitones: -0.5,
	}
}

func TestHTTPClient_Synthesize_Success(t *testing.T) {
	t.Parallel()

	var received tts.SpeechRequest

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/v1/generate/speech", request.URL.Path)
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(request.Body).Decode(&received))

		writer.Header().Set("Content-Type", "audio/wav")
		_, _ = writer.Write([]byte("fake-wav-data"))
	}))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL+"/", 5*time.Second, 24000)

	audioData, err := client.Synthesize(context.Background(), "<speak>Hello</speak>", testVoice())
	require.NoError(t, err)

	assert.Equal(t, []byte("fake-wav-data"), audioData)
	assert.Equal(t, "<speak>Hello</speak>", received.Text)
	assert.True(t, received.SSML)
	assert.Equal(t, "en-US-Neural2-D", received.Voice)
	assert.Equal(t, "male", received.Gender)
	assert.InDelta(t, 1.05, received.SpeakingRate, 1e-9)
	assert.InDelta(t, -0.5, received.Pitch, 1e-9)
	assert.Equal(t, 24000, received.SampleRateHertz)
}

func TestHTTPClient_GenerateSpeech_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		body          string
		status        int
		rateLimited   bool
		transient     bool
		expectedInMsg string
	}{
		{name: "too many requests", status: http.StatusTooManyRequests, body: `{"detail":"slow down"}`, rateLimited: true, expectedInMsg: "slow down"},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", transient: true, expectedInMsg: "boom"},
		{name: "unavailable", status: http.StatusServiceUnavailable, body: "", transient: true, expectedInMsg: "503"},
		{name: "bad request", status: http.StatusBadRequest, body: `{"detail":"bad voice","error_code":"E_VOICE"}`, expectedInMsg: "E_VOICE"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := tts.NewHTTPClient(server.URL, 5*time.Second, 0)

			_, err := client.GenerateSpeech(context.Background(), tts.SpeechRequest{Text: "hello"})
			require.Error(t, err)

			assert.Equal(t, testCase.rateLimited, errors.Is(err, core.ErrRateLimited))
			assert.Equal(t, testCase.transient, errors.Is(err, core.ErrTransient))
			assert.Contains(t, err.Error(), testCase.expectedInMsg)
		})
	}
}

func TestHTTPClient_GenerateSpeech_ConnectionFailureIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := tts.NewHTTPClient(url, time.Second, 0)

	_, err := client.GenerateSpeech(context.Background(), tts.SpeechRequest{Text: "hello"})
	assert.ErrorIs(t, err, core.ErrTransient)
}

func TestHTTPClient_GenerateSpeech_Validation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "text/html")
		_, _ = writer.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, time.Second, 0)

	_, err := client.GenerateSpeech(context.Background(), tts.SpeechRequest{Text: "   "})
	require.ErrorIs(t, err, tts.ErrTextEmpty)

	_, err = client.GenerateSpeech(context.Background(), tts.SpeechRequest{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected content type")
}

func TestHTTPClient_GenerateSpeech_EmptyAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "audio/wav")
	}))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, time.Second, 0)

	_, err := client.GenerateSpeech(context.Background(), tts.SpeechRequest{Text: "hello"})
	assert.ErrorIs(t, err, tts.ErrReceivedEmptyAudio)
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/health", request.URL.Path)
		writer.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	require.NoError(t, tts.NewHTTPClient(healthy.URL, time.Second, 0).HealthCheck(context.Background()))
	assert.Error(t, tts.NewHTTPClient(unhealthy.URL, time.Second, 0).HealthCheck(context.Background()))
}
