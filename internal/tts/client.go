// Package tts renders podcast scripts into audio: it talks to the speech
// synthesis service, plans and synthesizes segments, mixes them and encodes
// the finished episode.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

// Speech service routes.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypeAudio  = "audio/"
)

// Request defaults applied when a segment leaves them unset.
const (
	defaultLanguage     = "en-US"
	defaultSpeakingRate = 1.0
)

const (
	errFmtUnexpectedContentType = "unexpected content type: expected %s, got %s"
	errFmtServiceErrorWithCode  = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus    = "TTS service returned non-OK status: %s, body: %s"
	errFmtRequestFailed         = "%w: request to TTS service at %s failed: %w"
	errFmtClassifiedStatus      = "%w: %w"
)

var (
	ErrTextEmpty          = errors.New("text cannot be empty")
	ErrReceivedEmptyAudio = errors.New("received empty audio data")
)

// HTTPClient is a core.SpeechSynthesizer backed by the standalone TTS HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	sampleRate int
}

// SpeechRequest defines the JSON payload for speech generation requests.
type SpeechRequest struct {
	// Text is plain text or a complete SSML document.
	Text string `json:"text"`

	// Voice is the synthesizer voice id.
	Voice string `json:"voice,omitempty"`

	// Language is a BCP-47 code such as "en-US".
	Language string `json:"language"`

	// Gender is the requested voice gender.
	Gender string `json:"gender,omitempty"`

	// SSML marks Text as an SSML document.
	SSML bool `json:"ssml"`

	// SpeakingRate is a multiplier where 1.0 is normal speed.
	SpeakingRate float64 `json:"speaking_rate"`

	// Pitch is an offset in semitones.
	Pitch float64 `json:"pitch"`

	// SampleRateHertz requests a specific output sample rate.
	SampleRateHertz int `json:"sample_rate_hertz,omitempty"`
}

// ErrorResponse represents a structured error response from the TTS service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient creates a client for the TTS service at baseURL
// (e.g. "http://localhost:8000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration, sampleRate int) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		sampleRate: sampleRate,
	}
}

// Synthesize implements core.SpeechSynthesizer.
func (c *HTTPClient) Synthesize(ctx context.Context, annotatedText string, voice core.VoiceProfile) ([]byte, error) {
	return c.GenerateSpeech(ctx, SpeechRequest{
		Text:            annotatedText,
		Voice:           voice.Name,
		Language:        voice.Language,
		Gender:          string(voice.Gender),
		SSML:            strings.HasPrefix(strings.TrimSpace(annotatedText), "<speak>"),
		SpeakingRate:    voice.SpeakingRate,
		Pitch:           voice.PitchSemitones,
		SampleRateHertz: c.sampleRate,
	})
}

// GenerateSpeech sends a speech request and returns the WAV bytes.
//
// Rate limiting (429) is reported as core.ErrRateLimited; server errors,
// timeouts and connection failures as core.ErrTransient. Any other non-200
// status is a plain error.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if req.Language == "" {
		req.Language = defaultLanguage
	}

	if req.SpeakingRate <= 0 {
		req.SpeakingRate = defaultSpeakingRate
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("speech request aborted: %w", ctx.Err())
		}

		return nil, fmt.Errorf(errFmtRequestFailed, core.ErrTransient, c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, contentTypeAudio) {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, contentTypeWAV, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio data: %w", core.ErrTransient, err)
	}

	if len(audioData) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	return audioData, nil
}

// HealthCheck reports an error unless the speech service answers /health with 200.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

func (c *HTTPClient) classifyStatus(resp *http.Response) error {
	detail := c.parseErrorResponse(resp)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf(errFmtClassifiedStatus, core.ErrRateLimited, detail)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf(errFmtClassifiedStatus, core.ErrTransient, detail)
	default:
		return detail
	}
}

// parseErrorResponse decodes a structured JSON error from the service,
// falling back to the raw body.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
