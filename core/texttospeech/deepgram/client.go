// Package deepgram implements speech synthesis against the Deepgram speak
// API. Each request carries one reply string and returns the complete audio
// payload, ready for the playback device.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/talkmate/talkmate-core/core/audio"
	"github.com/talkmate/talkmate-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const speakURL = "https://api.deepgram.com/v1/speak"

type SynthesisClient struct {
	httpClient *http.Client
	voice      deepgramVoice
}

func NewSynthesisClient(voice deepgramVoice) (*SynthesisClient, error) {
	if !voice.valid() {
		return nil, fmt.Errorf("invalid voice")
	}

	return &SynthesisClient{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		voice: voice,
	}, nil
}

// Synthesize requests audio for text and returns the raw payload. The call
// honours ctx cancellation so an in-flight request can be abandoned on
// barge-in.
func (c *SynthesisClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := texttospeech.SynthesisOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	requestBody, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	requestUrl, _ := url.Parse(speakURL)
	queryParams := requestUrl.Query()
	queryParams.Set("model", string(c.voice))
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	queryParams.Set("container", "none")
	requestUrl.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestUrl.String(), bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("synthesis request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis payload: %w", err)
	}

	return payload, nil
}
