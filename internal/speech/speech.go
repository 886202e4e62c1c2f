package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mentora/internal/config"
)

// Speaker converts reply text to audio. Failures never affect the chat
// response path; callers invoke Speak fire-and-forget.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Client posts text to an ElevenLabs-style synthesis endpoint.
type Client struct {
	endpoint string
	apiKey   string
	voiceID  string
	http     *http.Client
}

// Noop is used when no speech endpoint is configured.
type Noop struct{}

func (Noop) Speak(context.Context, string) error { return nil }

// NewClient returns a speech client, or Noop when the endpoint is empty.
func NewClient(cfg config.SpeechConfig) Speaker {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return Noop{}
	}
	voice := cfg.VoiceID
	if voice == "" {
		voice = "default"
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		voiceID:  voice,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Speak synthesizes text and discards the returned audio; the presentation
// layer streams it separately.
func (c *Client) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode speech request: %w", err)
	}
	u := c.endpoint + "/v1/text-to-speech/" + url.PathEscape(c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("xi-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("speech endpoint returned %s", resp.Status)
	}
	return nil
}
