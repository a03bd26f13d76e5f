package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultElevenLabsURL   = "https://api.elevenlabs.io/v1/text-to-speech"
	defaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
)

type elevenLabsConfig struct {
	APIKey          string  `json:"api_key"`
	BaseURL         string  `json:"base_url"`
	VoiceID         string  `json:"voice_id"`
	Model           string  `json:"model"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Timeout         int     `json:"timeout"`
}

type elevenLabsSynthesizer struct {
	apiKey   string
	endpoint string
	model    string
	settings elevenLabsVoiceSettings
	client   *http.Client
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

func (e *elevenLabsSynthesizer) Name() string {
	return "elevenlabs"
}

func (e *elevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key is not configured")
	}
	data, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: e.model, VoiceSettings: e.settings})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus("elevenlabs", resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return &Audio{Data: body, MIMEType: mimeType}, nil
}

func createElevenLabs(args interface{}) (ISynthesizer, error) {
	cfg := &elevenLabsConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultElevenLabsURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultElevenLabsVoice
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_turbo_v2_5"
	}
	if cfg.Stability <= 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost <= 0 {
		cfg.SimilarityBoost = 0.75
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60
	}
	return &elevenLabsSynthesizer{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.VoiceID,
		model:    cfg.Model,
		settings: elevenLabsVoiceSettings{Stability: cfg.Stability, SimilarityBoost: cfg.SimilarityBoost},
		client:   &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func init() {
	RegisterSynthesizer("elevenlabs", createElevenLabs)
}
