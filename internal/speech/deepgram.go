package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultDeepgramURL = "https://api.deepgram.com/v1/listen"

type deepgramConfig struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	Model    string `json:"model"`
	Language string `json:"language"`
	Timeout  int    `json:"timeout"`
}

type deepgramTranscriber struct {
	apiKey   string
	endpoint string
	model    string
	language string
	client   *http.Client
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *deepgramTranscriber) Name() string {
	return "deepgram"
}

func (d *deepgramTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if d.apiKey == "" {
		return "", fmt.Errorf("deepgram api key is not configured")
	}
	q := url.Values{}
	q.Set("model", d.model)
	q.Set("smart_format", "true")
	q.Set("language", d.language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"?"+q.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", mimeType)
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus("deepgram", resp); err != nil {
		return "", err
	}
	var out deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode deepgram response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Results.Channels[0].Alternatives[0].Transcript), nil
}

func createDeepgram(args interface{}) (ITranscriber, error) {
	cfg := &deepgramConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDeepgramURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30
	}
	return &deepgramTranscriber{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		endpoint: cfg.BaseURL,
		model:    cfg.Model,
		language: cfg.Language,
		client:   &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

func init() {
	RegisterTranscriber("deepgram", createDeepgram)
}
