package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type Audio struct {
	Data     []byte
	MIMEType string
}

type ITranscriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type ISynthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

type TranscriberFactory func(args interface{}) (ITranscriber, error)
type SynthesizerFactory func(args interface{}) (ISynthesizer, error)

var (
	transcribers = map[string]TranscriberFactory{}
	synthesizers = map[string]SynthesizerFactory{}
)

func RegisterTranscriber(name string, f TranscriberFactory) {
	transcribers[strings.ToLower(name)] = f
}

func RegisterSynthesizer(name string, f SynthesizerFactory) {
	synthesizers[strings.ToLower(name)] = f
}

func NewTranscriber(name string, args interface{}) (ITranscriber, error) {
	f := transcribers[strings.ToLower(strings.TrimSpace(name))]
	if f == nil {
		return nil, fmt.Errorf("unsupported transcriber: %s", name)
	}
	return f(args)
}

func NewSynthesizer(name string, args interface{}) (ISynthesizer, error) {
	f := synthesizers[strings.ToLower(strings.TrimSpace(name))]
	if f == nil {
		return nil, fmt.Errorf("unsupported synthesizer: %s", name)
	}
	return f(args)
}

// StatusError is a non 2xx reply from a speech endpoint.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.Code, e.Body)
}

func checkStatus(provider string, resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Provider: provider, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("speech provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode speech config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode speech config: %w", err)
	}
	return nil
}
